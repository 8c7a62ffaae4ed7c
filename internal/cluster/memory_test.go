package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmusatyalab/sinfonia/internal/apierr"
	"github.com/cmusatyalab/sinfonia/internal/model"
)

type fakeCatalog struct {
	recipes map[string]*model.Recipe
}

func (f *fakeCatalog) FromUUID(uuid string) (*model.Recipe, error) {
	if r, ok := f.recipes[uuid]; ok {
		return r, nil
	}
	return nil, apierr.NotFound("recipe not found", nil)
}

func newTestAdapter(t *testing.T) *MemoryAdapter {
	t.Helper()
	catalog := &fakeCatalog{recipes: map[string]*model.Recipe{
		"recipe-1": {UUID: "recipe-1", ChartRef: "oci://charts/demo"},
	}}
	a := NewMemoryAdapter(DefaultMemoryConfig(), catalog, model.Resources{"cpu_ratio": 0.2}, nil)
	return a
}

func TestGetCreatesOnlyWhenRequested(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	d, err := a.Get(ctx, "recipe-1", "tenant-a", false)
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = a.Get(ctx, "recipe-1", "tenant-a", true)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, StatusRunning, d.Status)

	again, err := a.Get(ctx, "recipe-1", "tenant-a", false)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, d.UUID, again.UUID)
}

func TestExpireInactiveOnlyRemovesStale(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	a.cfg.InactivitySeconds = 60

	base := time.Unix(1_700_000_000, 0)
	a.now = func() time.Time { return base }

	_, err := a.Get(ctx, "recipe-1", "stale", true)
	require.NoError(t, err)

	a.now = func() time.Time { return base.Add(30 * time.Second) }
	_, err = a.Get(ctx, "recipe-1", "fresh", true)
	require.NoError(t, err)

	a.now = func() time.Time { return base.Add(120 * time.Second) }
	expired, err := a.ExpireInactive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, a.Len())

	d, err := a.Get(ctx, "recipe-1", "fresh", false)
	require.NoError(t, err)
	require.NotNil(t, d)
}

func TestGetResourcesReturnsCopy(t *testing.T) {
	a := newTestAdapter(t)
	r, err := a.GetResources(context.Background())
	require.NoError(t, err)
	r["cpu_ratio"] = 0.9

	r2, err := a.GetResources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.2, r2["cpu_ratio"])
}

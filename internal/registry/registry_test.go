package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmusatyalab/sinfonia/internal/model"
)

func TestUpsertAndGet(t *testing.T) {
	r := New(Defaults(), nil)
	r.Upsert(&model.Cloudlet{UUID: "a", Endpoint: "http://a"})

	c, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "http://a", c.Endpoint)
	assert.Equal(t, 1, r.Len())
}

func TestSweepEvictsStaleOnly(t *testing.T) {
	r := New(Config{ExpirySeconds: 60, SweepInterval: time.Hour}, nil)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.Upsert(&model.Cloudlet{UUID: "fresh"})
	r.now = func() time.Time { return fixed.Add(-120 * time.Second) }
	r.Upsert(&model.Cloudlet{UUID: "stale"})
	r.now = func() time.Time { return fixed }

	evicted := r.Sweep()
	assert.Equal(t, 1, evicted)

	_, freshOK := r.Get("fresh")
	_, staleOK := r.Get("stale")
	assert.True(t, freshOK)
	assert.False(t, staleOK)
}

func TestSnapshotIsSortedAndStable(t *testing.T) {
	r := New(Defaults(), nil)
	r.Upsert(&model.Cloudlet{UUID: "z"})
	r.Upsert(&model.Cloudlet{UUID: "a"})
	r.Upsert(&model.Cloudlet{UUID: "m"})

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"a", "m", "z"}, []string{snap[0].UUID, snap[1].UUID, snap[2].UUID})

	// Mutating the registry after taking a snapshot must not affect it.
	r.Remove("a")
	assert.Len(t, snap, 3)
}

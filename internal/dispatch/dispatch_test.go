package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmusatyalab/sinfonia/internal/model"
)

type fakeDeployer struct {
	byUUID map[string][]model.DeploymentDescriptor
	errs   map[string]error
}

func (f *fakeDeployer) Deploy(_ context.Context, c *model.Cloudlet, _, _ string) ([]model.DeploymentDescriptor, error) {
	if err, ok := f.errs[c.UUID]; ok {
		return nil, err
	}
	return f.byUUID[c.UUID], nil
}

func desc(id string) model.DeploymentDescriptor { return model.DeploymentDescriptor{UUID: id} }

func TestInterleavePositional(t *testing.T) {
	a := &model.Cloudlet{UUID: "A"}
	b := &model.Cloudlet{UUID: "B"}
	deployer := &fakeDeployer{byUUID: map[string][]model.DeploymentDescriptor{
		"A": {desc("a1"), desc("a2")},
		"B": {desc("b1"), desc("b2")},
	}}
	d := New(deployer, nil, nil)

	got, err := d.Dispatch(context.Background(), []*model.Cloudlet{a, b}, "recipe", "key", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a1", "b1", "a2"}, []string{got[0].UUID, got[1].UUID, got[2].UUID})
}

func TestDispatchAllFail500(t *testing.T) {
	a := &model.Cloudlet{UUID: "A"}
	b := &model.Cloudlet{UUID: "B"}
	deployer := &fakeDeployer{errs: map[string]error{
		"A": errors.New("boom"),
		"B": errors.New("boom"),
	}}
	d := New(deployer, nil, nil)

	_, err := d.Dispatch(context.Background(), []*model.Cloudlet{a, b}, "recipe", "key", 2)
	require.Error(t, err)
}

func TestDispatchAbsorbsPartialFailure(t *testing.T) {
	a := &model.Cloudlet{UUID: "A"}
	b := &model.Cloudlet{UUID: "B"}
	deployer := &fakeDeployer{
		byUUID: map[string][]model.DeploymentDescriptor{"B": {desc("b1")}},
		errs:   map[string]error{"A": errors.New("boom")},
	}
	d := New(deployer, nil, nil)

	got, err := d.Dispatch(context.Background(), []*model.Cloudlet{a, b}, "recipe", "key", 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].UUID)
}

func TestClampResults(t *testing.T) {
	assert.Equal(t, 1, ClampResults(0))
	assert.Equal(t, 1, ClampResults(-5))
	assert.Equal(t, 3, ClampResults(10))
	assert.Equal(t, 2, ClampResults(2))
}

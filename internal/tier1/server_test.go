package tier1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmusatyalab/sinfonia/internal/apierr"
	"github.com/cmusatyalab/sinfonia/internal/dispatch"
	"github.com/cmusatyalab/sinfonia/internal/match"
	"github.com/cmusatyalab/sinfonia/internal/model"
	"github.com/cmusatyalab/sinfonia/internal/registry"
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

type fakeDeployer struct {
	descriptors []model.DeploymentDescriptor
	err         error
}

func (f *fakeDeployer) Deploy(context.Context, *model.Cloudlet, string, string) ([]model.DeploymentDescriptor, error) {
	return f.descriptors, f.err
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.New(registry.Defaults(), nil)
	pipeline, err := match.Build([]string{match.StageNetwork, match.StageLocation, match.StageCarbonIntensity}, match.DefaultConfig())
	require.NoError(t, err)
	deployer := &fakeDeployer{descriptors: []model.DeploymentDescriptor{{UUID: "dep-1"}}}
	dispatcher := dispatch.New(deployer, nil, nil)
	catalog := &fakeCatalog{recipes: map[string]*model.Recipe{
		"open-recipe":       {UUID: "open-recipe", ChartRef: "oci://charts/open"},
		"restricted-recipe": {UUID: "restricted-recipe", ChartRef: "oci://charts/locked", Restricted: true},
	}}
	return NewServer(reg, pipeline, dispatcher, catalog, nil, false, nil, nil)
}

func TestIngestMissingUUIDReturns400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cloudlets/", bytes.NewBufferString(`{"endpoint":"http://c1"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestThenListReturnsSummary(t *testing.T) {
	s := newTestServer(t)

	body := `{"uuid":"c1","endpoint":"http://cloudlet1","resources":{"cpu_ratio":0.3}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cloudlets/", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/cloudlets/", nil)
	w2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)

	var summaries []model.Summary
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "c1", summaries[0].UUID)
}

func TestRecipeRestrictedReturns403(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/recipes/restricted-recipe", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecipeUnknownReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/recipes/does-not-exist", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeployRunsPipelineAndDispatch(t *testing.T) {
	s := newTestServer(t)
	s.registry.Upsert(&model.Cloudlet{UUID: "c1", Endpoint: "http://cloudlet1"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/deploy/open-recipe/tenant-a?results=1", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got []model.DeploymentDescriptor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "dep-1", got[0].UUID)
}

func TestDeployAllCandidatesFailReturns500(t *testing.T) {
	reg := registry.New(registry.Defaults(), nil)
	pipeline, err := match.Build([]string{match.StageNetwork, match.StageCarbonIntensity}, match.DefaultConfig())
	require.NoError(t, err)
	deployer := &fakeDeployer{err: errors.New("boom")}
	dispatcher := dispatch.New(deployer, nil, nil)
	catalog := &fakeCatalog{recipes: map[string]*model.Recipe{"open-recipe": {UUID: "open-recipe"}}}
	s := NewServer(reg, pipeline, dispatcher, catalog, nil, false, nil, nil)
	s.registry.Upsert(&model.Cloudlet{UUID: "c1", Endpoint: "http://cloudlet1"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/deploy/open-recipe/tenant-a", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

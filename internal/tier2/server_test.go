package tier2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmusatyalab/sinfonia/internal/carbon"
	"github.com/cmusatyalab/sinfonia/internal/cluster"
	"github.com/cmusatyalab/sinfonia/internal/model"
)

type stubAdapter struct {
	deployments map[string]*cluster.Deployment
	resources   model.Resources
}

func (a *stubAdapter) Get(_ context.Context, recipeUUID, key string, create bool) (*cluster.Deployment, error) {
	k := recipeUUID + "/" + key
	if d, ok := a.deployments[k]; ok {
		return d, nil
	}
	if !create {
		return nil, nil
	}
	d := &cluster.Deployment{UUID: "dep-1", ApplicationKey: key, RecipeUUID: recipeUUID, Status: "running"}
	a.deployments[k] = d
	return d, nil
}

func (a *stubAdapter) Expire(_ context.Context, recipeUUID, key string) error {
	delete(a.deployments, recipeUUID+"/"+key)
	return nil
}

func (a *stubAdapter) ExpireInactive(context.Context) (int, error) { return 0, nil }

func (a *stubAdapter) GetResources(context.Context) (model.Resources, error) {
	return a.resources, nil
}

func newTestTier2Server() (*Server, *stubAdapter) {
	adapter := &stubAdapter{deployments: map[string]*cluster.Deployment{}, resources: model.Resources{"cpu_ratio": 0.1}}
	r := NewReporter(adapter, nil, nil, nil, "c1", "http://c1", nil, nil, 1)
	return NewServer(adapter, r, nil, nil), adapter
}

func TestDeployCreateThenGetThenDeleteLifecycle(t *testing.T) {
	s, adapter := newTestTier2Server()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/deploy/recipe-1/tenant-a", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var created []model.DeploymentDescriptor
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	require.Len(t, created, 1)
	assert.Equal(t, "dep-1", created[0].UUID)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/deploy/recipe-1/tenant-a", nil)
	w2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)

	var fetched model.DeploymentDescriptor
	require.NoError(t, json.NewDecoder(w2.Body).Decode(&fetched))
	assert.Equal(t, "dep-1", fetched.UUID)

	req3 := httptest.NewRequest(http.MethodDelete, "/api/v1/deploy/recipe-1/tenant-a", nil)
	w3 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w3, req3)
	assert.Equal(t, http.StatusNoContent, w3.Code)
	_, stillTracked := adapter.deployments["recipe-1/tenant-a"]
	assert.False(t, stillTracked, "delete should expire the deployment")
}

func TestDeployDeleteAbsentReturns204WithoutExpire(t *testing.T) {
	s, _ := newTestTier2Server()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/deploy/recipe-1/tenant-a", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDeployGetMissingReturns404(t *testing.T) {
	s, _ := newTestTier2Server()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deploy/recipe-1/tenant-a", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCarbonBeforeTimestampSetReturns400(t *testing.T) {
	s, _ := newTestTier2Server()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/carbon", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCarbonTraceTimestampSetThenGetCarbon(t *testing.T) {
	adapter := &stubAdapter{deployments: map[string]*cluster.Deployment{}, resources: model.Resources{}}
	trace, err := carbon.Parse("us-test", strings.NewReader("timestamp,carbon_intensity_gco2_kwh_direct\n0,150\n"))
	require.NoError(t, err)
	reporter := NewReporter(adapter, carbon.NewReporter(trace, constSampler{joules: 0}, nil), nil, nil, "c1", "http://c1", nil, nil, 1)
	s := NewServer(adapter, reporter, nil, nil)

	setReq := httptest.NewRequest(http.MethodPost, "/api/v1/carbon-trace-timestamp?carbon_trace_timestamp=0", nil)
	setW := httptest.NewRecorder()
	s.Handler().ServeHTTP(setW, setReq)
	require.Equal(t, http.StatusNoContent, setW.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/carbon", nil)
	getW := httptest.NewRecorder()
	s.Handler().ServeHTTP(getW, getReq)
	assert.Equal(t, http.StatusOK, getW.Code)
}

func TestCarbonTraceTimestampNegativeReturns400(t *testing.T) {
	s, _ := newTestTier2Server()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/carbon-trace-timestamp?carbon_trace_timestamp=-5", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResourcesReturnsClusterSnapshot(t *testing.T) {
	s, _ := newTestTier2Server()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/resu", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLivezAndReadyzAlwaysOK(t *testing.T) {
	s, _ := newTestTier2Server()
	for _, path := range []string{"/api/v1/livez", "/api/v1/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

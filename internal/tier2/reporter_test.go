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

// fakeAdapter satisfies cluster.Adapter; only GetResources is exercised by
// the reporting loop's tests.
type fakeAdapter struct {
	resources model.Resources
	err       error
}

func (f *fakeAdapter) Get(context.Context, string, string, bool) (*cluster.Deployment, error) {
	return nil, nil
}

func (f *fakeAdapter) Expire(context.Context, string, string) error { return nil }

func (f *fakeAdapter) ExpireInactive(context.Context) (int, error) { return 0, nil }

func (f *fakeAdapter) GetResources(context.Context) (model.Resources, error) {
	return f.resources, f.err
}

type constSampler struct{ joules float64 }

func (s constSampler) Sample(context.Context, int) (float64, error) { return s.joules, nil }

func TestReporterCarbonUnsetUntilTimestampConfigured(t *testing.T) {
	r := NewReporter(&fakeAdapter{}, nil, nil, nil, "c1", "http://c1", nil, nil, 1)
	_, ok := r.CarbonTraceTimestamp()
	assert.False(t, ok)

	_, err := r.CurrentCarbonReport(context.Background())
	assert.Error(t, err)

	r.SetCarbonTraceTimestamp(42)
	ts, ok := r.CarbonTraceTimestamp()
	require.True(t, ok)
	assert.Equal(t, int64(42), ts)
}

func TestReporterTickPostsMergedResourcesToEveryTier1(t *testing.T) {
	var received []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received = append(received, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	trace, err := carbon.Parse("us-test", strings.NewReader(
		"timestamp,carbon_intensity_gco2_kwh_direct\n0,100\n3600,200\n"))
	require.NoError(t, err)

	carbonReporter := carbon.NewReporter(trace, constSampler{joules: 3600}, nil)
	adapter := &fakeAdapter{resources: model.Resources{"cpu_ratio": 0.5}}
	r := NewReporter(adapter, carbonReporter, srv.Client(), nil, "c1", "http://c1", nil, []string{srv.URL, srv.URL}, 1)
	r.SetCarbonTraceTimestamp(0)

	require.NoError(t, r.Tick(context.Background()))
	require.Len(t, received, 2)

	got := received[0]
	assert.Equal(t, "c1", got["uuid"])
	resources := got["resources"].(map[string]interface{})
	assert.Equal(t, 0.5, resources["cpu_ratio"])
	assert.Equal(t, float64(100), resources["carbon_intensity_gco2_kwh"])
}

func TestReporterTickAbsorbsPeerFailure(t *testing.T) {
	adapter := &fakeAdapter{resources: model.Resources{}}
	r := NewReporter(adapter, nil, &http.Client{}, nil, "c1", "http://c1", nil, []string{"http://127.0.0.1:1"}, 1)
	assert.NoError(t, r.Tick(context.Background()))
}

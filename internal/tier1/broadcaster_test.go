package tier1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmusatyalab/sinfonia/internal/model"
	"github.com/cmusatyalab/sinfonia/internal/registry"
)

func TestBroadcastAdvancesAfterFanoutByDefault(t *testing.T) {
	var gotTimestamp atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := strconv.ParseInt(r.URL.Query().Get("carbon_trace_timestamp"), 10, 64)
		gotTimestamp.Store(v)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := registry.New(registry.Defaults(), nil)
	reg.Upsert(&model.Cloudlet{UUID: "c1", Endpoint: srv.URL})

	b := NewBroadcaster(reg, srv.Client(), nil, nil, 1000, 12, false)
	b.Tick(context.Background())

	assert.Equal(t, int64(1000), gotTimestamp.Load(), "fanout should see the pre-tick timestamp")
	assert.Equal(t, int64(1012), b.Timestamp(), "clock should have advanced after the fanout completed")
}

func TestBroadcastAdvanceBeforeBroadcastWhenConfigured(t *testing.T) {
	var gotTimestamp atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := strconv.ParseInt(r.URL.Query().Get("carbon_trace_timestamp"), 10, 64)
		gotTimestamp.Store(v)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := registry.New(registry.Defaults(), nil)
	reg.Upsert(&model.Cloudlet{UUID: "c1", Endpoint: srv.URL})

	b := NewBroadcaster(reg, srv.Client(), nil, nil, 1000, 12, true)
	b.Tick(context.Background())

	assert.Equal(t, int64(1012), gotTimestamp.Load(), "fanout should see the post-advance timestamp")
	assert.Equal(t, int64(1012), b.Timestamp())
}

func TestBroadcastAbsorbsPeerFailure(t *testing.T) {
	reg := registry.New(registry.Defaults(), nil)
	reg.Upsert(&model.Cloudlet{UUID: "unreachable", Endpoint: "http://127.0.0.1:1"})

	b := NewBroadcaster(reg, &http.Client{Timeout: 200 * time.Millisecond}, nil, nil, 0, 12, false)
	require.NotPanics(t, func() { b.Tick(context.Background()) })
	assert.Equal(t, int64(12), b.Timestamp())
}

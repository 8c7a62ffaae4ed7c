package tier2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/cmusatyalab/sinfonia/internal/carbon"
	"github.com/cmusatyalab/sinfonia/internal/cluster"
	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/model"
)

// Reporter implements the Tier-2 reporting loop (C7): on every tick it pulls
// the cluster's current resource utilization, folds in a carbon report when
// the experiment clock has been set, and pushes the bundle to every
// configured Tier-1.
type Reporter struct {
	cluster   cluster.Adapter
	carbon    *carbon.Reporter
	client    *http.Client
	log       logging.Logger
	uuid      string
	endpoint  string
	locations []model.LatLon
	tier1URLs []string

	windowSeconds int

	// carbonTimestamp is set by the /api/v1/carbon-trace-timestamp handler
	// (C10) and read here; a negative value means "not yet set", matching
	// the original's None sentinel.
	carbonTimestamp atomic.Int64
}

const timestampUnset = -1

// NewReporter constructs a Reporter. client defaults to http.DefaultClient.
func NewReporter(adapter cluster.Adapter, reporter *carbon.Reporter, client *http.Client, log logging.Logger, uuid, endpoint string, locations []model.LatLon, tier1URLs []string, windowSeconds int) *Reporter {
	if client == nil {
		client = http.DefaultClient
	}
	r := &Reporter{
		cluster:       adapter,
		carbon:        reporter,
		client:        client,
		log:           log,
		uuid:          uuid,
		endpoint:      endpoint,
		locations:     locations,
		tier1URLs:     tier1URLs,
		windowSeconds: windowSeconds,
	}
	r.carbonTimestamp.Store(timestampUnset)
	return r
}

// SetCarbonTraceTimestamp records the experiment clock value Tier-1's
// broadcaster most recently sent. ts < 0 is rejected by the caller (C10's
// handler), not here.
func (r *Reporter) SetCarbonTraceTimestamp(ts int64) {
	r.carbonTimestamp.Store(ts)
}

// CarbonTraceTimestamp returns the last-recorded experiment clock value, and
// false if none has been set yet.
func (r *Reporter) CarbonTraceTimestamp() (int64, bool) {
	ts := r.carbonTimestamp.Load()
	if ts < 0 {
		return 0, false
	}
	return ts, true
}

// CurrentCarbonReport computes a CarbonReport for the current instant. It
// returns an error when no carbon_trace_timestamp has ever been set, mirroring
// GET /api/v1/carbon's precondition (C10).
func (r *Reporter) CurrentCarbonReport(ctx context.Context) (model.CarbonReport, error) {
	ts, ok := r.CarbonTraceTimestamp()
	if !ok {
		return model.CarbonReport{}, fmt.Errorf("carbon_trace_timestamp not set")
	}
	if r.carbon == nil {
		return model.CarbonReport{}, fmt.Errorf("carbon reporting not configured")
	}
	return r.carbon.Report(ctx, ts, r.windowSeconds), nil
}

// Tick runs one reporting cycle: gather resources, fold in a carbon report
// if the clock is set, and push the bundle to every Tier-1. Per-peer POST
// failures are absorbed and logged at WARN, never propagated.
func (r *Reporter) Tick(ctx context.Context) error {
	resources, err := r.cluster.GetResources(ctx)
	if err != nil {
		return fmt.Errorf("get resources: %w", err)
	}
	if resources == nil {
		resources = model.Resources{}
	}

	if report, err := r.CurrentCarbonReport(ctx); err == nil {
		resources[model.ResourceCarbonIntensity] = report.CarbonIntensityGCO2KWh
		resources[model.ResourceEnergyUseJoules] = report.EnergyUseJoules
		resources[model.ResourceCarbonEmissionGCO2] = report.CarbonEmissionGCO2
	}

	body := ingestRequest{
		UUID:      r.uuid,
		Endpoint:  r.endpoint,
		Resources: resources,
		Locations: r.locations,
	}

	for _, tier1URL := range r.tier1URLs {
		if err := r.reportTo(ctx, tier1URL, body); err != nil && r.log != nil {
			r.log.WarnCtx(ctx, "report to tier1 failed", "tier1", tier1URL, "error", err.Error())
		}
	}
	return nil
}

type ingestRequest struct {
	UUID      string          `json:"uuid"`
	Endpoint  string          `json:"endpoint"`
	Resources model.Resources `json:"resources"`
	Locations []model.LatLon  `json:"locations"`
}

func (r *Reporter) reportTo(ctx context.Context, tier1URL string, body ingestRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tier1URL+"/api/v1/cloudlets/", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tier1 %s returned %d", tier1URL, resp.StatusCode)
	}
	return nil
}

package tier1

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/registry"
	"github.com/cmusatyalab/sinfonia/internal/telemetry/tracing"
)

// Broadcaster implements the experiment clock (C8): on every tick it reads
// the current carbon_trace_timestamp, POSTs it to every known Tier-2's
// carbon-trace-timestamp endpoint, and advances the clock by TickRate. A
// whole fleet driven from the same Tier-1 replays the same point in a
// carbon trace in lockstep.
type Broadcaster struct {
	registry *registry.Registry
	client   *http.Client
	tracer   *tracing.Tracer
	log      logging.Logger

	tickRateSeconds        int64
	advanceBeforeBroadcast bool

	timestamp atomic.Int64
}

// NewBroadcaster constructs a Broadcaster seeded with initialTimestamp.
// tracer and log may be nil; client defaults to http.DefaultClient.
func NewBroadcaster(reg *registry.Registry, client *http.Client, tracer *tracing.Tracer, log logging.Logger, initialTimestamp int64, tickRateSeconds int, advanceBeforeBroadcast bool) *Broadcaster {
	if client == nil {
		client = http.DefaultClient
	}
	b := &Broadcaster{
		registry:               reg,
		client:                 client,
		tracer:                 tracer,
		log:                    log,
		tickRateSeconds:        int64(tickRateSeconds),
		advanceBeforeBroadcast: advanceBeforeBroadcast,
	}
	b.timestamp.Store(initialTimestamp)
	return b
}

// Timestamp returns the current carbon_trace_timestamp.
func (b *Broadcaster) Timestamp() int64 { return b.timestamp.Load() }

// Tick runs one broadcast cycle: snapshot the registry, fan a
// carbon-trace-timestamp POST out to every cloudlet, then advance the
// clock. Per-peer failures are logged at WARN and never fail the tick;
// advanceBeforeBroadcast controls whether the clock used for this tick's
// fan-out is the pre- or post-advance value (see SPEC_FULL.md Open
// Question b).
func (b *Broadcaster) Tick(ctx context.Context) {
	if b.advanceBeforeBroadcast {
		b.timestamp.Add(b.tickRateSeconds)
	}
	ts := b.timestamp.Load()

	cloudlets := b.registry.Snapshot()
	ctx, span := b.startSpan(ctx, ts, len(cloudlets))

	var wg sync.WaitGroup
	for _, c := range cloudlets {
		wg.Add(1)
		go func(endpoint, uuid string) {
			defer wg.Done()
			err := b.broadcastOne(ctx, endpoint, ts)
			if span != nil {
				tracing.RecordCandidateResult(span, uuid, err, 1)
			}
			if err != nil && b.log != nil {
				b.log.WarnCtx(ctx, "broadcast to cloudlet failed", "cloudlet", uuid, "error", err.Error())
			}
		}(c.Endpoint, c.UUID)
	}
	wg.Wait()

	if span != nil {
		tracing.Finish(span, nil)
	}

	if !b.advanceBeforeBroadcast {
		b.timestamp.Add(b.tickRateSeconds)
	}
}

func (b *Broadcaster) startSpan(ctx context.Context, ts int64, fanout int) (context.Context, oteltrace.Span) {
	if b.tracer == nil {
		return ctx, nil
	}
	spanCtx, span := b.tracer.StartOperation(ctx, "broadcast_carbon_trace_timestamp", map[string]string{
		"carbon_trace_timestamp": fmt.Sprint(ts),
		"fanout":                 fmt.Sprint(fanout),
	})
	return spanCtx, span
}

func (b *Broadcaster) broadcastOne(ctx context.Context, endpoint string, ts int64) error {
	target := fmt.Sprintf("%s/api/v1/carbon-trace-timestamp?carbon_trace_timestamp=%s", endpoint, url.QueryEscape(fmt.Sprint(ts)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloudlet %s returned %d", endpoint, resp.StatusCode)
	}
	return nil
}

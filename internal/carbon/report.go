package carbon

import (
	"context"
	"fmt"

	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/model"
)

// Reporter combines a Trace (C1) and a Sampler (C2) into CarbonReport
// values (C3). A sampling failure never propagates to Report's caller as
// an error: it is logged at WARN and folded into a zero-energy report, so
// the Tier-2 reporting loop that calls Report never skips a tick over it.
type Reporter struct {
	trace   *Trace
	sampler Sampler
	log     logging.Logger
}

// NewReporter constructs a Reporter. log may be nil, in which case sampling
// failures are silently absorbed.
func NewReporter(trace *Trace, sampler Sampler, log logging.Logger) *Reporter {
	return &Reporter{trace: trace, sampler: sampler, log: log}
}

// Report computes `ci = trace.AverageIntensity(timestamp)`, `eu =
// sampler.Sample(windowSeconds)`, `ce = ci * (eu / 3.6e6)`.
func (r *Reporter) Report(ctx context.Context, timestamp int64, windowSeconds int) model.CarbonReport {
	ci := r.trace.AverageIntensity(timestamp)
	eu, err := r.sampler.Sample(ctx, windowSeconds)
	if err != nil {
		if r.log != nil {
			r.log.WarnCtx(ctx, "energy sampling failed, reporting zero energy use", "error", fmt.Sprint(err))
		}
		eu = 0
	}
	if eu < 0 {
		eu = 0
	}
	return model.NewCarbonReport(ci, eu)
}

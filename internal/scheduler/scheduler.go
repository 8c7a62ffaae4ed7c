// Package scheduler runs the background jobs both tiers use
// (experiment-clock broadcast, inactive-deployment expiry, reporting to
// Tier-1; cloudlet expiry runs separately in registry.Run) under a single
// shared contract: each job has at most
// one instance running at a time, and a tick that fires while the previous
// run is still in flight is discarded rather than queued (max_instances=1,
// coalesce=true).
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cmusatyalab/sinfonia/internal/logging"
)

// Job is one schedulable unit of background work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives a fixed set of Jobs, each on its own ticker, enforcing
// max_instances=1/coalesce=true per job independently.
type Runner struct {
	jobs []Job
	log  logging.Logger
}

// New constructs a Runner for the given jobs. log may be nil.
func New(log logging.Logger, jobs ...Job) *Runner {
	return &Runner{jobs: jobs, log: log}
}

// Start launches one goroutine per job and blocks until ctx is canceled,
// at which point all job goroutines have been asked to stop (in-flight
// runs are allowed to finish; Start does not wait for them).
func (r *Runner) Start(ctx context.Context) {
	done := make(chan struct{}, len(r.jobs))
	for _, j := range r.jobs {
		j := j
		go func() {
			r.runJob(ctx, j)
			done <- struct{}{}
		}()
	}
	<-ctx.Done()
	for range r.jobs {
		<-done
	}
}

func (r *Runner) runJob(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	var running int32 // atomic: 0 = idle, 1 = a run is in flight
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&running, 0, 1) {
				// Previous run still in flight: this tick is coalesced
				// away, not queued.
				if r.log != nil {
					r.log.WarnCtx(ctx, "job tick coalesced, previous run still active", "job", j.Name)
				}
				continue
			}
			go func() {
				defer atomic.StoreInt32(&running, 0)
				if err := j.Run(ctx); err != nil && r.log != nil {
					r.log.ErrorCtx(ctx, "background job failed", "job", j.Name, "error", err.Error())
				}
			}()
		}
	}
}

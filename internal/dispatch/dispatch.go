// Package dispatch implements the deployment dispatcher (C6): it takes the
// first N candidates yielded by a match.Pipeline, fires a deploy call at
// each concurrently, and merges their per-candidate result lists with a
// positional interleave rule.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/cmusatyalab/sinfonia/internal/apierr"
	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/model"
	"github.com/cmusatyalab/sinfonia/internal/telemetry/tracing"
)

// MinResults and MaxResults bound the clamped `results` query parameter.
const (
	MinResults = 1
	MaxResults = 3
)

// ClampResults clamps a requested result count into [MinResults, MaxResults].
func ClampResults(requested int) int {
	if requested < MinResults {
		return MinResults
	}
	if requested > MaxResults {
		return MaxResults
	}
	return requested
}

// Deployer issues one deploy call against a single cloudlet and returns its
// ordered list of deployment descriptors. Production deployments make this
// an HTTP POST to the cloudlet's /api/v1/deploy/{uuid}/{key}; tests supply
// a fake.
type Deployer interface {
	Deploy(ctx context.Context, cloudlet *model.Cloudlet, recipeUUID, applicationKey string) ([]model.DeploymentDescriptor, error)
}

// HTTPDeployer is the production Deployer, POSTing to the cloudlet's own
// Tier-2 request surface.
type HTTPDeployer struct {
	Client *http.Client
}

// NewHTTPDeployer returns an HTTPDeployer using client, or http.DefaultClient
// if nil.
func NewHTTPDeployer(client *http.Client) *HTTPDeployer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDeployer{Client: client}
}

func (d *HTTPDeployer) Deploy(ctx context.Context, cloudlet *model.Cloudlet, recipeUUID, applicationKey string) ([]model.DeploymentDescriptor, error) {
	endpoint := fmt.Sprintf("%s/api/v1/deploy/%s/%s", cloudlet.Endpoint, url.PathEscape(recipeUUID), url.PathEscape(applicationKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudlet %s returned %d", cloudlet.UUID, resp.StatusCode)
	}
	var descriptors []model.DeploymentDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return nil, fmt.Errorf("decode deploy response from %s: %w", cloudlet.UUID, err)
	}
	return descriptors, nil
}

// Dispatcher fans deploy calls out to the top candidates of a pipeline and
// gathers their results.
type Dispatcher struct {
	deployer Deployer
	tracer   *tracing.Tracer
	log      logging.Logger
}

// New constructs a Dispatcher. tracer and log may be nil.
func New(deployer Deployer, tracer *tracing.Tracer, log logging.Logger) *Dispatcher {
	return &Dispatcher{deployer: deployer, tracer: tracer, log: log}
}

// Dispatch fires concurrent deploy calls at the first maxResults candidates
// and returns their interleaved, none-padding-stripped results. Dispatch
// clamps maxResults to [1,3] itself (see ClampResults). Candidates is
// already the (at most maxResults-long) slice the caller pulled from a
// match.Pipeline; Dispatch does not itself consume the pipeline so that C9
// controls exactly how many candidates are requested.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []*model.Cloudlet, recipeUUID, applicationKey string, maxResults int) ([]model.DeploymentDescriptor, error) {
	maxResults = ClampResults(maxResults)
	if len(candidates) == 0 {
		return nil, apierr.Internal("Something went wrong", nil)
	}

	dispatchCtx := ctx
	var dispatchSpan oteltrace.Span
	if d.tracer != nil {
		dispatchCtx, dispatchSpan = d.tracer.StartOperation(ctx, "dispatch", map[string]string{
			"recipe_uuid":     recipeUUID,
			"application_key": applicationKey,
		})
	}

	results := make([][]model.DeploymentDescriptor, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c *model.Cloudlet) {
			defer wg.Done()
			descriptors, err := d.deployer.Deploy(dispatchCtx, c, recipeUUID, applicationKey)
			if dispatchSpan != nil {
				tracing.RecordCandidateResult(dispatchSpan, c.UUID, err, len(descriptors))
			}
			if err != nil {
				if d.log != nil {
					d.log.WarnCtx(ctx, "deploy call failed, candidate absorbed", "cloudlet", c.UUID, "error", fmt.Sprint(err))
				}
				return
			}
			results[i] = descriptors
		}(i, c)
	}
	wg.Wait()

	merged := interleave(results, maxResults)
	if dispatchSpan != nil {
		if len(merged) == 0 {
			tracing.Finish(dispatchSpan, apierr.Internal("Something went wrong", nil))
		} else {
			tracing.Finish(dispatchSpan, nil)
		}
	}
	if len(merged) == 0 {
		return nil, apierr.Internal("Something went wrong", nil)
	}
	return merged, nil
}

// interleave implements the `zip_longest` + flatten + drop-none + bound
// rule: the i-th result of candidate 0, then candidate 1, ..., then i+1,
// stopping once maxResults non-none entries have been collected.
func interleave(perCandidate [][]model.DeploymentDescriptor, maxResults int) []model.DeploymentDescriptor {
	maxLen := 0
	for _, r := range perCandidate {
		if len(r) > maxLen {
			maxLen = len(r)
		}
	}
	out := make([]model.DeploymentDescriptor, 0, maxResults)
	for i := 0; i < maxLen && len(out) < maxResults; i++ {
		for _, r := range perCandidate {
			if i >= len(r) {
				continue // "none" padding: candidate produced fewer entries
			}
			out = append(out, r[i])
			if len(out) >= maxResults {
				break
			}
		}
	}
	return out
}

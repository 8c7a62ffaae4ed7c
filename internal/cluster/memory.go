package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/model"
	"github.com/cmusatyalab/sinfonia/internal/recipe"
)

const (
	StatusRunning = "running"
	StatusExpired = "expired"
)

// MemoryConfig controls the in-memory adapter's inactivity window. The
// resource bundle GetResources reports is passed to NewMemoryAdapter.
type MemoryConfig struct {
	InactivitySeconds int
}

// DefaultMemoryConfig matches the single-box / test defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{InactivitySeconds: 3600}
}

// MemoryAdapter is a process-local Adapter: deployments live in a guarded
// map rather than a real cluster, and "installing a chart" is recording a
// Deployment record. It satisfies Adapter for single-box demos, the fake
// cloudlet used by Tier-1 integration tests, and the reference cluster
// backend used when no Kubernetes endpoint is configured.
type MemoryAdapter struct {
	cfg       MemoryConfig
	catalog   recipe.Catalog
	log       logging.Logger
	now       func() time.Time
	resources model.Resources

	mu          sync.Mutex
	deployments map[string]*Deployment
}

// NewMemoryAdapter constructs a MemoryAdapter. catalog resolves recipe
// uuids to chart references and restriction flags; resources is the fixed
// bundle GetResources reports (cpu_ratio etc., carbon fields are added by
// the Tier-2 reporting loop separately).
func NewMemoryAdapter(cfg MemoryConfig, catalog recipe.Catalog, resources model.Resources, log logging.Logger) *MemoryAdapter {
	return &MemoryAdapter{
		cfg:         cfg,
		catalog:     catalog,
		log:         log,
		now:         time.Now,
		resources:   resources,
		deployments: make(map[string]*Deployment),
	}
}

func deploymentKey(recipeUUID, applicationKey string) string {
	return recipeUUID + "/" + applicationKey
}

// Get resolves or creates the Deployment for (recipeUUID, applicationKey).
func (a *MemoryAdapter) Get(ctx context.Context, recipeUUID, applicationKey string, create bool) (*Deployment, error) {
	key := deploymentKey(recipeUUID, applicationKey)

	a.mu.Lock()
	defer a.mu.Unlock()

	if d, ok := a.deployments[key]; ok {
		d.lastActiveUnix = a.now().Unix()
		return d, nil
	}
	if !create {
		return nil, nil
	}

	r, err := a.catalog.FromUUID(recipeUUID)
	if err != nil {
		return nil, err
	}

	now := a.now().Unix()
	d := &Deployment{
		UUID:           fmt.Sprintf("%s-%s", recipeUUID, applicationKey),
		ApplicationKey: applicationKey,
		RecipeUUID:     recipeUUID,
		Endpoint:       r.ChartRef,
		Status:         StatusRunning,
		CreatedAtUnix:  now,
		lastActiveUnix: now,
	}
	a.deployments[key] = d
	if a.log != nil {
		a.log.InfoCtx(ctx, "deployment created", "recipe_uuid", recipeUUID, "application_key", applicationKey)
	}
	return d, nil
}

// Expire uninstalls (here: removes) the deployment for (recipeUUID,
// applicationKey) if one exists. Absent is not an error.
func (a *MemoryAdapter) Expire(ctx context.Context, recipeUUID, applicationKey string) error {
	key := deploymentKey(recipeUUID, applicationKey)

	a.mu.Lock()
	defer a.mu.Unlock()

	d, ok := a.deployments[key]
	if !ok {
		return nil
	}
	delete(a.deployments, key)
	if a.log != nil {
		a.log.InfoCtx(ctx, "deployment expired", "uuid", d.UUID)
	}
	return nil
}

// ExpireInactive uninstalls (here: removes) every deployment whose last
// activity predates the configured inactivity window.
func (a *MemoryAdapter) ExpireInactive(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-time.Duration(a.cfg.InactivitySeconds) * time.Second).Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	expired := 0
	for key, d := range a.deployments {
		if d.lastActiveUnix < cutoff {
			delete(a.deployments, key)
			expired++
			if a.log != nil {
				a.log.InfoCtx(ctx, "deployment expired", "uuid", d.UUID)
			}
		}
	}
	return expired, nil
}

// GetResources returns the fixed resource bundle this adapter was
// constructed with, copied so callers can't mutate the adapter's state.
func (a *MemoryAdapter) GetResources(ctx context.Context) (model.Resources, error) {
	out := make(model.Resources, len(a.resources))
	for k, v := range a.resources {
		out[k] = v
	}
	return out, nil
}

// Len reports the number of tracked deployments (test/debug helper).
func (a *MemoryAdapter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.deployments)
}

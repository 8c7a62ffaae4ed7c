// Package cluster implements the consumed Cluster Adapter interface (C12):
// Tier-2's request surface (C10) calls into Cluster to create, fetch, and
// expire per-tenant deployments, and to report aggregate resource
// utilization. Production deployments back this with a Kubernetes/Helm
// cluster; Adapter itself is the interface both a fake (for tests and
// single-box demos) and a real cluster-backed implementation satisfy.
package cluster

import (
	"context"

	"github.com/cmusatyalab/sinfonia/internal/model"
)

// Adapter is the interface Tier-2's request surface and reporting loop
// consume. uuid identifies a recipe, key identifies the requesting tenant;
// the pair addresses one Deployment.
type Adapter interface {
	// Get resolves the Deployment for (uuid, key). When create is true and
	// none exists yet, one is created (and, for a real cluster, its Helm
	// release installed) before being returned. When create is false and
	// none exists, Get returns (nil, nil) — not an error — so C10's GET/DELETE
	// handlers can turn that into a 404/204 without inspecting error kinds.
	Get(ctx context.Context, recipeUUID, applicationKey string, create bool) (*Deployment, error)

	// Expire uninstalls the Deployment for (uuid, key) if one exists. It is
	// a no-op, not an error, when none exists — C10's DELETE handler expires
	// whatever is present and always returns 204 regardless.
	Expire(ctx context.Context, recipeUUID, applicationKey string) error

	// ExpireInactive sweeps every tracked deployment and expires (uninstalls)
	// the ones that have been idle past the adapter's inactivity window.
	// Returns the number of deployments expired.
	ExpireInactive(ctx context.Context) (int, error)

	// GetResources reports the cluster's current aggregate resource
	// utilization, merged into the carbon report Tier-2 sends Tier-1 (C7).
	GetResources(ctx context.Context) (model.Resources, error)
}

// Deployment is one tenant's running instance of a recipe's chart.
type Deployment struct {
	UUID           string `json:"uuid"`
	ApplicationKey string `json:"application_key"`
	RecipeUUID     string `json:"recipe_uuid"`
	Endpoint       string `json:"endpoint"`
	Status         string `json:"status"`
	CreatedAtUnix  int64  `json:"created_at"`
	lastActiveUnix int64
}

// Descriptor projects a Deployment into the wire shape C10 returns from its
// deploy/get endpoints.
func (d *Deployment) Descriptor() model.DeploymentDescriptor {
	return model.DeploymentDescriptor{
		UUID:           d.UUID,
		ApplicationKey: d.ApplicationKey,
		RecipeUUID:     d.RecipeUUID,
		Endpoint:       d.Endpoint,
		Status:         d.Status,
	}
}

package model

import "time"

// DeploymentDescriptor is what a Tier-2 cloudlet returns from a deploy call
// and what Tier-1's dispatcher gathers and interleaves.
type DeploymentDescriptor struct {
	UUID           string    `json:"uuid"`
	ApplicationKey string    `json:"application_key"`
	RecipeUUID     string    `json:"recipe_uuid"`
	Endpoint       string    `json:"endpoint"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

package tier1

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cmusatyalab/sinfonia/internal/model"
)

type seedCloudlet struct {
	UUID      string          `yaml:"uuid"`
	Endpoint  string          `yaml:"endpoint"`
	Locations []model.LatLon  `yaml:"locations"`
	Resources model.Resources `yaml:"resources"`
}

// LoadCloudletsSeed reads a YAML list of cloudlets from path, used to
// preseed the registry with known Tier-2 endpoints at Tier-1 startup (the
// CLOUDLETS/SINFONIA_CLOUDLETS config value). The registry itself stays
// soft state afterward — this only warms the initial snapshot.
func LoadCloudletsSeed(path string) ([]*model.Cloudlet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cloudlets seed: %w", err)
	}
	var entries []seedCloudlet
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse cloudlets seed: %w", err)
	}
	cloudlets := make([]*model.Cloudlet, 0, len(entries))
	for _, e := range entries {
		cloudlets = append(cloudlets, &model.Cloudlet{
			UUID:      e.UUID,
			Endpoint:  e.Endpoint,
			Locations: e.Locations,
			Resources: e.Resources,
		})
	}
	return cloudlets, nil
}

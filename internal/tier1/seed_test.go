package tier1

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCloudletsSeedParsesEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cloudlets.yaml")
	content := `
- uuid: c1
  endpoint: http://cloudlet1
  locations:
    - latitude: 40.4
      longitude: -79.9
  resources:
    cpu_ratio: 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cloudlets, err := LoadCloudletsSeed(path)
	require.NoError(t, err)
	require.Len(t, cloudlets, 1)
	assert.Equal(t, "c1", cloudlets[0].UUID)
	assert.Equal(t, "http://cloudlet1", cloudlets[0].Endpoint)
	assert.Equal(t, 0.2, cloudlets[0].Resources.CPURatio())
}

func TestLoadCloudletsSeedMissingFileErrors(t *testing.T) {
	_, err := LoadCloudletsSeed("/nonexistent/path.yaml")
	assert.Error(t, err)
}

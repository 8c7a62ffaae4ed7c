package carbon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `timestamp,carbon_intensity_gco2_kwh_direct
100,50.0
200,40.0
300,60.0
`

func TestParseAndBounds(t *testing.T) {
	tr, err := Parse("zone-a", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	start, end := tr.Bounds()
	assert.Equal(t, int64(100), start)
	assert.Equal(t, int64(300), end)
}

func TestAverageIntensityExactAndBetween(t *testing.T) {
	tr, err := Parse("zone-a", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 50.0, tr.AverageIntensity(100))
	assert.Equal(t, 50.0, tr.AverageIntensity(150))
	assert.Equal(t, 40.0, tr.AverageIntensity(200))
	assert.Equal(t, 60.0, tr.AverageIntensity(300))
}

func TestAverageIntensityWrapsBeforeStart(t *testing.T) {
	tr, err := Parse("zone-a", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	// A timestamp before start wraps into the trace's range.
	before := tr.AverageIntensity(50)
	assert.Contains(t, []float64{50.0, 40.0, 60.0}, before)
}

func TestAverageIntensityWrapsAfterEnd(t *testing.T) {
	tr, err := Parse("zone-a", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	start, end := tr.Bounds()
	span := end - start + 1
	// One full span past start (end+1) wraps back to the value at start.
	assert.Equal(t, tr.AverageIntensity(start), tr.AverageIntensity(start+span))
}

func TestParseMissingColumnsErrors(t *testing.T) {
	_, err := Parse("zone-a", strings.NewReader("foo,bar\n1,2\n"))
	assert.Error(t, err)
}

func TestParseEmptyRowsErrors(t *testing.T) {
	_, err := Parse("zone-a", strings.NewReader("timestamp,carbon_intensity_gco2_kwh_direct\n"))
	assert.Error(t, err)
}

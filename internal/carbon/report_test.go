package carbon

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	joules float64
	err    error
}

func (f *fakeSampler) Sample(ctx context.Context, windowSeconds int) (float64, error) {
	return f.joules, f.err
}

func TestReporterComputesEmission(t *testing.T) {
	tr, err := Parse("zone-a", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	r := NewReporter(tr, &fakeSampler{joules: 3.6e6}, nil)
	report := r.Report(context.Background(), 100, 15)

	assert.Equal(t, 50.0, report.CarbonIntensityGCO2KWh)
	assert.Equal(t, 3.6e6, report.EnergyUseJoules)
	assert.InDelta(t, 50.0, report.CarbonEmissionGCO2, 1e-9)
}

func TestReporterAbsorbsSamplerFailure(t *testing.T) {
	tr, err := Parse("zone-a", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	r := NewReporter(tr, &fakeSampler{err: errors.New("rapl unavailable")}, nil)
	report := r.Report(context.Background(), 100, 15)

	assert.Equal(t, 0.0, report.EnergyUseJoules)
	assert.Equal(t, 0.0, report.CarbonEmissionGCO2)
}

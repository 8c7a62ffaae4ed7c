// Package tier2 implements the cloudlet-side control plane: the energy/
// carbon reporting loop that pushes a resource bundle to every configured
// Tier-1 (C7), and the deploy/carbon/resu/livez request surface (C10).
package tier2

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmusatyalab/sinfonia/internal/carbon"
	"github.com/cmusatyalab/sinfonia/internal/cluster"
	"github.com/cmusatyalab/sinfonia/internal/model"
)

// Config is Tier-2's runtime configuration.
type Config struct {
	ListenAddr string

	UUID     string
	TIER2URL string
	Location model.LatLon
	Zone     string

	Tier1URLs []string

	ReportIntervalSeconds int
	PowerMeasureMethod    carbon.Method
	RAPLDomainsPath       string
	ObelixBaseURL         string
	ObelixNodeName        string

	TraceGithubRepoURL string

	InactivitySeconds int

	MetricsBackend string
}

// Defaults returns Tier-2's configuration with spec.md §6's documented
// default values.
func Defaults() Config {
	return Config{
		ListenAddr:            ":8081",
		ReportIntervalSeconds: 15,
		PowerMeasureMethod:    carbon.MethodRAPL,
		RAPLDomainsPath:       "/sys/class/powercap",
		InactivitySeconds:     cluster.DefaultMemoryConfig().InactivitySeconds,
		MetricsBackend:        "noop",
	}
}

// FromEnv layers the TIER2_*/SINFONIA_* environment variables named in
// spec.md §6 on top of Defaults().
func FromEnv() (Config, error) {
	cfg := Defaults()

	if v := os.Getenv("SINFONIA_UUID"); v != "" {
		cfg.UUID = v
	}
	if v := os.Getenv("TIER2_URL"); v != "" {
		cfg.TIER2URL = v
	}
	if v := os.Getenv("TIER2_ZONE"); v != "" {
		cfg.Zone = v
	}
	if v := os.Getenv("TIER2_LATITUDE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("parse TIER2_LATITUDE: %w", err)
		}
		cfg.Location.Latitude = f
	}
	if v := os.Getenv("TIER2_LONGITUDE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("parse TIER2_LONGITUDE: %w", err)
		}
		cfg.Location.Longitude = f
	}
	if v := os.Getenv("TIER1_URLS"); v != "" {
		cfg.Tier1URLs = splitCSV(v)
	}
	if v := os.Getenv("REPORT_TO_TIER1_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse REPORT_TO_TIER1_INTERVAL_SECONDS: %w", err)
		}
		cfg.ReportIntervalSeconds = n
	}
	if v := os.Getenv("POWER_MEASURE_METHOD"); v != "" {
		switch carbon.Method(v) {
		case carbon.MethodRAPL, carbon.MethodObelix:
			cfg.PowerMeasureMethod = carbon.Method(v)
		default:
			return cfg, fmt.Errorf("unknown POWER_MEASURE_METHOD %q", v)
		}
	}
	if v := os.Getenv("OBELIX_NODE_NAME"); v != "" {
		cfg.ObelixNodeName = v
	}
	if v := os.Getenv("OBELIX_BASE_URL"); v != "" {
		cfg.ObelixBaseURL = v
	}
	if v := os.Getenv("TRACE_GITHUB_REPO_URL"); v != "" {
		cfg.TraceGithubRepoURL = v
	}
	if v := os.Getenv("PROMETHEUS"); v != "" {
		if ok, _ := strconv.ParseBool(v); ok {
			cfg.MetricsBackend = "prometheus"
		}
	}
	return cfg, nil
}

// ReportingEnabled matches C7's startup precondition: a report job is only
// scheduled when at least one Tier-1 is configured and this node's own
// callback URL is known.
func (c Config) ReportingEnabled() bool {
	return len(c.Tier1URLs) > 0 && c.TIER2URL != ""
}

func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalSeconds) * time.Second
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

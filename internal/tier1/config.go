// Package tier1 implements the registry-side control plane: the cloudlet
// ingest/deploy/recipe HTTP surface (C9), the experiment-clock broadcaster
// (C8), and the carbon-history CSV writer that accompanies deploy traffic.
package tier1

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmusatyalab/sinfonia/internal/match"
	"github.com/cmusatyalab/sinfonia/internal/registry"
)

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

// Config is Tier-1's runtime configuration, assembled from environment
// variables with Defaults() providing fallbacks, mirroring the Config/
// Defaults() shape the teacher uses for its engine-wide config. There is no
// separate validation step beyond FromEnv's parse errors.
type Config struct {
	ListenAddr string

	Matchers              []string
	MatchConfig           match.Config
	RegistryConfig        registry.Config
	CloudletExpirySeconds int
	CloudletsSeedPath     string

	ExperimentBroadcastIntervalSeconds int
	ExperimentTickRateSeconds          int
	InitialCarbonTraceTimestamp        int64
	AdvanceBeforeBroadcast             bool

	RecipesDir            string
	RecipesIndexURL       string
	HistoryLogDir         string
	RotateHistoryOnDeploy bool

	MetricsBackend string
}

// Defaults returns Tier-1's configuration with spec.md §6's documented
// default values.
func Defaults() Config {
	return Config{
		ListenAddr:                         ":8080",
		Matchers:                           []string{match.StageNetwork, match.StageLocation, match.StageCarbonIntensity},
		MatchConfig:                        match.DefaultConfig(),
		RegistryConfig:                     registry.Defaults(),
		CloudletExpirySeconds:              60,
		ExperimentBroadcastIntervalSeconds: 1,
		ExperimentTickRateSeconds:          12,
		AdvanceBeforeBroadcast:             false,
		RecipesDir:                         "RECIPES",
		HistoryLogDir:                      "logs",
		RotateHistoryOnDeploy:              true,
		MetricsBackend:                     "noop",
	}
}

// FromEnv layers environment variables named in spec.md §6 on top of
// Defaults(). Unset variables keep their default value; malformed numeric
// variables are reported as an error rather than silently ignored.
func FromEnv() (Config, error) {
	cfg := Defaults()

	if v := os.Getenv("SINFONIA_MATCHERS"); v != "" {
		cfg.Matchers = splitCSV(v)
	}
	if v := os.Getenv("SINFONIA_CLOUDLETS"); v != "" {
		cfg.CloudletsSeedPath = v
	}
	if v, err := envInt("CLOUDLET_EXPIRY_SECONDS"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.CloudletExpirySeconds = *v
		cfg.RegistryConfig.ExpirySeconds = *v
	}
	if v, err := envInt("EXPERIMENT_BROADCAST_TIMESTAMP_INTERVAL_SECONDS"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.ExperimentBroadcastIntervalSeconds = *v
	}
	if v, err := envInt("EXPERIMENT_TICK_RATE_SECONDS"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.ExperimentTickRateSeconds = *v
	}
	if v, err := envInt64("CARBON_TRACE_TIMESTAMP"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.InitialCarbonTraceTimestamp = *v
	}
	if v := os.Getenv("EXPERIMENT_ADVANCE_BEFORE_BROADCAST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parse EXPERIMENT_ADVANCE_BEFORE_BROADCAST: %w", err)
		}
		cfg.AdvanceBeforeBroadcast = b
	}
	if v := os.Getenv("SINFONIA_RECIPES"); v != "" {
		cfg.RecipesDir = v
	}
	if v := os.Getenv("SINFONIA_RECIPES_INDEX_URL"); v != "" {
		cfg.RecipesIndexURL = v
	}
	if v := os.Getenv("SINFONIA_ROTATE_HISTORY_ON_DEPLOY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parse SINFONIA_ROTATE_HISTORY_ON_DEPLOY: %w", err)
		}
		cfg.RotateHistoryOnDeploy = b
	}
	if v := os.Getenv("SINFONIA_EMPTY_ACCEPTED_MEANS_ALL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parse SINFONIA_EMPTY_ACCEPTED_MEANS_ALL: %w", err)
		}
		cfg.MatchConfig.EmptyAcceptedMeansAcceptAll = b
	}
	if v := os.Getenv("PROMETHEUS"); v != "" {
		if ok, _ := strconv.ParseBool(v); ok {
			cfg.MetricsBackend = "prometheus"
		}
	}
	return cfg, nil
}

func envInt(name string) (*int, error) {
	v := os.Getenv(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return &n, nil
}

func envInt64(name string) (*int64, error) {
	v := os.Getenv(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return &n, nil
}

// BroadcastInterval and TickRate as time.Durations.
func (c Config) BroadcastInterval() time.Duration {
	return time.Duration(c.ExperimentBroadcastIntervalSeconds) * time.Second
}
func (c Config) TickRate() time.Duration {
	return time.Duration(c.ExperimentTickRateSeconds) * time.Second
}

package carbon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

func sleepWindow(ctx context.Context, windowSeconds int) error {
	t := time.NewTimer(time.Duration(windowSeconds) * time.Second)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Method names the energy-sampling strategy a Tier-2 instance is configured
// to use, selected by POWER_MEASURE_METHOD.
type Method string

const (
	MethodRAPL   Method = "rapl"
	MethodObelix Method = "obelix"
)

// Sampler produces a non-negative joule measurement over a window. A
// sampling failure is reported to the caller but must never abort the
// reporting loop — callers log and fall back to 0.0.
type Sampler interface {
	Sample(ctx context.Context, windowSeconds int) (joules float64, err error)
}

// NewSampler builds the Sampler named by method. obelixBaseURL is only
// used by MethodObelix and obelixNode identifies the node to query.
func NewSampler(method Method, raplDomainsPath, obelixBaseURL, obelixNode string) Sampler {
	switch method {
	case MethodObelix:
		return &obelixSampler{baseURL: obelixBaseURL, node: obelixNode, client: http.DefaultClient}
	default:
		return &raplSampler{domainsPath: raplDomainsPath}
	}
}

// raplSampler reads Intel RAPL energy counters from the powercap sysfs tree
// (/sys/class/powercap/intel-rapl:*/energy_uj), taking two snapshots
// window apart and summing the per-domain deltas into joules. This mirrors
// the package/DRAM domain summation the reference RAPL monitor performs,
// without the external `rapl` library dependency.
type raplSampler struct {
	domainsPath string
}

func (s *raplSampler) Sample(ctx context.Context, windowSeconds int) (float64, error) {
	root := s.domainsPath
	if root == "" {
		root = "/sys/class/powercap"
	}
	before, err := readRAPLDomains(root)
	if err != nil {
		return 0, fmt.Errorf("rapl sample (before): %w", err)
	}
	if err := sleepWindow(ctx, windowSeconds); err != nil {
		return 0, err
	}
	after, err := readRAPLDomains(root)
	if err != nil {
		return 0, fmt.Errorf("rapl sample (after): %w", err)
	}

	var total float64
	for domain, startUJ := range before {
		endUJ, ok := after[domain]
		if !ok {
			continue
		}
		delta := endUJ - startUJ
		if delta < 0 {
			// Counter wrapped (max_energy_range_uj rollover); skip rather
			// than guess.
			continue
		}
		total += float64(delta) / 1e6 // microjoules -> joules
	}
	return total, nil
}

func readRAPLDomains(root string) (map[string]int64, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "intel-rapl:") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(root, e.Name(), "energy_uj"))
		if err != nil {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			continue
		}
		out[e.Name()] = v
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no RAPL domains found under %s", root)
	}
	return out, nil
}

// obelixSampler queries a remote power-monitor HTTP endpoint rather than
// reading local hardware counters, for Tier-2 nodes whose power draw is
// metered externally.
type obelixSampler struct {
	baseURL string
	node    string
	client  *http.Client
}

type obelixResponse struct {
	Data struct {
		EnergyUseJoules float64 `json:"eu"`
	} `json:"data"`
}

func (s *obelixSampler) Sample(ctx context.Context, windowSeconds int) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v1/monitor/%s/energy", strings.TrimRight(s.baseURL, "/"), url.PathEscape(s.node))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	q := req.URL.Query()
	q.Set("tsec", strconv.Itoa(windowSeconds))
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("obelix power monitor returned %d", resp.StatusCode)
	}
	var body obelixResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode obelix response: %w", err)
	}
	return body.Data.EnergyUseJoules, nil
}

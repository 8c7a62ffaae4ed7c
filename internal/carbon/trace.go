// Package carbon implements the carbon trace store (C1), the energy
// sampler (C2), and the carbon reporter (C3) that combines them.
package carbon

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/cmusatyalab/sinfonia/internal/apierr"
)

// Row is one `(timestamp, carbon_intensity_gco2_kwh)` sample.
type Row struct {
	TimestampUnix int64
	IntensityGCO2 float64
}

// Trace is a per-zone, time-ordered carbon-intensity table loaded once from
// an upstream CSV at Tier-2 boot. Lookups normalize the requested timestamp
// into the table's range by wraparound so a fixed trace can be replayed
// indefinitely by an experiment clock that ticks past its end.
type Trace struct {
	zone string
	rows []Row // sorted ascending by TimestampUnix
}

// Fetch downloads repoURL exactly as given and returns a populated Trace
// tagged with zone; it does not build a zone- or year-specific path from
// repoURL. The CSV must have a header row and at least
// `timestamp`/`carbon_intensity_gco2_kwh_direct` columns (see Parse).
// Non-2xx responses are reported as apierr.Upstream.
func Fetch(ctx context.Context, client *http.Client, zone, repoURL string) (*Trace, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, repoURL, nil)
	if err != nil {
		return nil, apierr.Internal("build carbon trace request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, apierr.Upstream("fetch carbon trace", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Upstream(fmt.Sprintf("carbon trace upstream returned %d", resp.StatusCode), nil)
	}
	return Parse(zone, resp.Body)
}

// Parse reads a CSV carbon trace from r. Expects a header naming
// "timestamp" and "carbon_intensity_gco2_kwh_direct" columns (additional
// columns are ignored).
func Parse(zone string, r io.Reader) (*Trace, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, apierr.Upstream("read carbon trace header", err)
	}
	tsCol, ciCol := -1, -1
	for i, h := range header {
		switch h {
		case "timestamp":
			tsCol = i
		case "carbon_intensity_gco2_kwh_direct":
			ciCol = i
		}
	}
	if tsCol < 0 || ciCol < 0 {
		return nil, apierr.Upstream("carbon trace missing required columns", nil)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apierr.Upstream("read carbon trace row", err)
		}
		if tsCol >= len(rec) || ciCol >= len(rec) {
			continue
		}
		ts, err := strconv.ParseInt(rec[tsCol], 10, 64)
		if err != nil {
			continue
		}
		ci, err := strconv.ParseFloat(rec[ciCol], 64)
		if err != nil {
			continue
		}
		rows = append(rows, Row{TimestampUnix: ts, IntensityGCO2: ci})
	}
	if len(rows) == 0 {
		return nil, apierr.Upstream("carbon trace contained no usable rows", nil)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TimestampUnix < rows[j].TimestampUnix })
	return &Trace{zone: zone, rows: rows}, nil
}

// Bounds returns the inclusive [start, end] unix-timestamp range of the trace.
func (t *Trace) Bounds() (start, end int64) {
	return t.rows[0].TimestampUnix, t.rows[len(t.rows)-1].TimestampUnix
}

// Zone returns the zone the trace was loaded for.
func (t *Trace) Zone() string { return t.zone }

// AverageIntensity returns the carbon intensity of the row whose timestamp
// is the greatest value <= the (possibly wrapped) query timestamp. A
// timestamp outside [start, end] is normalized by wraparound: `t' = start +
// ((t - start) mod (end - start + 1))`, so a broadcast experiment clock
// that advances past the trace's end replays it from the beginning.
func (t *Trace) AverageIntensity(timestamp int64) float64 {
	start, end := t.Bounds()
	span := end - start + 1
	if span <= 0 {
		return t.rows[0].IntensityGCO2
	}
	norm := start + floorMod(timestamp-start, span)

	// Binary search for the greatest row timestamp <= norm.
	lo, hi := 0, len(t.rows)-1
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if t.rows[mid].TimestampUnix <= norm {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return t.rows[best].IntensityGCO2
}

// floorMod is like a % b but always returns a non-negative result for
// positive b, matching Python's `%` semantics used by the reference model.
func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// ExperimentClock returns the trace's start timestamp, a convenient default
// starting value for the broadcaster's clock. now is not used.
func (t *Trace) ExperimentClock(now time.Time) int64 {
	start, _ := t.Bounds()
	return start
}

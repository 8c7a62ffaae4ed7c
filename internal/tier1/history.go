package tier1

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cmusatyalab/sinfonia/internal/model"
)

var historyColumns = []string{"unix_time", "endpoint", "carbon_intensity", "energy_use", "carbon_emission", "cpu_ratio"}

// HistoryWriter appends one carbon-history row per cloudlet ingest to a
// CSV file, switching to a freshly named file on Rotate (the "new
// experiment run" marker fired after a /deploy call). An append-only CSV
// is created lazily on first write, columns per spec.md §4.9/§6.
type HistoryWriter struct {
	dir string

	mu      sync.Mutex
	path    string
	rotated bool
}

// NewHistoryWriter creates dir if needed and sets
// dir/cloudlets_carbon_history.csv as the writer's initial target; the file
// itself is created by the first Append.
func NewHistoryWriter(dir string) (*HistoryWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history log directory: %w", err)
	}
	return &HistoryWriter{dir: dir, path: filepath.Join(dir, "cloudlets_carbon_history.csv")}, nil
}

// Append writes one row for a cloudlet ingest. unixTime is normally the
// ingest wall-clock time; resources supplies the numeric fields, missing
// ones written as empty.
func (w *HistoryWriter) Append(unixTime int64, endpoint string, resources model.Resources) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	needsHeader := !w.fileExists()
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open carbon history log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(historyColumns); err != nil {
			return fmt.Errorf("write carbon history header: %w", err)
		}
	}

	ci, _ := resources.Float(model.ResourceCarbonIntensity)
	eu, _ := resources.Float(model.ResourceEnergyUseJoules)
	ce, _ := resources.Float(model.ResourceCarbonEmissionGCO2)
	row := []string{
		strconv.FormatInt(unixTime, 10),
		endpoint,
		strconv.FormatFloat(ci, 'g', -1, 64),
		strconv.FormatFloat(eu, 'g', -1, 64),
		strconv.FormatFloat(ce, 'g', -1, 64),
		strconv.FormatFloat(resources.CPURatio(), 'g', -1, 64),
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write carbon history row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// Rotate switches future writes to a new file named logs/{unixNow}.csv,
// marking the start of a new experiment run. Subsequent Append calls
// create that file with a fresh header on first write.
func (w *HistoryWriter) Rotate(unixNow int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.path = filepath.Join(w.dir, fmt.Sprintf("%d.csv", unixNow))
	w.rotated = true
}

func (w *HistoryWriter) fileExists() bool {
	_, err := os.Stat(w.path)
	return err == nil
}

// Path reports the file currently being written to (test/debug helper).
func (w *HistoryWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

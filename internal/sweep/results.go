package sweep

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"gridsweep/internal/grid"
)

// ResultWriter emits one CSV row per completed evaluation: index, every
// dimension value, outcome, score, duration. Rows are flushed as they arrive
// so a killed run still leaves a usable file.
type ResultWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	dims []grid.Dimension
}

// NewResultWriter creates path and writes the header row.
func NewResultWriter(path string, dims []grid.Dimension) (*ResultWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)

	header := make([]string, 0, len(dims)+4)
	header = append(header, "index")
	for _, d := range dims {
		header = append(header, d.Name)
	}
	header = append(header, "outcome", "score", "duration_ms")
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	return &ResultWriter{f: f, w: w, dims: dims}, nil
}

// Write appends one evaluation row. Safe for concurrent use.
func (rw *ResultWriter) Write(p grid.Point, outcome string, score float64, d time.Duration) error {
	row := make([]string, 0, len(rw.dims)+4)
	row = append(row, strconv.FormatInt(p.Index, 10))
	for _, b := range p.Bindings {
		row = append(row, strconv.FormatFloat(b.Value, 'f', 6, 64))
	}
	row = append(row, outcome)
	if outcome == "ok" {
		row = append(row, strconv.FormatFloat(score, 'f', 2, 64))
	} else {
		row = append(row, "")
	}
	row = append(row, strconv.FormatInt(d.Milliseconds(), 10))

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if err := rw.w.Write(row); err != nil {
		return err
	}
	rw.w.Flush()
	return rw.w.Error()
}

func (rw *ResultWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.w.Flush()
	if err := rw.w.Error(); err != nil {
		rw.f.Close()
		return err
	}
	return rw.f.Close()
}

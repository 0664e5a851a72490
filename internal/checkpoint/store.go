// Package checkpoint persists the best score found so far and the parameter
// point that produced it.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"gridsweep/internal/grid"
)

// Record is the durable best-result state. Constants keeps the rendered
// assignment block so checkpoint files stay readable alongside the values map.
type Record struct {
	MaxProfit float64            `json:"max_profit"`
	Constants string             `json:"constants"`
	Values    map[string]float64 `json:"values,omitempty"`
	Index     int64              `json:"index,omitempty"`
	UpdatedAt time.Time          `json:"updated_at,omitempty"`
}

// RecordFor builds a candidate record from a scored point.
func RecordFor(p grid.Point, constants string, score float64) Record {
	return Record{
		MaxProfit: score,
		Constants: constants,
		Values:    p.Values(),
		Index:     p.Index,
	}
}

// FileStore is a durable, linearizable best-record store backed by one JSON
// file. Updates happen under a single mutex and are written with a temp-file
// rename, so a reader never sees a torn record and a crash after a successful
// TryUpdate never loses the result.
type FileStore struct {
	path string

	mu   sync.Mutex
	best Record
}

// Open loads the last persisted record, or seeds an in-memory sentinel with
// score -Inf when no checkpoint exists yet. The sentinel is not written to
// disk; the file appears on the first real improvement.
func Open(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		best: Record{MaxProfit: math.Inf(-1)},
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.best); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return s, nil
}

// Best returns the current best record.
func (s *FileStore) Best() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.best
}

// TryUpdate atomically installs candidate if its score strictly exceeds the
// stored score, completing the durable write before returning true. Ties and
// non-improvements return false without touching disk, so the first point to
// reach a given optimum is the one that stays recorded.
func (s *FileStore) TryUpdate(candidate Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !(candidate.MaxProfit > s.best.MaxProfit) {
		return false, nil
	}
	candidate.UpdatedAt = time.Now().UTC()
	if err := s.write(candidate); err != nil {
		return false, fmt.Errorf("persist checkpoint: %w", err)
	}
	s.best = candidate
	return true, nil
}

func (s *FileStore) write(r Record) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path) // atomic replace
}

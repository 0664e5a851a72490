package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gridsweep/internal/artifact"
	"gridsweep/internal/checkpoint"
	"gridsweep/internal/config"
	"gridsweep/internal/evaluator"
)

// FromConfig assembles a ready-to-run Scheduler from a validated run
// configuration: parses the template, opens the checkpoint and wires the
// evaluator. When the config names a results CSV the returned scheduler owns
// a ResultWriter; Close releases it.
func FromConfig(cfg *config.Config) (*Scheduler, error) {
	space, err := cfg.Space()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", cfg.Template, err)
	}
	tmpl, err := artifact.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", cfg.Template, err)
	}

	store, err := checkpoint.Open(cfg.Checkpoint)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		Space:    space,
		Template: tmpl,
		Eval: &evaluator.Runner{
			Binary:       cfg.Evaluator,
			Scenario:     cfg.Scenario,
			ArtifactName: filepath.Base(cfg.Template),
			Timeout:      time.Duration(cfg.Timeout),
			LogDir:       cfg.LogsDir,
		},
		Store:         store,
		Workers:       cfg.Workers,
		StartIndex:    cfg.ResumeFrom,
		Grace:         time.Duration(cfg.Grace),
		Top:           cfg.Top,
		ProgressEvery: 100,
	}

	if cfg.ResultsCSV != "" {
		rw, err := NewResultWriter(cfg.ResultsCSV, space.Dimensions())
		if err != nil {
			return nil, fmt.Errorf("open results csv %s: %w", cfg.ResultsCSV, err)
		}
		s.Results = rw
	}
	return s, nil
}

// Close releases resources owned by the scheduler (currently the optional
// results writer).
func (s *Scheduler) Close() error {
	if s.Results != nil {
		return s.Results.Close()
	}
	return nil
}

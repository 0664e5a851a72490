package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gridsweep/internal/grid"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk run configuration shape (YAML).
type Config struct {
	// Evaluator is the external scoring binary, invoked as:
	// evaluator <artifact-path> <scenario>.
	Evaluator string `yaml:"evaluator"`
	Scenario  string `yaml:"scenario"`

	// Template is the artifact containing the substitutable region.
	Template string `yaml:"template"`

	// Checkpoint is the best-record file, loaded at startup to resume.
	Checkpoint string `yaml:"checkpoint"`

	Workers    int      `yaml:"workers"`     // 0 = available hardware parallelism
	Timeout    Duration `yaml:"timeout"`     // per-evaluation
	Grace      Duration `yaml:"grace"`       // in-flight allowance after cancellation
	ResumeFrom int64    `yaml:"resume_from"` // first point index to evaluate

	ResultsCSV string `yaml:"results_csv"` // optional per-evaluation CSV
	LogsDir    string `yaml:"logs_dir"`    // optional per-evaluation diagnostic logs
	Top        int    `yaml:"top"`         // leaderboard size in the run summary

	Dimensions []DimensionConfig `yaml:"dimensions"`
}

type DimensionConfig struct {
	Name  string  `yaml:"name"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Steps int     `yaml:"steps"`
}

// Duration wraps time.Duration for YAML values like "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file is given; dimensions
// and paths still have to come from flags.
func Default() *Config {
	return &Config{
		Scenario:   "0",
		Checkpoint: "best.json",
		Timeout:    Duration(2 * time.Minute),
		Grace:      Duration(10 * time.Second),
		Top:        10,
	}
}

// Load reads, defaults and validates a run configuration.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and defaults the config but does not validate it.
// Useful when CLI flags will fill in the rest before validation.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Evaluator == "" {
		return errors.New("evaluator is required")
	}
	if c.Template == "" {
		return errors.New("template is required")
	}
	if c.Checkpoint == "" {
		return errors.New("checkpoint is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.ResumeFrom < 0 {
		return fmt.Errorf("resume_from must be >= 0, got %d", c.ResumeFrom)
	}
	// Validate dimensions by constructing the grid space.
	if _, err := c.Space(); err != nil {
		return fmt.Errorf("dimensions invalid: %w", err)
	}
	return nil
}

// Space builds the parameter space described by the config's dimensions.
func (c *Config) Space() (*grid.Space, error) {
	dims := make([]grid.Dimension, len(c.Dimensions))
	for i, d := range c.Dimensions {
		dims[i] = grid.Dimension{Name: d.Name, Start: d.Start, End: d.End, Steps: d.Steps}
	}
	return grid.NewSpace(dims)
}

// Overrides carries CLI flag values layered over the file config.
// Zero values mean "not set"; ResumeFrom uses -1 because 0 is meaningful.
type Overrides struct {
	Evaluator  string
	Scenario   string
	Template   string
	Checkpoint string
	ResultsCSV string
	LogsDir    string
	Workers    int
	Timeout    time.Duration
	Grace      time.Duration
	ResumeFrom int64
	Dimensions []DimensionConfig
}

// Apply overlays non-zero override fields onto the config. A dimension
// override replaces the config dimension with the same name, or appends.
func (c *Config) Apply(o Overrides) {
	if o.Evaluator != "" {
		c.Evaluator = o.Evaluator
	}
	if o.Scenario != "" {
		c.Scenario = o.Scenario
	}
	if o.Template != "" {
		c.Template = o.Template
	}
	if o.Checkpoint != "" {
		c.Checkpoint = o.Checkpoint
	}
	if o.ResultsCSV != "" {
		c.ResultsCSV = o.ResultsCSV
	}
	if o.LogsDir != "" {
		c.LogsDir = o.LogsDir
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.Timeout != 0 {
		c.Timeout = Duration(o.Timeout)
	}
	if o.Grace != 0 {
		c.Grace = Duration(o.Grace)
	}
	if o.ResumeFrom >= 0 {
		c.ResumeFrom = o.ResumeFrom
	}
	for _, od := range o.Dimensions {
		replaced := false
		for i, d := range c.Dimensions {
			if d.Name == od.Name {
				c.Dimensions[i] = od
				replaced = true
				break
			}
		}
		if !replaced {
			c.Dimensions = append(c.Dimensions, od)
		}
	}
}

package models

// SweepRequest represents the request body for starting a sweep.
// It mirrors the run configuration file; durations are strings like "90s".
type SweepRequest struct {
	Evaluator  string `json:"evaluator" binding:"required"`
	Scenario   string `json:"scenario,omitempty"`
	Template   string `json:"template" binding:"required"`
	Checkpoint string `json:"checkpoint,omitempty"`

	Workers    int    `json:"workers,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	Grace      string `json:"grace,omitempty"`
	ResumeFrom int64  `json:"resume_from,omitempty"`

	ResultsCSV string `json:"results_csv,omitempty"`
	LogsDir    string `json:"logs_dir,omitempty"`
	Top        int    `json:"top,omitempty"`

	Dimensions []DimensionSpec `json:"dimensions" binding:"required"`
}

// DimensionSpec defines one grid axis.
type DimensionSpec struct {
	Name  string  `json:"name" binding:"required"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Steps int     `json:"steps" binding:"required"`
}

// PreviewRequest asks for the size and leading points of a grid without
// running anything.
type PreviewRequest struct {
	Dimensions []DimensionSpec `json:"dimensions" binding:"required"`
	Limit      int             `json:"limit,omitempty"` // default 10
}

package models

import "time"

// SweepStatus reports the state of one sweep run.
type SweepStatus struct {
	ID    string `json:"id"`
	State string `json:"state"` // "running", "completed", "failed", "cancelled"

	Completed int64 `json:"completed"`
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded,omitempty"`
	Improved  int64 `json:"improved,omitempty"`

	ParseErrors   int64 `json:"parse_errors,omitempty"`
	Timeouts      int64 `json:"timeouts,omitempty"`
	ProcessErrors int64 `json:"process_errors,omitempty"`

	Best *BestRecord `json:"best,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// BestRecord is the checkpoint record shape exposed over the API.
type BestRecord struct {
	MaxProfit float64            `json:"max_profit"`
	Constants string             `json:"constants"`
	Values    map[string]float64 `json:"values,omitempty"`
	Index     int64              `json:"index,omitempty"`
	UpdatedAt time.Time          `json:"updated_at,omitempty"`
}

// SweepListResponse lists known sweeps.
type SweepListResponse struct {
	Sweeps []SweepStatus `json:"sweeps"`
}

// PreviewResponse describes a grid without evaluating it.
type PreviewResponse struct {
	Count  int64          `json:"count"`
	Points []PreviewPoint `json:"points"`
}

// PreviewPoint is one enumerated point.
type PreviewPoint struct {
	Index  int64              `json:"index"`
	Values map[string]float64 `json:"values"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

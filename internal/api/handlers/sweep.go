package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"gridsweep/internal/api/models"
	"gridsweep/internal/checkpoint"
	"gridsweep/internal/config"
	"gridsweep/internal/sweep"

	"github.com/gin-gonic/gin"
)

// SweepHandler starts, inspects and cancels sweep runs. Runs execute in
// background goroutines; the registry keeps their state for polling.
type SweepHandler struct {
	mu   sync.Mutex
	seq  int
	runs map[string]*sweepRun
}

func NewSweepHandler() *SweepHandler {
	return &SweepHandler{runs: make(map[string]*sweepRun)}
}

type sweepRun struct {
	id        string
	sched     *sweep.Scheduler
	cancel    context.CancelFunc
	startedAt time.Time

	mu         sync.Mutex
	state      string
	summary    *sweep.Summary
	err        error
	finishedAt time.Time
}

// StartSweep handles POST /api/v1/sweeps.
func (h *SweepHandler) StartSweep(c *gin.Context) {
	var req models.SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	cfg, err := requestToConfig(req)
	if err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		badRequest(c, "INVALID_CONFIG", err.Error())
		return
	}

	sched, err := sweep.FromConfig(cfg)
	if err != nil {
		badRequest(c, "SWEEP_SETUP_FAILED", err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.seq++
	run := &sweepRun{
		id:        fmt.Sprintf("sweep-%d", h.seq),
		sched:     sched,
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		state:     "running",
	}
	h.runs[run.id] = run
	h.mu.Unlock()

	go func() {
		defer cancel()
		summary, err := sched.Run(ctx)
		if cerr := sched.Close(); cerr != nil && err == nil {
			err = cerr
		}

		run.mu.Lock()
		defer run.mu.Unlock()
		run.summary = summary
		run.err = err
		run.finishedAt = time.Now().UTC()
		switch {
		case err != nil:
			run.state = "failed"
		case summary != nil && summary.Cancelled:
			run.state = "cancelled"
		default:
			run.state = "completed"
		}
		if err != nil {
			log.Printf("[API] sweep %s failed: %v", run.id, err)
		}
	}()

	c.JSON(http.StatusAccepted, run.status())
}

// ListSweeps handles GET /api/v1/sweeps.
func (h *SweepHandler) ListSweeps(c *gin.Context) {
	h.mu.Lock()
	runs := make([]*sweepRun, 0, len(h.runs))
	for _, r := range h.runs {
		runs = append(runs, r)
	}
	h.mu.Unlock()

	out := models.SweepListResponse{Sweeps: make([]models.SweepStatus, 0, len(runs))}
	for _, r := range runs {
		out.Sweeps = append(out.Sweeps, r.status())
	}
	sort.Slice(out.Sweeps, func(i, j int) bool { return out.Sweeps[i].ID < out.Sweeps[j].ID })
	c.JSON(http.StatusOK, out)
}

// GetSweep handles GET /api/v1/sweeps/:id.
func (h *SweepHandler) GetSweep(c *gin.Context) {
	run := h.lookup(c)
	if run == nil {
		return
	}
	c.JSON(http.StatusOK, run.status())
}

// CancelSweep handles DELETE /api/v1/sweeps/:id. In-flight evaluations get
// the configured grace period before their process trees are killed.
func (h *SweepHandler) CancelSweep(c *gin.Context) {
	run := h.lookup(c)
	if run == nil {
		return
	}
	run.cancel()
	c.JSON(http.StatusAccepted, run.status())
}

func (h *SweepHandler) lookup(c *gin.Context) *sweepRun {
	h.mu.Lock()
	run, ok := h.runs[c.Param("id")]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.ErrorDetail{
			Code:    "SWEEP_NOT_FOUND",
			Message: fmt.Sprintf("no sweep with id %q", c.Param("id")),
		}})
		return nil
	}
	return run
}

func (r *sweepRun) status() models.SweepStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := models.SweepStatus{
		ID:        r.id,
		State:     r.state,
		StartedAt: r.startedAt,
	}
	if r.summary != nil {
		st.Completed = r.summary.Completed
		st.Total = r.summary.Total
		st.Succeeded = r.summary.Succeeded
		st.Improved = r.summary.Improved
		st.ParseErrors = r.summary.ParseErrors
		st.Timeouts = r.summary.Timeouts
		st.ProcessErrors = r.summary.ProcessErrors
		st.Best = bestRecord(r.summary.Best)
		t := r.finishedAt
		st.FinishedAt = &t
	} else {
		st.Completed, st.Total = r.sched.Progress()
		st.Best = bestRecord(r.sched.Store.Best())
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	return st
}

func bestRecord(rec checkpoint.Record) *models.BestRecord {
	if rec.Constants == "" && rec.Values == nil {
		// Sentinel record: nothing found yet, and -Inf does not serialize.
		return nil
	}
	return &models.BestRecord{
		MaxProfit: rec.MaxProfit,
		Constants: rec.Constants,
		Values:    rec.Values,
		Index:     rec.Index,
		UpdatedAt: rec.UpdatedAt,
	}
}

func requestToConfig(req models.SweepRequest) (*config.Config, error) {
	cfg := config.Default()
	cfg.Evaluator = req.Evaluator
	cfg.Template = req.Template
	if req.Scenario != "" {
		cfg.Scenario = req.Scenario
	}
	if req.Checkpoint != "" {
		cfg.Checkpoint = req.Checkpoint
	}
	cfg.Workers = req.Workers
	cfg.ResumeFrom = req.ResumeFrom
	cfg.ResultsCSV = req.ResultsCSV
	cfg.LogsDir = req.LogsDir
	if req.Top != 0 {
		cfg.Top = req.Top
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		cfg.Timeout = config.Duration(d)
	}
	if req.Grace != "" {
		d, err := time.ParseDuration(req.Grace)
		if err != nil {
			return nil, fmt.Errorf("invalid grace: %w", err)
		}
		cfg.Grace = config.Duration(d)
	}
	for _, d := range req.Dimensions {
		cfg.Dimensions = append(cfg.Dimensions, config.DimensionConfig{
			Name: d.Name, Start: d.Start, End: d.End, Steps: d.Steps,
		})
	}
	return cfg, nil
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrorDetail{
		Code:    code,
		Message: message,
	}})
}

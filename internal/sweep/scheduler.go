// Package sweep drives a bounded-concurrency parameter sweep: patch the
// template, evaluate the result, record improvements.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gridsweep/internal/artifact"
	"gridsweep/internal/checkpoint"
	"gridsweep/internal/evaluator"
	"gridsweep/internal/grid"
)

// Evaluator scores one rendered artifact. *evaluator.Runner is the production
// implementation; tests substitute fakes.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluator.Request) (evaluator.Result, error)
}

// Store records the best result. *checkpoint.FileStore is the production
// implementation.
type Store interface {
	Best() checkpoint.Record
	TryUpdate(candidate checkpoint.Record) (bool, error)
}

// Scheduler fans a parameter space out over a bounded pool of workers.
//
// The only shared mutable state is the dispatch cursor (atomic) and the
// Store (internally synchronized); no critical section spans an evaluation,
// so a worker only ever blocks on its own subprocess.
type Scheduler struct {
	Space    *grid.Space
	Template *artifact.Template
	Eval     Evaluator
	Store    Store

	// Workers is the pool size; 0 means runtime.NumCPU().
	Workers int

	// StartIndex is the first point index to dispatch (resume support).
	StartIndex int64

	// Grace is how long in-flight evaluations may keep running after the
	// run context is cancelled before their process trees are killed.
	Grace time.Duration

	// Results, when non-nil, receives one row per completed evaluation.
	Results *ResultWriter

	// Top is the leaderboard size kept in the summary (0 disables it).
	Top int

	// ProgressEvery logs a progress line every N completions (0 disables).
	ProgressEvery int64

	cursor    atomic.Int64
	completed atomic.Int64
	total     atomic.Int64

	succeeded atomic.Int64
	improved  atomic.Int64
	parseErrs atomic.Int64
	timeouts  atomic.Int64
	procErrs  atomic.Int64

	fatalMu  sync.Mutex
	fatalErr error

	board *leaderboard
}

// Summary reports what a run did.
type Summary struct {
	Total     int64
	Completed int64
	Succeeded int64
	Improved  int64

	ParseErrors   int64
	Timeouts      int64
	ProcessErrors int64

	Best        checkpoint.Record
	Leaderboard []Entry
	Elapsed     time.Duration
	Cancelled   bool
}

// Run dispatches every point from StartIndex to the end of the space, or
// until ctx is cancelled or the Store fails to persist an improvement.
// Per-evaluation failures are counted and skipped; they never stop the run.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	if s.Space == nil || s.Template == nil || s.Eval == nil || s.Store == nil {
		return nil, errors.New("scheduler: space, template, evaluator and store are all required")
	}
	total := s.Space.Count()
	s.total.Store(total)
	if s.StartIndex < 0 || s.StartIndex > total {
		return nil, fmt.Errorf("scheduler: start index %d out of range [0, %d]", s.StartIndex, total)
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	s.cursor.Store(s.StartIndex)
	s.board = newLeaderboard(s.Top)

	// dispatchCtx stops new work: on run cancellation or on a fatal store
	// error. evalCtx outlives it by Grace so in-flight subprocesses can
	// finish before their process groups are killed.
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	evalCtx, killEvals := context.WithCancel(context.Background())
	defer killEvals()

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-dispatchCtx.Done():
			if s.Grace > 0 {
				t := time.NewTimer(s.Grace)
				defer t.Stop()
				select {
				case <-t.C:
				case <-evalCtx.Done():
				}
			}
			killEvals()
		case <-evalCtx.Done():
		}
	}()

	started := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(dispatchCtx, evalCtx, stopDispatch)
		}()
	}
	wg.Wait()
	killEvals()
	<-watcherDone

	summary := &Summary{
		Total:         total,
		Completed:     s.completed.Load(),
		Succeeded:     s.succeeded.Load(),
		Improved:      s.improved.Load(),
		ParseErrors:   s.parseErrs.Load(),
		Timeouts:      s.timeouts.Load(),
		ProcessErrors: s.procErrs.Load(),
		Best:          s.Store.Best(),
		Leaderboard:   s.board.entries(),
		Elapsed:       time.Since(started),
		Cancelled:     ctx.Err() != nil,
	}
	if err := s.fatal(); err != nil {
		return summary, err
	}
	return summary, nil
}

// worker claims indices until the space is exhausted or dispatch stops.
func (s *Scheduler) worker(dispatchCtx, evalCtx context.Context, stopDispatch context.CancelFunc) {
	for {
		if dispatchCtx.Err() != nil {
			return
		}
		index := s.cursor.Add(1) - 1
		if index >= s.total.Load() {
			return
		}

		point, err := s.Space.PointAt(index)
		if err != nil {
			s.setFatal(fmt.Errorf("build point %d: %w", index, err), stopDispatch)
			return
		}
		constants := artifact.FormatBindings(point)
		rendered := s.Template.Render(constants)

		res, err := s.Eval.Evaluate(evalCtx, evaluator.Request{
			ID:        point.ID(),
			Index:     index,
			Artifact:  rendered,
			Constants: constants,
		})
		if err != nil && evalCtx.Err() != nil {
			// Killed by cancellation, not a result for this point.
			return
		}

		done := s.completed.Add(1)
		if err != nil {
			s.recordFailure(point, res, err, stopDispatch)
		} else {
			s.recordSuccess(point, constants, res, stopDispatch)
		}
		if s.ProgressEvery > 0 && done%s.ProgressEvery == 0 {
			log.Printf("[Sweep] progress %d/%d", done, s.total.Load())
		}
	}
}

func (s *Scheduler) recordSuccess(point grid.Point, constants string, res evaluator.Result, stopDispatch context.CancelFunc) {
	s.succeeded.Add(1)
	s.board.offer(Entry{Index: point.Index, Constants: constants, Score: res.Score, Duration: res.Duration})
	if s.Results != nil {
		if err := s.Results.Write(point, "ok", res.Score, res.Duration); err != nil {
			log.Printf("[Sweep] results csv: %v", err)
		}
	}

	improved, err := s.Store.TryUpdate(checkpoint.RecordFor(point, constants, res.Score))
	if err != nil {
		// Losing a found optimum defeats the run; stop everything.
		s.setFatal(fmt.Errorf("checkpoint update for point %d: %w", point.Index, err), stopDispatch)
		return
	}
	if improved {
		s.improved.Add(1)
		log.Printf("[Sweep] new best %.2f at point %d:\n%s", res.Score, point.Index, constants)
	}
}

func (s *Scheduler) recordFailure(point grid.Point, res evaluator.Result, err error, stopDispatch context.CancelFunc) {
	var (
		parseErr   *evaluator.ParseError
		timeoutErr *evaluator.TimeoutError
		processErr *evaluator.ProcessError
	)
	outcome := ""
	switch {
	case errors.As(err, &parseErr):
		s.parseErrs.Add(1)
		outcome = "parse_error"
	case errors.As(err, &timeoutErr):
		s.timeouts.Add(1)
		outcome = "timeout"
	case errors.As(err, &processErr):
		s.procErrs.Add(1)
		outcome = "process_error"
	default:
		// Not an evaluation outcome: workspace or exec infrastructure broke.
		s.setFatal(fmt.Errorf("evaluate point %d: %w", point.Index, err), stopDispatch)
		return
	}

	log.Printf("[Sweep] point %d %s: %v", point.Index, outcome, err)
	if s.Results != nil {
		if werr := s.Results.Write(point, outcome, 0, res.Duration); werr != nil {
			log.Printf("[Sweep] results csv: %v", werr)
		}
	}
}

func (s *Scheduler) setFatal(err error, stopDispatch context.CancelFunc) {
	s.fatalMu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.fatalMu.Unlock()
	stopDispatch()
}

func (s *Scheduler) fatal() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatalErr
}

// Progress returns completed and total point counts for the run.
func (s *Scheduler) Progress() (done, total int64) {
	return s.completed.Load(), s.total.Load()
}

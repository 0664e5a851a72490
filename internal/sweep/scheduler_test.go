package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gridsweep/internal/artifact"
	"gridsweep/internal/checkpoint"
	"gridsweep/internal/evaluator"
	"gridsweep/internal/grid"
)

const testTemplate = "preamble\n# start\nX = 0\n# end\npostamble\n"

func testSpace(t *testing.T) *grid.Space {
	t.Helper()
	s, err := grid.NewSpace([]grid.Dimension{
		{Name: "A", Start: 0, End: 1, Steps: 5},
		{Name: "B", Start: 0, End: 10, Steps: 5},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testStore(t *testing.T) *checkpoint.FileStore {
	t.Helper()
	st, err := checkpoint.Open(filepath.Join(t.TempDir(), "best.json"))
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func parseTemplate(t *testing.T) *artifact.Template {
	t.Helper()
	tmpl, err := artifact.Parse(testTemplate)
	if err != nil {
		t.Fatal(err)
	}
	return tmpl
}

// fakeEval adapts a function to the Evaluator interface.
type fakeEval func(ctx context.Context, req evaluator.Request) (evaluator.Result, error)

func (f fakeEval) Evaluate(ctx context.Context, req evaluator.Request) (evaluator.Result, error) {
	return f(ctx, req)
}

// scoreFor gives each index a distinct deterministic score.
func scoreFor(index int64) float64 {
	return float64((index*7919)%1000) - 500
}

func TestRunRecordsMaximum(t *testing.T) {
	space := testSpace(t)
	store := testStore(t)
	s := &Scheduler{
		Space:    space,
		Template: parseTemplate(t),
		Eval: fakeEval(func(_ context.Context, req evaluator.Request) (evaluator.Result, error) {
			return evaluator.Result{Score: scoreFor(req.Index), Duration: time.Microsecond}, nil
		}),
		Store:   store,
		Workers: 8,
		Top:     3,
	}

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := scoreFor(0)
	for i := int64(1); i < space.Count(); i++ {
		if sc := scoreFor(i); sc > want {
			want = sc
		}
	}
	if sum.Best.MaxProfit != want {
		t.Errorf("Best = %v, want %v", sum.Best.MaxProfit, want)
	}
	if sum.Completed != space.Count() || sum.Succeeded != space.Count() {
		t.Errorf("Completed/Succeeded = %d/%d, want %d", sum.Completed, sum.Succeeded, space.Count())
	}
	if sum.Improved < 1 {
		t.Errorf("Improved = %d, want >= 1", sum.Improved)
	}
	if len(sum.Leaderboard) != 3 {
		t.Fatalf("Leaderboard size = %d, want 3", len(sum.Leaderboard))
	}
	if sum.Leaderboard[0].Score != want {
		t.Errorf("Leaderboard[0] = %v, want %v", sum.Leaderboard[0].Score, want)
	}
	if sum.Leaderboard[0].Score < sum.Leaderboard[1].Score || sum.Leaderboard[1].Score < sum.Leaderboard[2].Score {
		t.Errorf("leaderboard not sorted: %+v", sum.Leaderboard)
	}
}

func TestWorkersNeverSeeAnotherPointsArtifact(t *testing.T) {
	space := testSpace(t)
	tmpl := parseTemplate(t)
	var mismatches atomic.Int64

	s := &Scheduler{
		Space:    space,
		Template: tmpl,
		Eval: fakeEval(func(_ context.Context, req evaluator.Request) (evaluator.Result, error) {
			// Rebuild what this unit's artifact must look like from the
			// dispatched index alone; any cross-unit sharing shows up as a
			// mismatch.
			p, err := space.PointAt(req.Index)
			if err != nil {
				return evaluator.Result{}, err
			}
			if want := tmpl.Render(artifact.FormatBindings(p)); req.Artifact != want {
				mismatches.Add(1)
			}
			return evaluator.Result{Score: 1}, nil
		}),
		Store:   testStore(t),
		Workers: 16,
	}

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := mismatches.Load(); n != 0 {
		t.Errorf("%d evaluations saw an artifact for a different point", n)
	}
}

func TestFailuresAreCountedAndSkipped(t *testing.T) {
	space := testSpace(t) // 25 points
	s := &Scheduler{
		Space:    space,
		Template: parseTemplate(t),
		Eval: fakeEval(func(_ context.Context, req evaluator.Request) (evaluator.Result, error) {
			switch req.Index % 5 {
			case 1:
				return evaluator.Result{}, &evaluator.ParseError{Output: "junk"}
			case 2:
				return evaluator.Result{}, &evaluator.TimeoutError{Timeout: time.Second}
			case 3:
				return evaluator.Result{}, &evaluator.ProcessError{ExitCode: 2, Stderr: "boom"}
			default:
				return evaluator.Result{Score: float64(req.Index)}, nil
			}
		}),
		Store:   testStore(t),
		Workers: 4,
	}

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.ParseErrors != 5 || sum.Timeouts != 5 || sum.ProcessErrors != 5 {
		t.Errorf("failure counts = %d/%d/%d, want 5/5/5", sum.ParseErrors, sum.Timeouts, sum.ProcessErrors)
	}
	if sum.Succeeded != 10 {
		t.Errorf("Succeeded = %d, want 10", sum.Succeeded)
	}
	// Highest successful index is 24 (24 % 5 == 4).
	if sum.Best.MaxProfit != 24 {
		t.Errorf("Best = %v, want 24", sum.Best.MaxProfit)
	}
}

func TestPreloadedCheckpointSurvivesWorseRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best.json")
	raw, _ := json.Marshal(checkpoint.Record{MaxProfit: 100, Constants: "A = 9"})
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := checkpoint.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	s := &Scheduler{
		Space:    testSpace(t),
		Template: parseTemplate(t),
		Eval: fakeEval(func(_ context.Context, _ evaluator.Request) (evaluator.Result, error) {
			return evaluator.Result{Score: 80}, nil
		}),
		Store:   store,
		Workers: 4,
	}
	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Improved != 0 {
		t.Errorf("Improved = %d, want 0", sum.Improved)
	}
	if sum.Best.MaxProfit != 100 || sum.Best.Constants != "A = 9" {
		t.Errorf("Best = %+v, want preloaded record", sum.Best)
	}
}

func TestCancellationStopsDispatch(t *testing.T) {
	space := testSpace(t)
	started := make(chan struct{}, 32)
	s := &Scheduler{
		Space:    space,
		Template: parseTemplate(t),
		Eval: fakeEval(func(ctx context.Context, _ evaluator.Request) (evaluator.Result, error) {
			started <- struct{}{}
			<-ctx.Done()
			return evaluator.Result{}, ctx.Err()
		}),
		Store:   testStore(t),
		Workers: 2,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	sum, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Cancelled {
		t.Error("summary not marked cancelled")
	}
	if sum.Completed >= space.Count() {
		t.Errorf("Completed = %d, dispatch did not stop", sum.Completed)
	}
}

func TestGracePeriodLetsInFlightFinish(t *testing.T) {
	var finished atomic.Int64
	s := &Scheduler{
		Space:    testSpace(t),
		Template: parseTemplate(t),
		Eval: fakeEval(func(ctx context.Context, _ evaluator.Request) (evaluator.Result, error) {
			// Simulates a subprocess that outlives cancellation but fits in
			// the grace window.
			select {
			case <-time.After(100 * time.Millisecond):
				finished.Add(1)
				return evaluator.Result{Score: 1}, nil
			case <-ctx.Done():
				return evaluator.Result{}, ctx.Err()
			}
		}),
		Store:   testStore(t),
		Workers: 2,
		Grace:   5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sum, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finished.Load() == 0 {
		t.Error("no in-flight evaluation finished inside the grace period")
	}
	if sum.Succeeded == 0 {
		t.Error("grace-period completions not recorded")
	}
}

// failStore accepts reads but cannot persist.
type failStore struct{}

func (f *failStore) Best() checkpoint.Record { return checkpoint.Record{} }
func (f *failStore) TryUpdate(checkpoint.Record) (bool, error) {
	return false, errors.New("disk full")
}

func TestStorePersistenceFailureIsFatal(t *testing.T) {
	s := &Scheduler{
		Space:    testSpace(t),
		Template: parseTemplate(t),
		Eval: fakeEval(func(_ context.Context, req evaluator.Request) (evaluator.Result, error) {
			return evaluator.Result{Score: float64(req.Index)}, nil
		}),
		Store:   &failStore{},
		Workers: 4,
	}
	_, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run must fail when the checkpoint cannot be persisted")
	}
	if got := err.Error(); !strings.Contains(got, "checkpoint") || !strings.Contains(got, "disk full") {
		t.Errorf("error %q does not name the failing stage", got)
	}
}

func TestResumeFromStartIndex(t *testing.T) {
	var seen sync.Map
	space := testSpace(t)
	s := &Scheduler{
		Space:    space,
		Template: parseTemplate(t),
		Eval: fakeEval(func(_ context.Context, req evaluator.Request) (evaluator.Result, error) {
			seen.Store(req.Index, true)
			return evaluator.Result{Score: 0}, nil
		}),
		Store:      testStore(t),
		Workers:    4,
		StartIndex: 20,
	}
	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Completed != 5 {
		t.Errorf("Completed = %d, want 5", sum.Completed)
	}
	for i := int64(0); i < 20; i++ {
		if _, ok := seen.Load(i); ok {
			t.Errorf("point %d evaluated despite resume index 20", i)
		}
	}
}

// Package evaluator runs the external scoring process against a rendered
// artifact and parses its score.
package evaluator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// scorePrefix marks the one stdout line that carries the score.
const scorePrefix = "Total profit"

// Request identifies one evaluation of one parameter point.
type Request struct {
	// ID is unique per evaluation and appears in workspace and log names.
	ID string

	// Index is the point's position in the enumeration order.
	Index int64

	// Artifact is the fully rendered artifact text.
	Artifact string

	// Constants is the assignment block substituted into the artifact,
	// kept for diagnostic logs only.
	Constants string
}

// Result is the successful outcome of one evaluation.
type Result struct {
	Score    float64
	Duration time.Duration
}

// Runner executes the scoring process. Each evaluation gets a private
// workspace directory that is removed on every exit path, so concurrent
// evaluations never observe each other's artifacts.
type Runner struct {
	// Binary is the scoring process, invoked as: Binary <artifact-path> <Scenario>.
	Binary string

	// Scenario is the second argument passed to the scoring process.
	Scenario string

	// ArtifactName is the file name the artifact is written under inside the
	// workspace. Callers typically use the template's base name so the
	// scoring process sees a familiar extension.
	ArtifactName string

	// Timeout bounds one evaluation. Zero means no limit.
	Timeout time.Duration

	// LogDir, when set, receives a per-evaluation diagnostic log. Log write
	// failures never fail the evaluation.
	LogDir string

	// WorkDir is the parent for per-evaluation workspaces. Empty uses the
	// system temp directory.
	WorkDir string
}

// Evaluate writes the artifact into a fresh workspace, runs the scoring
// process against it and parses the score from stdout.
//
// Failure kinds: *ParseError, *TimeoutError, *ProcessError are per-evaluation
// and non-fatal for a sweep; a context cancellation or workspace I/O error is
// returned as-is.
func (r *Runner) Evaluate(ctx context.Context, req Request) (Result, error) {
	dir, err := os.MkdirTemp(r.WorkDir, "gridsweep-"+req.ID+"-")
	if err != nil {
		return Result{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	name := r.ArtifactName
	if name == "" {
		name = "artifact.txt"
	}
	artifactPath := filepath.Join(dir, name)
	if err := os.WriteFile(artifactPath, []byte(req.Artifact), 0o644); err != nil {
		return Result{}, fmt.Errorf("write artifact: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	started := time.Now()
	stdout, stderr, exitCode, runErr := r.run(runCtx, artifactPath)
	elapsed := time.Since(started)

	res, outcome := r.classify(ctx, runCtx, stdout, stderr, exitCode, runErr)
	res.Duration = elapsed
	r.writeLog(req, artifactPath, stdout, stderr, res, outcome)
	return res, outcome
}

// run starts the scoring process in its own process group and waits for it.
// On cancellation the whole group is killed so no descendants are orphaned.
func (r *Runner) run(ctx context.Context, artifactPath string) (stdout, stderr string, exitCode int, err error) {
	cmd := exec.Command(r.Binary, artifactPath, r.Scenario)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Start(); err != nil {
		return "", "", 0, fmt.Errorf("start %s: %w", r.Binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		// Negative pid targets the process group.
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return outBuf.String(), errBuf.String(), 0, ctx.Err()
	case waitErr := <-done:
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				return outBuf.String(), errBuf.String(), exitErr.ExitCode(), nil
			}
			return outBuf.String(), errBuf.String(), 0, waitErr
		}
		return outBuf.String(), errBuf.String(), 0, nil
	}
}

func (r *Runner) classify(ctx, runCtx context.Context, stdout, stderr string, exitCode int, runErr error) (Result, error) {
	switch {
	case runErr != nil && ctx.Err() != nil:
		// Run-level cancellation, not a per-evaluation outcome.
		return Result{}, ctx.Err()
	case runErr != nil && runCtx.Err() == context.DeadlineExceeded:
		return Result{}, &TimeoutError{Timeout: r.Timeout}
	case runErr != nil:
		return Result{}, runErr
	case exitCode != 0:
		return Result{}, &ProcessError{ExitCode: exitCode, Stderr: stderr}
	}

	score, ok := ParseScore(stdout)
	if !ok {
		return Result{}, &ParseError{Output: stdout}
	}
	return Result{Score: score}, nil
}

// ParseScore scans output for the first line beginning with the score prefix
// and parses the remainder as a number, stripping thousands separators.
// "Total profit: 1,234.5" parses to 1234.5.
func ParseScore(output string) (float64, bool) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, scorePrefix) {
			continue
		}
		rest := strings.TrimLeft(line[len(scorePrefix):], ": \t")
		rest = strings.TrimSpace(strings.ReplaceAll(rest, ",", ""))
		score, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return 0, false
		}
		return score, true
	}
	return 0, false
}

// writeLog appends a best-effort diagnostic record for one evaluation,
// bucketed 100 to a directory so huge sweeps stay browsable.
func (r *Runner) writeLog(req Request, artifactPath, stdout, stderr string, res Result, outcome error) {
	if r.LogDir == "" {
		return
	}
	bucket := (req.Index / 100) * 100
	dir := filepath.Join(r.LogDir, fmt.Sprintf("%d-%d", bucket, bucket+99))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Index: %d\n", req.Index)
	fmt.Fprintf(&b, "Constants:\n%s\n", req.Constants)
	fmt.Fprintf(&b, "Command: %s %s %s\n", r.Binary, artifactPath, r.Scenario)
	if outcome == nil {
		fmt.Fprintf(&b, "Score: %.2f\n", res.Score)
	} else {
		fmt.Fprintf(&b, "Outcome: %v\n", outcome)
	}
	fmt.Fprintf(&b, "Duration: %s\n", res.Duration)
	fmt.Fprintf(&b, "stdout:\n%s\n", stdout)
	fmt.Fprintf(&b, "stderr:\n%s\n", stderr)

	path := filepath.Join(dir, fmt.Sprintf("log_%d.txt", req.Index))
	os.WriteFile(path, []byte(b.String()), 0o644)
}

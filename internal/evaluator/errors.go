package evaluator

import (
	"fmt"
	"time"
)

// ParseError means the scoring process finished but its output contained no
// usable score line. The evaluation contributes no score; the sweep continues.
type ParseError struct {
	Output string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no %q line found in evaluator output (%d bytes)", scorePrefix, len(e.Output))
}

// TimeoutError means the scoring process exceeded the per-evaluation timeout
// and was killed together with its descendants.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("evaluator exceeded timeout of %s", e.Timeout)
}

// ProcessError means the scoring process exited non-zero. Stderr is kept for
// diagnostics.
type ProcessError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("evaluator exited with status %d", e.ExitCode)
}

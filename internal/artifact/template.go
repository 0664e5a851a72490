// Package artifact renders parameter points into the substitutable region of
// an evaluator script.
package artifact

import (
	"fmt"
	"strconv"
	"strings"

	"gridsweep/internal/grid"
)

const (
	// StartMarker and EndMarker delimit the substitutable region. Each must
	// appear exactly once, on its own line, start before end.
	StartMarker = "# start"
	EndMarker   = "# end"
)

// TemplateError reports a template whose marker lines are missing,
// duplicated, or misordered. It is fatal for the run.
type TemplateError struct {
	Reason string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("malformed template: %s", e.Reason)
}

// Template is a parsed artifact split at the two marker lines. Rendering is a
// pure text transform; writing the result somewhere private to an evaluation
// is the caller's job.
type Template struct {
	preamble  string // everything up to and including the start marker line
	postamble string // everything from the end marker line onward
}

// Parse splits text at the marker lines. All bytes outside the region between
// the markers are preserved exactly as given, including the markers themselves.
func Parse(text string) (*Template, error) {
	lines := strings.SplitAfter(text, "\n")

	start, end := -1, -1
	for i, line := range lines {
		switch strings.TrimSpace(line) {
		case StartMarker:
			if start >= 0 {
				return nil, &TemplateError{Reason: fmt.Sprintf("duplicate %q marker", StartMarker)}
			}
			start = i
		case EndMarker:
			if end >= 0 {
				return nil, &TemplateError{Reason: fmt.Sprintf("duplicate %q marker", EndMarker)}
			}
			end = i
		}
	}
	if start < 0 {
		return nil, &TemplateError{Reason: fmt.Sprintf("missing %q marker", StartMarker)}
	}
	if end < 0 {
		return nil, &TemplateError{Reason: fmt.Sprintf("missing %q marker", EndMarker)}
	}
	if start >= end {
		return nil, &TemplateError{Reason: fmt.Sprintf("%q marker appears before %q", EndMarker, StartMarker)}
	}

	pre := strings.Join(lines[:start+1], "")
	post := strings.Join(lines[end:], "")
	if !strings.HasSuffix(pre, "\n") {
		// Start marker was the last line and had no trailing newline; the
		// rendered block still needs to begin on its own line.
		pre += "\n"
	}
	return &Template{preamble: pre, postamble: post}, nil
}

// Render substitutes block for the region between the markers. The block is
// written verbatim with a trailing newline so the end marker stays on its own
// line.
func (t *Template) Render(block string) string {
	var b strings.Builder
	b.Grow(len(t.preamble) + len(block) + 1 + len(t.postamble))
	b.WriteString(t.preamble)
	b.WriteString(block)
	if !strings.HasSuffix(block, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(t.postamble)
	return b.String()
}

// FormatBindings renders a point as the assignment block the evaluator
// scripts expect: one "NAME = value" line per dimension, in dimension order.
func FormatBindings(p grid.Point) string {
	var b strings.Builder
	for i, bind := range p.Bindings {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(bind.Name)
		b.WriteString(" = ")
		b.WriteString(strconv.FormatFloat(bind.Value, 'g', -1, 64))
	}
	return b.String()
}

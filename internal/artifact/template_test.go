package artifact

import (
	"errors"
	"strings"
	"testing"

	"gridsweep/internal/grid"
)

const sample = `import math

# start
ALPHA = 0.1
# end

def run():
    return ALPHA
`

func TestRenderReplacesOnlyRegion(t *testing.T) {
	tmpl, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	first := tmpl.Render("ALPHA = 0.25")
	second := tmpl.Render("ALPHA = 0.5\nBETA = 3")

	wantFirst := `import math

# start
ALPHA = 0.25
# end

def run():
    return ALPHA
`
	if first != wantFirst {
		t.Errorf("first render:\n%q\nwant:\n%q", first, wantFirst)
	}

	// Everything outside the markers must be byte-identical across renders.
	for _, out := range []string{first, second} {
		pre, _, ok := strings.Cut(out, "# start\n")
		if !ok {
			t.Fatalf("render lost start marker:\n%q", out)
		}
		_, post, ok := strings.Cut(out, "# end")
		if !ok {
			t.Fatalf("render lost end marker:\n%q", out)
		}
		if pre != "import math\n\n" {
			t.Errorf("preamble changed: %q", pre)
		}
		if post != "\n\ndef run():\n    return ALPHA\n" {
			t.Errorf("postamble changed: %q", post)
		}
	}

	if !strings.Contains(second, "BETA = 3") {
		t.Errorf("second render missing substituted block:\n%q", second)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no markers", "x = 1\n"},
		{"missing end", "# start\nx = 1\n"},
		{"missing start", "x = 1\n# end\n"},
		{"misordered", "# end\nx = 1\n# start\n"},
		{"duplicate start", "# start\n# start\nx\n# end\n"},
		{"duplicate end", "# start\nx\n# end\n# end\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.text)
			var te *TemplateError
			if !errors.As(err, &te) {
				t.Fatalf("Parse(%q) err = %v, want TemplateError", tc.text, err)
			}
		})
	}
}

func TestParseIndentedMarkers(t *testing.T) {
	// Markers may carry surrounding whitespace; the line content decides.
	tmpl, err := Parse("head\n  # start\nbody\n\t# end\ntail\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := tmpl.Render("X = 1")
	if !strings.HasPrefix(out, "head\n  # start\nX = 1\n") {
		t.Errorf("unexpected render:\n%q", out)
	}
	if !strings.HasSuffix(out, "\t# end\ntail\n") {
		t.Errorf("unexpected render tail:\n%q", out)
	}
}

func TestFormatBindings(t *testing.T) {
	p := grid.Point{
		Index: 7,
		Bindings: []grid.Binding{
			{Name: "ALPHA_EARLY", Value: 0.001},
			{Name: "BASESPREAD", Value: 0.015},
			{Name: "MAX_ORDER", Value: 25},
		},
	}
	got := FormatBindings(p)
	want := "ALPHA_EARLY = 0.001\nBASESPREAD = 0.015\nMAX_ORDER = 25"
	if got != want {
		t.Errorf("FormatBindings = %q, want %q", got, want)
	}
}

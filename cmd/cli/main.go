package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gridsweep/internal/config"
	"gridsweep/internal/sweep"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "sweep":
		cmdSweep(os.Args[2:])
	case "preview":
		cmdPreview(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli sweep --config run.yaml [--workers N] [--timeout 90s] [--dim NAME=START:END:STEPS ...]")
	fmt.Println("  cli preview --config run.yaml [-n 10] [--dim NAME=START:END:STEPS ...]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - sweep evaluates every grid point with the external evaluator and keeps the best in the checkpoint file")
	fmt.Println("  - preview prints the point count and leading points without running anything")
	fmt.Println("  - repeated --dim flags replace same-named config dimensions or add new ones")
}

// dimFlags collects repeated --dim NAME=START:END:STEPS values.
type dimFlags []config.DimensionConfig

func (d *dimFlags) String() string {
	parts := make([]string, len(*d))
	for i, dc := range *d {
		parts[i] = fmt.Sprintf("%s=%g:%g:%d", dc.Name, dc.Start, dc.End, dc.Steps)
	}
	return strings.Join(parts, ",")
}

func (d *dimFlags) Set(s string) error {
	name, spec, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected NAME=START:END:STEPS, got %q", s)
	}
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return fmt.Errorf("expected NAME=START:END:STEPS, got %q", s)
	}
	start, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return fmt.Errorf("bad start in %q: %w", s, err)
	}
	end, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return fmt.Errorf("bad end in %q: %w", s, err)
	}
	steps, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("bad steps in %q: %w", s, err)
	}
	*d = append(*d, config.DimensionConfig{Name: name, Start: start, End: end, Steps: steps})
	return nil
}

// sweepFlags binds the shared flag set and returns the loaded, merged config.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	cfgPath := fs.String("config", "", "Path to YAML run config (optional if --dim and paths are given)")
	evaluator := fs.String("evaluator", "", "Scoring binary, run as: <evaluator> <artifact> <scenario>")
	scenario := fs.String("scenario", "", "Scenario id passed to the evaluator")
	template := fs.String("template", "", "Artifact template containing the '# start'/'# end' region")
	checkpointPath := fs.String("checkpoint", "", "Best-record file, resumed on startup")
	workers := fs.Int("workers", 0, "Worker count (0 = all CPUs)")
	timeout := fs.Duration("timeout", 0, "Per-evaluation timeout")
	grace := fs.Duration("grace", 0, "Grace period for in-flight evaluations on cancellation")
	resumeFrom := fs.Int64("resume-from", -1, "First point index to evaluate")
	resultsCSV := fs.String("csv", "", "Optional CSV of every evaluation")
	logsDir := fs.String("logs", "", "Optional directory for per-evaluation diagnostic logs")
	var dims dimFlags
	fs.Var(&dims, "dim", "Dimension as NAME=START:END:STEPS (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.LoadUnchecked(*cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.Apply(config.Overrides{
		Evaluator:  *evaluator,
		Scenario:   *scenario,
		Template:   *template,
		Checkpoint: *checkpointPath,
		ResultsCSV: *resultsCSV,
		LogsDir:    *logsDir,
		Workers:    *workers,
		Timeout:    *timeout,
		Grace:      *grace,
		ResumeFrom: *resumeFrom,
		Dimensions: dims,
	})
	return cfg, nil
}

func cmdSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	sched, err := sweep.FromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(2)
	}
	defer sched.Close()

	if best := sched.Store.Best(); !math.IsInf(best.MaxProfit, -1) {
		fmt.Printf("Resuming with best profit %.2f from %s\n", best.MaxProfit, cfg.Checkpoint)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	fmt.Printf("Sweeping %s points with %d workers\n", countLabel(cfg), workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := sched.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}

	printSummary(summary)
	if summary.Cancelled {
		fmt.Printf("Sweep cancelled after %d evaluations\n", summary.Completed)
	}
}

func cmdPreview(args []string) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	n := fs.Int("n", 10, "Number of leading points to print")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	space, err := cfg.Space()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid dimensions: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("%d points across %d dimensions\n", space.Count(), len(space.Dimensions()))
	limit := int64(*n)
	if limit > space.Count() {
		limit = space.Count()
	}
	for i := int64(0); i < limit; i++ {
		p, err := space.PointAt(i)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		parts := make([]string, len(p.Bindings))
		for j, b := range p.Bindings {
			parts[j] = fmt.Sprintf("%s=%g", b.Name, b.Value)
		}
		fmt.Printf("%-8d %s\n", i, strings.Join(parts, " "))
	}
}

func countLabel(cfg *config.Config) string {
	space, err := cfg.Space()
	if err != nil {
		return "?"
	}
	return strconv.FormatInt(space.Count()-cfg.ResumeFrom, 10)
}

func printSummary(s *sweep.Summary) {
	fmt.Printf("Completed %d/%d evaluations in %s (ok=%d parse=%d timeout=%d process=%d improved=%d)\n",
		s.Completed, s.Total, s.Elapsed.Round(time.Millisecond),
		s.Succeeded, s.ParseErrors, s.Timeouts, s.ProcessErrors, s.Improved)

	if math.IsInf(s.Best.MaxProfit, -1) {
		fmt.Println("No successful evaluation produced a score")
		return
	}
	fmt.Printf("Best profit %.2f at point %d:\n%s\n", s.Best.MaxProfit, s.Best.Index, s.Best.Constants)

	if len(s.Leaderboard) > 0 {
		fmt.Printf("%-4s %-8s %-14s %-10s\n", "rank", "point", "profit", "duration")
		for i, e := range s.Leaderboard {
			fmt.Printf("%-4d %-8d %-14.2f %-10s\n", i+1, e.Index, e.Score, e.Duration.Round(time.Millisecond))
		}
	}
}

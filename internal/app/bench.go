package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/oshokin/fetchcore/internal/client/fetch"
	"github.com/oshokin/fetchcore/internal/engine"
	"github.com/oshokin/fetchcore/internal/logger"
)

// DefaultBenchIterations is the number of requests per phase when none is given.
const DefaultBenchIterations = 10_000

// ErrInvalidIterations indicates a non-positive iteration count.
var ErrInvalidIterations = errors.New("iterations must be a positive integer")

// BenchOptions configures a benchmark run.
type BenchOptions struct {
	// Request is issued Iterations times per phase.
	Request engine.Request
	// Iterations is the number of requests per phase.
	Iterations int
	// ProgressWriter receives progress bars; nil disables them.
	ProgressWriter io.Writer
}

// BenchPhase holds the statistics of one benchmark phase.
type BenchPhase struct {
	// Name is "sequential" or "parallel".
	Name string
	// Requests is the number of issued requests.
	Requests int
	// Failures is the number of requests that ended with an error.
	Failures int
	// Bytes is the total size of the received bodies.
	Bytes int64
	// Duration is the wall time of the phase.
	Duration time.Duration
	// FirstError is the first failure observed, if any.
	FirstError error
}

// RequestsPerSecond returns the throughput of the phase.
func (p *BenchPhase) RequestsPerSecond() float64 {
	if p.Duration <= 0 {
		return 0
	}

	return float64(p.Requests) / p.Duration.Seconds()
}

// BenchReport holds both phases of a benchmark run.
type BenchReport struct {
	// Sequential awaits each request before issuing the next.
	Sequential BenchPhase
	// Parallel issues every request first and then awaits them all.
	Parallel BenchPhase
}

// benchRecorder accumulates phase statistics from concurrent completions.
type benchRecorder struct {
	mu    sync.Mutex
	phase BenchPhase
	bar   *progressbar.ProgressBar
}

func newBenchRecorder(name string, iterations int, progressWriter io.Writer) *benchRecorder {
	recorder := &benchRecorder{phase: BenchPhase{Name: name}}

	if progressWriter != nil {
		recorder.bar = progressbar.NewOptions(iterations,
			progressbar.OptionSetWriter(progressWriter),
			progressbar.OptionSetDescription(name),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish())
	}

	return recorder
}

func (r *benchRecorder) record(result *engine.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase.Requests++

	if err != nil {
		r.phase.Failures++

		if r.phase.FirstError == nil {
			r.phase.FirstError = err
		}
	} else {
		r.phase.Bytes += int64(result.Body.Len())
	}

	if r.bar != nil {
		_ = r.bar.Add(1)
	}
}

func (r *benchRecorder) finish(duration time.Duration) BenchPhase {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar != nil {
		_ = r.bar.Finish()
	}

	r.phase.Duration = duration

	return r.phase
}

// ExecuteBenchCommand issues opts.Request opts.Iterations times sequentially,
// then the same number of times all at once, and reports both phases.
func ExecuteBenchCommand(ctx context.Context, client fetch.Client, opts BenchOptions) (*BenchReport, error) {
	if opts.Iterations <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIterations, opts.Iterations)
	}

	logger.Infof(ctx, "Performing %d iterations against '%s'", opts.Iterations, opts.Request.URL)

	sequential, err := runSequential(ctx, client, opts)
	if err != nil {
		return nil, err
	}

	parallel, err := runParallel(ctx, client, opts)
	if err != nil {
		return nil, err
	}

	return &BenchReport{Sequential: sequential, Parallel: parallel}, nil
}

func runSequential(ctx context.Context, client fetch.Client, opts BenchOptions) (BenchPhase, error) {
	recorder := newBenchRecorder("sequential", opts.Iterations, opts.ProgressWriter)
	startTime := time.Now()

	for range opts.Iterations {
		if err := ctx.Err(); err != nil {
			return BenchPhase{}, fmt.Errorf("sequential phase interrupted: %w", err)
		}

		recorder.record(client.Fetch(ctx, opts.Request))
	}

	return recorder.finish(time.Since(startTime)), nil
}

func runParallel(ctx context.Context, client fetch.Client, opts BenchOptions) (BenchPhase, error) {
	recorder := newBenchRecorder("parallel", opts.Iterations, opts.ProgressWriter)
	startTime := time.Now()

	tasks := make([]*engine.Task[*engine.Result], 0, opts.Iterations)
	for range opts.Iterations {
		tasks = append(tasks, client.FetchAsync(ctx, opts.Request))
	}

	for _, task := range tasks {
		result, err := task.Await(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return BenchPhase{}, fmt.Errorf("parallel phase interrupted: %w", ctxErr)
		}

		recorder.record(result, err)
	}

	return recorder.finish(time.Since(startTime)), nil
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	minutes := int(d.Minutes())
	seconds := d.Seconds() - float64(minutes*60)

	if minutes > 0 {
		return fmt.Sprintf("%dm %.1fs", minutes, seconds)
	}

	return fmt.Sprintf("%.2fs", seconds)
}

// PrintBenchSummary prints a formatted summary of both benchmark phases.
func PrintBenchSummary(ctx context.Context, report *BenchReport) {
	logger.Info(ctx, "")
	logger.Info(ctx, "Benchmark Summary")
	logger.Info(ctx, "=================")

	for _, phase := range []*BenchPhase{&report.Sequential, &report.Parallel} {
		printPhase(ctx, phase)
	}
}

func printPhase(ctx context.Context, phase *BenchPhase) {
	logger.Info(ctx, "")
	logger.Infof(ctx, "%s:", phase.Name)
	logger.Infof(ctx, "  Requests:        %s", humanize.Comma(int64(phase.Requests)))
	logger.Infof(ctx, "  Duration:        %s", formatDuration(phase.Duration))
	logger.Infof(ctx, "  Throughput:      %s rps", humanize.CommafWithDigits(phase.RequestsPerSecond(), 0))

	if phase.Bytes > 0 {
		//nolint:gosec // Bytes is a sum of body lengths and never negative.
		logger.Infof(ctx, "  Data Received:   %s", humanize.Bytes(uint64(phase.Bytes)))
	}

	if phase.Failures > 0 {
		logger.Infof(ctx, "  Failed:          %d", phase.Failures)
		logger.Infof(ctx, "  First Error:     %v", phase.FirstError)
	}
}

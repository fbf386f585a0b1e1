// Package pipeline orchestrates the two batch stages: per-file anomaly
// computation and per-file deseasonalization. Files are independent units of
// work fanned out over a fixed-size worker pool; one file's failure is
// recorded as a critical-error artifact and never stops the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/observability"
)

// FileProcessor handles one source file end to end.
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) error
}

// Result is the explicit outcome of one file task.
type Result struct {
	File string
	Err  error
}

// Summary aggregates a completed batch run.
type Summary struct {
	Processed int
	Failed    int
	Elapsed   time.Duration
}

// Runner fans source files out to a fixed pool of workers. Shared inputs
// (the baseline index, item specs, region map) live inside the processor and
// are read-only after construction, so workers share them without copying.
type Runner struct {
	workers  int
	errorDir string
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock

	started atomic.Bool
	done    atomic.Int64
	total   atomic.Int64
}

// NewRunner creates a Runner writing critical-error artifacts into errorDir.
func NewRunner(workers int, errorDir string, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		workers:  workers,
		errorDir: errorDir,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

// CheckReadiness reports progress for the optional HTTP endpoint: ready once
// at least one file has completed.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.started.Load() {
		return errors.New("batch has not started")
	}
	if r.done.Load() == 0 {
		return errors.New("no files completed yet")
	}
	return nil
}

// Progress reports how many files have completed out of the batch total.
// Total is zero until Run is called.
func (r *Runner) Progress() (done, total int64) {
	return r.done.Load(), r.total.Load()
}

// Run processes every file through proc and returns the batch summary.
// Task order is not guaranteed; each file's outputs are self-contained.
// Failures (including panics inside a task) are caught at the task boundary,
// written as critical-error artifacts, counted, and never re-raised: best
// effort batch semantics, exit code stays zero.
func (r *Runner) Run(ctx context.Context, files []string, proc FileProcessor) Summary {
	start := r.clock.Now()
	r.total.Store(int64(len(files)))
	r.started.Store(true)
	r.metrics.BatchRunning.Set(1)
	defer r.metrics.BatchRunning.Set(0)

	tasks := make(chan string)
	results := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range tasks {
				results <- Result{File: path, Err: r.runTask(ctx, proc, path)}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, f := range files {
			select {
			case tasks <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var summary Summary
	for res := range results {
		r.done.Add(1)
		name := sourceName(res.File)
		if res.Err != nil {
			summary.Failed++
			r.metrics.FileFailures.Inc()
			r.logger.Error("file failed", "file", name, "error", res.Err)
			if werr := csvio.WriteCriticalError(r.errorDir, name, r.clock.Now(), res.Err); werr != nil {
				r.logger.Error("could not record critical error", "file", name, "error", werr)
			}
			continue
		}
		summary.Processed++
		r.metrics.FilesProcessed.Inc()
		r.logger.Info("file processed", "file", name, "completed", summary.Processed+summary.Failed, "total", len(files))
	}

	summary.Elapsed = r.clock.Since(start)
	return summary
}

// runTask wraps one file task, converting panics into task errors so a
// malformed file cannot take down the pool.
func (r *Runner) runTask(ctx context.Context, proc FileProcessor, path string) (err error) {
	start := r.clock.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic processing %s: %v", sourceName(path), rec)
		}
		r.metrics.FileDuration.Observe(r.clock.Since(start).Seconds())
	}()
	return proc.ProcessFile(ctx, path)
}

// sourceName is the file's base name without extension, used to key every
// per-file output artifact.
func sourceName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

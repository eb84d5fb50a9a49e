package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner manages a set of workers, cancelling all on first error.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner with the given workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Add appends a worker. It must be called before Run.
func (r *Runner) Add(w Worker) {
	r.workers = append(r.workers, w)
}

// Run starts all workers in parallel. It blocks until all workers finish.
// If any worker returns a non-nil error, the context is cancelled and
// the first error is returned.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := workerName(w)
		slog.Info("worker started", "type", name)
		g.Go(func() error {
			err := w.Run(ctx)
			if err != nil {
				slog.Error("worker failed", "type", name, "error", err)
			} else {
				slog.Info("worker stopped", "type", name)
			}
			return err
		})
	}
	return g.Wait()
}

func workerName(w Worker) string {
	switch w := w.(type) {
	case Named:
		return w.Name()
	default:
		return "unknown"
	}
}

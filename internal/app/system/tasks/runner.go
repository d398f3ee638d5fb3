// internal/app/system/tasks/runner.go
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a periodic maintenance task. Run is invoked once at startup and
// then on every Interval tick until the runner is stopped.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner schedules the registered maintenance jobs. Jobs run on independent
// tickers; a slow job never delays the others.
type Runner struct {
	logger *zap.Logger
	jobs   []Job
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]struct{}
}

func New(logger *zap.Logger) *Runner {
	return &Runner{
		logger: logger,
		active: make(map[string]struct{}),
	}
}

// Register adds a job. Must be called before Start.
func (r *Runner) Register(job Job) {
	r.jobs = append(r.jobs, job)
}

// Start launches one goroutine per registered job.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, job := range r.jobs {
		r.wg.Add(1)
		go func(job Job) {
			defer r.wg.Done()
			r.loop(ctx, job)
		}(job)
	}

	r.logger.Info("maintenance jobs started", zap.Int("jobs", len(r.jobs)))
}

// Stop cancels all jobs and waits for in-flight runs to finish. When ctx
// expires first, the names of the jobs still running are logged and
// ctx.Err() is returned.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("maintenance jobs stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("maintenance job shutdown timed out",
			zap.Strings("still_running", r.activeNames()))
		return ctx.Err()
	}
}

// RunOnce triggers a registered job by name outside its schedule. Unknown
// names are a no-op.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name == name {
			return job.Run(ctx)
		}
	}
	return nil
}

func (r *Runner) loop(ctx context.Context, job Job) {
	r.execute(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.execute(ctx, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job Job) {
	r.mu.Lock()
	r.active[job.Name] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, job.Name)
		r.mu.Unlock()
	}()

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.logger.Debug("job run complete",
			zap.String("job", job.Name),
			zap.Duration("elapsed", elapsed))
	case ctx.Err() != nil:
		// Shutdown cancellation, not a failure.
		r.logger.Debug("job run cancelled", zap.String("job", job.Name))
	default:
		r.logger.Error("job run failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	}
}

func (r *Runner) activeNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	return names
}

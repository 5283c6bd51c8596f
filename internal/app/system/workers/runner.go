// internal/app/system/workers/runner.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/metrics"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/tasks"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Runner is a background worker that runs each job on its own ticker.
type Runner struct {
	jobs    []tasks.Job
	log     *zap.Logger
	metrics *metrics.Metrics
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRunner creates a runner for jobs. m may be nil.
func NewRunner(jobs []tasks.Job, logger *zap.Logger, m *metrics.Metrics) *Runner {
	return &Runner{
		jobs:    jobs,
		log:     logger,
		metrics: m,
		stopCh:  make(chan struct{}),
	}
}

// Start begins one loop per job.
func (w *Runner) Start() {
	for _, job := range w.jobs {
		if job.Interval <= 0 || job.Run == nil {
			w.log.Warn("skipping job without interval", zap.String("job", job.Name))
			continue
		}
		w.wg.Add(1)
		go w.loop(job)
		w.log.Info("background job started",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval))
	}
}

// Stop signals every loop to stop and waits for running jobs to finish.
// It is safe to call more than once.
func (w *Runner) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("background jobs stopped")
	})
}

func (w *Runner) loop(job tasks.Job) {
	defer w.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(job)
		}
	}
}

// RunOnce runs job immediately with the long storage timeout.
func (w *Runner) RunOnce(job tasks.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Long())
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	w.metrics.JobRun(job.Name, err)
	if err != nil {
		w.log.Error("background job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	w.log.Debug("background job finished",
		zap.String("job", job.Name),
		zap.Duration("took", time.Since(start)))
}

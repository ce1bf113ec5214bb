package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/application/service"
	"github.com/garyjia/coop-approvals/internal/application/workflow"
)

// Job is one run of a periodic worker
type Job func(ctx context.Context) error

// Stats reports what a periodic worker has done
type Stats struct {
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError error
}

// PeriodicWorker runs a job on a fixed interval until stopped
type PeriodicWorker struct {
	name     string
	interval time.Duration
	job      Job
	logger   *zap.Logger

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   Stats
}

// NewPeriodicWorker creates a worker that runs job every interval
func NewPeriodicWorker(name string, interval time.Duration, job Job, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{name: name, interval: interval, job: job, logger: logger}
}

// NewMetricsRefresher recomputes the unfiltered dashboard counts
func NewMetricsRefresher(metrics service.MetricsService, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker("MetricsRefresher", interval, metrics.Refresh, logger)
}

// NewReconciler heals open domain-backed requests whose stored status has
// drifted from their domain record
func NewReconciler(engine workflow.WorkflowEngine, interval time.Duration, batch int, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker("Reconciler", interval, func(ctx context.Context) error {
		healed, err := engine.ReconcileAll(ctx, batch)
		if healed > 0 {
			logger.Info("Reconciled drifted requests", zap.Int("healed", healed))
		}
		return err
	}, logger)
}

func (w *PeriodicWorker) Name() string { return w.name }

// Start begins the polling loop. The first run happens after one interval.
func (w *PeriodicWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", w.name)
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("%s already running", w.name)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	w.logger.Info("Worker started", zap.String("worker_name", w.name), zap.Duration("interval", w.interval))
	go w.loop(ctx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish
func (w *PeriodicWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("Worker stopped", zap.String("worker_name", w.name), zap.Int("runs", stats.Runs), zap.Int("failures", stats.Failures))
	return nil
}

// Stats returns a snapshot of the run counters
func (w *PeriodicWorker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *PeriodicWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *PeriodicWorker) runOnce(ctx context.Context) {
	err := w.safeRun(ctx)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = time.Now()
	w.stats.LastError = err
	if err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		w.logger.Error("Worker run failed", zap.String("worker_name", w.name), zap.Error(err))
	}
}

func (w *PeriodicWorker) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return w.job(ctx)
}

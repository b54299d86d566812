package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/logging"
	"github.com/JonMunkholm/inventory/internal/metrics"
)

// Claimer hands out the next queued job, or nil when the queue is empty.
type Claimer interface {
	Claim(ctx context.Context) (*core.BackgroundJob, error)
}

// Runner executes one claimed job through to a terminal status.
type Runner interface {
	RunBackgroundImport(ctx context.Context, job *core.BackgroundJob) error
}

const (
	defaultPollInterval = 2 * time.Second
	maxClaimBackoff     = time.Minute
)

// Worker polls a Claimer and runs claimed jobs concurrently. Parallelism is
// bounded by an UploadLimiter sized to the configured concurrency.
type Worker struct {
	claimer Claimer
	runner  Runner
	slots   *core.UploadLimiter
	poll    time.Duration
	logger  *slog.Logger

	// Jobs run on their own context so a stopping poll loop does not abort
	// imports mid-transaction. cancelJobs is the last resort in Wait.
	jobCtx     context.Context
	cancelJobs context.CancelFunc

	wg   sync.WaitGroup
	loop sync.WaitGroup
}

// NewWorker returns a worker running at most concurrency jobs at once.
func NewWorker(claimer Claimer, runner Runner, concurrency int, poll time.Duration) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if poll <= 0 {
		poll = defaultPollInterval
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	return &Worker{
		claimer:    claimer,
		runner:     runner,
		slots:      core.NewUploadLimiter(concurrency, poll),
		poll:       poll,
		logger:     slog.With("component", "import_worker", "concurrency", concurrency),
		jobCtx:     jobCtx,
		cancelJobs: cancel,
	}
}

// Start launches the poll loop. It stops claiming once ctx is done; jobs
// already running continue until Wait.
func (w *Worker) Start(ctx context.Context) {
	w.loop.Add(1)
	go func() {
		defer w.loop.Done()
		w.run(ctx)
	}()
}

func (w *Worker) run(ctx context.Context) {
	w.logger.Info("import worker started", "poll_interval", w.poll)
	defer w.logger.Info("import worker stopped claiming")

	backoff := w.poll
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := w.poll
		if err := w.drain(ctx); err != nil {
			w.logger.Error("claim failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = min(backoff*2, maxClaimBackoff)
		} else {
			backoff = w.poll
		}
		timer.Reset(wait)
	}
}

// drain claims jobs until the queue is empty or every slot is taken.
func (w *Worker) drain(ctx context.Context) error {
	for ctx.Err() == nil {
		if !w.slots.TryAcquire() {
			return nil
		}
		job, err := w.claimer.Claim(ctx)
		if err != nil || job == nil {
			w.slots.Release()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		metrics.JobsClaimed.Inc()
		w.wg.Add(1)
		go w.execute(job)
	}
	return nil
}

func (w *Worker) execute(job *core.BackgroundJob) {
	defer w.wg.Done()
	defer w.slots.Release()

	ctx := logging.ContextWithJobID(w.jobCtx, job.ID)
	logger := logging.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("background import panicked", "panic", r)
			w.fail(job, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := w.runner.RunBackgroundImport(ctx, job); err != nil {
		logger.Warn("background import failed", "error", err)
	}
}

// fail records a terminal failure for a job whose runner never finished it.
func (w *Worker) fail(job *core.BackgroundJob, cause error) {
	q, ok := w.claimer.(core.JobQueue)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Finish(ctx, job.ID, core.JobFailed, cause.Error()); err != nil {
		w.logger.Error("mark panicked job failed", "job_id", job.ID, "error", err)
	}
}

// Active reports how many jobs are running.
func (w *Worker) Active() int {
	return w.slots.ActiveCount()
}

// Wait blocks until the poll loop has exited and running jobs finish. If ctx
// expires first the remaining jobs are cancelled, which rolls their
// transactions back and marks them failed, and ctx.Err() is returned.
func (w *Worker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.loop.Wait()
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancelJobs()
		return nil
	case <-ctx.Done():
		w.logger.Warn("cancelling running imports", "active", w.Active())
		w.cancelJobs()
		<-done
		return ctx.Err()
	}
}

package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rlviewer/telemetry/internal/extract"
	"github.com/rlviewer/telemetry/internal/framecodec"
	"github.com/rlviewer/telemetry/internal/model"
	"github.com/rlviewer/telemetry/internal/queue"
)

// Job is one unit of replay processing work: a decoded replay document
// tagged with the id clients poll under.
type Job struct {
	ID       string
	Document map[string]any
}

// Sink persists a finished extraction. The storage layer implements it;
// tests stub it.
type Sink interface {
	SaveReplay(ctx context.Context, replay model.Replay, carPlayerMap map[string]string, frames []byte) error
}

// Recorder receives per-job outcome points for external metrics stores.
// A nil Recorder is valid and recording is skipped.
type Recorder interface {
	RecordJob(jobID string, state string, duration time.Duration)
}

// Progress checkpoints reported while a job moves through the pipeline.
const (
	progressExtracted = 40
	progressEncoded   = 70
	progressDone      = 100
)

// Runner drains the work queue and drives jobs through extraction,
// encoding, and persistence, publishing status through the Store.
type Runner struct {
	store    *Store
	queue    *queue.Queue[Job]
	sink     Sink
	recorder Recorder
	opts     extract.Options
	log      *slog.Logger

	processed metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram

	wg sync.WaitGroup
}

// NewRunner wires a runner over the given store and sink. Metrics come
// from the global OTel meter and are no-ops when none is configured.
func NewRunner(store *Store, sink Sink, recorder Recorder, opts extract.Options, log *slog.Logger) (*Runner, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Runner{
		store:    store,
		queue:    queue.New[Job](),
		sink:     sink,
		recorder: recorder,
		opts:     opts,
		log:      log,
	}

	m := meter()
	var err error

	r.processed, err = m.Int64Counter(
		"jobs.processed",
		metric.WithDescription("Total replay jobs completed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	r.failed, err = m.Int64Counter(
		"jobs.failed",
		metric.WithDescription("Total replay jobs failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	r.duration, err = m.Float64Histogram(
		"jobs.duration",
		metric.WithDescription("Replay job processing time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return r, nil
}

// Submission errors, distinguishable so callers can map them to the
// right rejection.
var (
	// ErrEmptyID rejects a job submitted without an id.
	ErrEmptyID = errors.New("job: id is empty")
	// ErrInFlight rejects a resubmission while the same id is still
	// queued or processing.
	ErrInFlight = errors.New("job: already in flight")
)

// Submit enqueues a job and marks it queued. It refuses ids that already
// have an unfinished job.
func (r *Runner) Submit(j Job) error {
	if j.ID == "" {
		return ErrEmptyID
	}
	if !r.store.Create(j.ID) {
		return fmt.Errorf("job %s: %w", j.ID, ErrInFlight)
	}
	r.queue.Push(j)
	return nil
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// Wait blocks until they have.
func (r *Runner) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func(worker int) {
			defer r.wg.Done()
			r.workLoop(ctx, worker)
		}(i)
	}
}

// Wait blocks until all workers have stopped.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// QueueLen reports the number of jobs waiting for a worker.
func (r *Runner) QueueLen() int {
	return r.queue.Len()
}

// RunPending synchronously drains the queue on the calling goroutine.
func (r *Runner) RunPending(ctx context.Context) {
	for {
		j, ok := r.queue.Pop()
		if !ok {
			return
		}
		r.run(ctx, j)
	}
}

func (r *Runner) workLoop(ctx context.Context, worker int) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		j, ok := r.queue.Pop()
		if ok {
			r.run(ctx, j)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) run(ctx context.Context, j Job) {
	start := time.Now()
	log := r.log.With("job_id", j.ID)
	r.store.Update(j.ID, StateProcessing, 0)

	res, err := extract.Process(j.ID, j.Document, r.opts)
	if err != nil {
		r.fail(j.ID, start, log, err)
		return
	}
	r.store.Update(j.ID, StateProcessing, progressExtracted)

	encoded := framecodec.Encode(res.Frames)
	r.store.Update(j.ID, StateProcessing, progressEncoded)

	if r.sink != nil {
		if err := r.sink.SaveReplay(ctx, res.Replay, res.CarPlayerMap, encoded); err != nil {
			r.fail(j.ID, start, log, fmt.Errorf("persisting replay: %w", err))
			return
		}
	}

	r.store.Update(j.ID, StateCompleted, progressDone)
	elapsed := time.Since(start)
	r.processed.Add(ctx, 1)
	r.duration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("outcome", "completed")))
	if r.recorder != nil {
		r.recorder.RecordJob(j.ID, string(StateCompleted), elapsed)
	}
	log.Info("job completed",
		"frames", len(res.Frames),
		"players", len(res.Replay.Players),
		"duration", elapsed)
}

func (r *Runner) fail(id string, start time.Time, log *slog.Logger, err error) {
	r.store.Fail(id, err.Error())
	elapsed := time.Since(start)
	r.failed.Add(context.Background(), 1)
	r.duration.Record(context.Background(), elapsed.Seconds(),
		metric.WithAttributes(attribute.String("outcome", "failed")))
	if r.recorder != nil {
		r.recorder.RecordJob(id, string(StateFailed), elapsed)
	}
	log.Error("job failed", "error", err, "duration", elapsed)
}

// StartJanitor sweeps expired job statuses at the given interval until
// ctx is cancelled.
func (r *Runner) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := r.store.Sweep(); removed > 0 {
					r.log.Debug("swept finished jobs", "removed", removed)
				}
			}
		}
	}()
}

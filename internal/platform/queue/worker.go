package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler processes one decoded job.
type Handler func(ctx context.Context, job Job) error

// Worker consumes one or more queues with a fixed number of goroutines per
// queue. Handler failures are logged and the job is acknowledged; there is
// no retry at this layer.
type Worker struct {
	backend     Backend
	queues      []string
	concurrency int
	handler     Handler
	logger      zerolog.Logger
	backoff     time.Duration
}

func NewWorker(backend Backend, queues []string, concurrency int, handler Handler, logger zerolog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		backend:     backend,
		queues:      queues,
		concurrency: concurrency,
		handler:     handler,
		logger:      logger.With().Str("component", "queue.worker").Str("backend", backend.Name()).Logger(),
		backoff:     time.Second,
	}
}

// Run blocks until ctx is cancelled or the backend is closed.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, q := range w.queues {
		q := q
		for i := 0; i < w.concurrency; i++ {
			g.Go(func() error {
				w.consume(ctx, q)
				return nil
			})
		}
	}
	w.logger.Info().Strs("queues", w.queues).Int("concurrency", w.concurrency).Msg("worker started")
	err := g.Wait()
	w.logger.Info().Msg("worker stopped")
	return err
}

func (w *Worker) consume(ctx context.Context, queue string) {
	for {
		if ctx.Err() != nil {
			return
		}
		d, err := w.backend.Pop(ctx, queue)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			w.logger.Error().Err(err).Str("queue", queue).Msg("pop failed")
			select {
			case <-time.After(w.backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		if d == nil {
			continue
		}
		w.process(ctx, queue, d)
	}
}

func (w *Worker) process(ctx context.Context, queue string, d *Delivery) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		w.logger.Error().Err(err).Str("queue", queue).Msg("discarding undecodable job")
		w.ack(ctx, queue, d)
		return
	}

	start := time.Now()
	err := w.safeHandle(ctx, job)
	ev := w.logger.Info()
	if err != nil {
		ev = w.logger.Error().Err(err)
	}
	ev.Str("queue", queue).
		Str("job_id", job.ID.String()).
		Str("job_type", job.Type).
		Dur("latency", time.Since(start)).
		Msg("job processed")

	w.ack(ctx, queue, d)
}

func (w *Worker) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("handler panic")
			w.logger.Error().Interface("panic", r).Str("job_id", job.ID.String()).Msg("job handler panicked")
		}
	}()
	return w.handler(ctx, job)
}

func (w *Worker) ack(ctx context.Context, queue string, d *Delivery) {
	// Ack must land even when shutdown has begun.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.Ack(ackCtx); err != nil {
		w.logger.Error().Err(err).Str("queue", queue).Msg("ack failed")
	}
}

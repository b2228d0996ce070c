// Package queue moves serialized jobs between the API process and background
// workers. Delivery is at-least-once: a job is acknowledged only after its
// handler returns, and backends that can redeliver unacknowledged jobs do so.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrClosed = errors.New("queue: backend closed")

// Job is the envelope written to a queue.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Queue      string          `json:"queue"`
	Recipient  json.RawMessage `json:"recipient"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Delivery is one received message. Ack removes it from the backend.
type Delivery struct {
	Body []byte
	ack  func(ctx context.Context) error
}

func NewDelivery(body []byte, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Body: body, ack: ack}
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Backend is a named-queue transport.
type Backend interface {
	Name() string
	Push(ctx context.Context, queue string, body []byte) error
	// Pop waits for the next message on queue. It returns (nil, nil) when a
	// poll interval elapses with nothing to deliver.
	Pop(ctx context.Context, queue string) (*Delivery, error)
	Close() error
}

// Producer stamps and serializes jobs onto a Backend.
type Producer struct {
	backend Backend
	logger  zerolog.Logger
	now     func() time.Time
}

func NewProducer(backend Backend, logger zerolog.Logger) *Producer {
	return &Producer{
		backend: backend,
		logger:  logger.With().Str("component", "queue").Logger(),
		now:     time.Now,
	}
}

// Enqueue pushes job onto the named queue and returns its id.
func (p *Producer) Enqueue(ctx context.Context, queue string, job Job) (uuid.UUID, error) {
	if queue == "" {
		return uuid.Nil, fmt.Errorf("queue: empty queue name")
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Queue = queue
	job.EnqueuedAt = p.now().UTC()

	body, err := json.Marshal(job)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode job: %w", err)
	}
	if err := p.backend.Push(ctx, queue, body); err != nil {
		return uuid.Nil, fmt.Errorf("push to %s/%s: %w", p.backend.Name(), queue, err)
	}

	p.logger.Debug().
		Str("job_id", job.ID.String()).
		Str("job_type", job.Type).
		Str("queue", queue).
		Str("backend", p.backend.Name()).
		Msg("job enqueued")
	return job.ID, nil
}

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/queue"
)

// Enqueuer hands a job to a named queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, job queue.Job) (uuid.UUID, error)
}

// Dispatcher fans a notification out to the drivers of its declared channels.
type Dispatcher struct {
	registry     *Registry
	enqueuer     Enqueuer
	defaultQueue string
	codec        *Codec
	logger       zerolog.Logger
}

type DispatcherOption func(*Dispatcher)

// WithQueue routes Queued notifications through enqueuer. Events that return
// an empty queue name land on defaultQueue.
func WithQueue(enqueuer Enqueuer, defaultQueue string) DispatcherOption {
	return func(d *Dispatcher) {
		d.enqueuer = enqueuer
		d.defaultQueue = defaultQueue
	}
}

// WithCodec sets the decoder table used by HandleJob.
func WithCodec(c *Codec) DispatcherOption {
	return func(d *Dispatcher) { d.codec = c }
}

func NewDispatcher(registry *Registry, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		codec:    NewCodec(),
		logger:   logger.With().Str("component", "notification.dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers n to every recipient. Queued events are enqueued when a queue
// is configured; everything else is delivered inline. Every recipient is
// attempted; the returned error joins the enqueue failures. Per-channel
// outcomes are logged.
func (d *Dispatcher) Send(ctx context.Context, n Notification, recipients ...Recipient) error {
	q, queued := n.(Queued)
	var errs []error
	for _, to := range recipients {
		if queued && d.enqueuer != nil {
			name := q.Queue()
			if name == "" {
				name = d.defaultQueue
			}
			if err := d.enqueue(ctx, name, n, to); err != nil {
				d.logger.Error().Err(err).Str("recipient_id", to.ID.String()).Str("queue", name).Msg("enqueue notification")
				errs = append(errs, err)
			}
			continue
		}
		d.SendNow(ctx, n, to)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) enqueue(ctx context.Context, queueName string, n Notification, to Recipient) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode %s: %w", n.Type(), err)
	}
	recipient, err := json.Marshal(to)
	if err != nil {
		return fmt.Errorf("encode recipient: %w", err)
	}
	_, err = d.enqueuer.Enqueue(ctx, queueName, queue.Job{
		Type:      n.Type(),
		Recipient: recipient,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", n.Type(), err)
	}
	return nil
}

// SendNow makes exactly one attempt per channel declared by n.Via, in order.
// A failed or skipped channel never prevents the others from being tried.
func (d *Dispatcher) SendNow(ctx context.Context, n Notification, to Recipient) []Result {
	channels := n.Via(to)
	results := make([]Result, 0, len(channels))
	for _, ch := range channels {
		results = append(results, d.attempt(ctx, n, to, ch))
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	d.logger.Info().
		Str("notification_type", n.Type()).
		Str("recipient_id", to.ID.String()).
		Int("channels", len(channels)).
		Int("failed", failed).
		Msg("notification dispatched")
	return results
}

func (d *Dispatcher) attempt(ctx context.Context, n Notification, to Recipient, ch Channel) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("channel", string(ch)).Str("notification_type", n.Type()).Msg("channel delivery panicked")
			res = Result{Success: false, Message: "channel delivery panicked", Driver: "unknown", Channel: ch}
		}
	}()

	driver, ok := d.registry.Driver(ch)
	if !ok {
		return Result{Success: false, Message: "no driver registered for channel", Driver: "none", Channel: ch}
	}
	if !driver.IsConfigured() {
		return Result{Success: false, Message: "driver not configured; channel skipped", Driver: driver.Name(), Channel: ch}
	}

	msg, ok, err := render(n, to, ch)
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("%s does not render for channel %s", n.Type(), ch), Driver: driver.Name(), Channel: ch}
	}
	if err != nil {
		d.logger.Error().Err(err).Str("channel", string(ch)).Str("notification_type", n.Type()).Msg("render failed")
		return Result{Success: false, Message: "render failed: " + err.Error(), Driver: driver.Name(), Channel: ch}
	}

	res, err = driver.Send(ctx, to, msg)
	if err != nil {
		d.logger.Error().Err(err).Str("channel", string(ch)).Str("driver", driver.Name()).Msg("driver misconfigured")
		return Result{Success: false, Message: err.Error(), Driver: driver.Name(), Channel: ch}
	}
	if res.Channel == "" {
		res.Channel = ch
	}
	return res
}

// HandleJob is the queue.Handler for notification jobs.
func (d *Dispatcher) HandleJob(ctx context.Context, job queue.Job) error {
	n, err := d.codec.Decode(job.Type, job.Payload)
	if err != nil {
		return err
	}
	var to Recipient
	if err := json.Unmarshal(job.Recipient, &to); err != nil {
		return fmt.Errorf("decode recipient: %w", err)
	}
	results := d.SendNow(ctx, n, to)
	for _, r := range results {
		if !r.Success {
			return fmt.Errorf("%s via %s failed: %s", job.Type, r.Channel, r.Message)
		}
	}
	return nil
}

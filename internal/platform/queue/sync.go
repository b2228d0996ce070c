package queue

import (
	"context"
	"sync"
)

// SyncBackend keeps queues in process memory. Jobs survive only as long as
// the process and are delivered to workers running in the same binary.
type SyncBackend struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	size   int
	closed chan struct{}
	once   sync.Once
}

func NewSyncBackend(buffer int) *SyncBackend {
	if buffer <= 0 {
		buffer = 1024
	}
	return &SyncBackend{
		queues: make(map[string]chan []byte),
		size:   buffer,
		closed: make(chan struct{}),
	}
}

func (b *SyncBackend) Name() string { return "sync" }

func (b *SyncBackend) queue(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, b.size)
		b.queues[name] = q
	}
	return q
}

func (b *SyncBackend) Push(ctx context.Context, queue string, body []byte) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	select {
	case b.queue(queue) <- body:
		return nil
	case <-b.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *SyncBackend) Pop(ctx context.Context, queue string) (*Delivery, error) {
	select {
	case body := <-b.queue(queue):
		return NewDelivery(body, nil), nil
	case <-b.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports how many jobs are waiting on queue.
func (b *SyncBackend) Len(queue string) int {
	return len(b.queue(queue))
}

func (b *SyncBackend) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

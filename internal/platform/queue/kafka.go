package queue

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBackend publishes each queue to a topic of the same name and consumes
// it through a consumer group. Ack commits the message offset.
type KafkaBackend struct {
	brokers []string
	groupID string

	mu      sync.Mutex
	writers map[string]kafkaWriter
	readers map[string]kafkaReader

	newWriter func(topic string) kafkaWriter
	newReader func(topic string) kafkaReader
}

func NewKafkaBackend(brokers []string, groupID string) *KafkaBackend {
	b := &KafkaBackend{
		brokers: brokers,
		groupID: groupID,
		writers: make(map[string]kafkaWriter),
		readers: make(map[string]kafkaReader),
	}
	b.newWriter = func(topic string) kafkaWriter {
		return &kafka.Writer{
			Addr:                   kafka.TCP(b.brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}
	b.newReader = func(topic string) kafkaReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers: b.brokers,
			Topic:   topic,
			GroupID: b.groupID,
		})
	}
	return b
}

func (b *KafkaBackend) Name() string { return "kafka" }

func (b *KafkaBackend) writer(topic string) kafkaWriter {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[topic]
	if !ok {
		w = b.newWriter(topic)
		b.writers[topic] = w
	}
	return w
}

func (b *KafkaBackend) reader(topic string) kafkaReader {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.readers[topic]
	if !ok {
		r = b.newReader(topic)
		b.readers[topic] = r
	}
	return r
}

func (b *KafkaBackend) Push(ctx context.Context, queue string, body []byte) error {
	return b.writer(queue).WriteMessages(ctx, kafka.Message{Value: body})
}

func (b *KafkaBackend) Pop(ctx context.Context, queue string) (*Delivery, error) {
	r := b.reader(queue)
	msg, err := r.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return NewDelivery(msg.Value, func(ctx context.Context) error {
		return r.CommitMessages(ctx, msg)
	}), nil
}

func (b *KafkaBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, r := range b.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Package mq is a small broker abstraction used to hand verification mail
// off to a separate delivery worker.
package mq

import "context"

// Message is a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
	Redelivery bool
}

// Handler processes a message. A returned error asks the broker to
// redeliver it once.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by RabbitMQClient and MemoryBackend.
type Backend interface {
	Publish(ctx context.Context, queue string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, queue string, handler Handler) error
	Close() error
}

// MQ pins a backend to one queue.
type MQ struct {
	backend Backend
	queue   string
}

func New(backend Backend, queue string) *MQ {
	return &MQ{backend: backend, queue: queue}
}

// Queue returns the queue name messages are published to.
func (m *MQ) Queue() string {
	return m.queue
}

func (m *MQ) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, m.queue, data, attrs)
}

// Subscribe blocks, feeding messages to handler until ctx is cancelled.
func (m *MQ) Subscribe(ctx context.Context, handler Handler) error {
	return m.backend.Subscribe(ctx, m.queue, handler)
}

func (m *MQ) Close() error {
	return m.backend.Close()
}

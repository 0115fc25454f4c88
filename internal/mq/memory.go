package mq

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend is an in-process Backend. It backs MAIL_TRANSPORT=queue
// when no broker URL is configured and is used by tests.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]chan Message
	closed bool
	size   int
}

func NewMemoryBackend(size int) *MemoryBackend {
	if size <= 0 {
		size = 64
	}
	return &MemoryBackend{queues: make(map[string]chan Message), size: size}
}

func (m *MemoryBackend) queue(name string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("mq: backend closed")
	}
	q, ok := m.queues[name]
	if !ok {
		q = make(chan Message, m.size)
		m.queues[name] = q
	}
	return q, nil
}

func (m *MemoryBackend) Publish(ctx context.Context, queue string, data []byte, attrs map[string]string) (string, error) {
	q, err := m.queue(queue)
	if err != nil {
		return "", err
	}
	msg := Message{ID: uuid.NewString(), Data: append([]byte(nil), data...), Attributes: attrs}
	select {
	case q <- msg:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *MemoryBackend) Subscribe(ctx context.Context, queue string, handler Handler) error {
	q, err := m.queue(queue)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q:
			if err := handler(ctx, msg); err != nil && !msg.Redelivery {
				msg.Redelivery = true
				select {
				case q <- msg:
				default:
				}
			}
		}
	}
}

// Close stops accepting publishes. Pending messages are discarded.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sakif/identity-portal/internal/mq"
)

const attrKind = "kind"

// QueueSender hands messages to the mail queue. A Worker on the other
// side performs the actual delivery, so a slow SMTP relay never holds up
// a signup request.
type QueueSender struct {
	queue *mq.MQ
}

func NewQueueSender(queue *mq.MQ) *QueueSender {
	return &QueueSender{queue: queue}
}

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: encoding message: %w", err)
	}
	if _, err := s.queue.Publish(ctx, data, map[string]string{attrKind: "email"}); err != nil {
		return fmt.Errorf("notify: queueing message for %s: %w", msg.To, err)
	}
	return nil
}

// Worker drains the mail queue into a delivering Sender.
type Worker struct {
	queue    *mq.MQ
	delivery Sender
	logger   *slog.Logger
}

func NewWorker(queue *mq.MQ, delivery Sender, logger *slog.Logger) *Worker {
	return &Worker{queue: queue, delivery: delivery, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("mail worker started", slog.String("queue", w.queue.Queue()))
	return w.queue.Subscribe(ctx, w.handle)
}

func (w *Worker) handle(ctx context.Context, m mq.Message) error {
	var msg Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		// Malformed payloads are never retried.
		w.logger.Error("discarding malformed mail message",
			slog.String("message_id", m.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := w.delivery.Send(ctx, msg); err != nil {
		return err
	}
	w.logger.Info("verification email delivered",
		slog.String("message_id", m.ID),
		slog.String("to", msg.To),
	)
	return nil
}

package notify

import (
	"context"
	"log/slog"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Kind string

const (
	KindFirstAccess   Kind = "first_access"
	KindPasswordReset Kind = "password_reset"
)

// Message is the payload handed to the out-of-band delivery worker.
type Message struct {
	Kind      Kind              `json:"kind"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data"`
}

// Sender dispatches a notification. Callers treat delivery as best-effort:
// a failed Send is logged and never propagated past the lifecycle that
// triggered it.
type Sender interface {
	Send(ctx context.Context, kind Kind, recipient string, data map[string]string) error
}

// AMQPSender publishes notification jobs to a queue consumed by the
// delivery worker.
type AMQPSender struct {
	conn  *amqp.Connection
	chn   *amqp.Channel
	queue string
}

func NewAMQPSender(url, queue string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	_, err = chn.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		chn.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPSender{conn: conn, chn: chn, queue: queue}, nil
}

func (s *AMQPSender) Send(ctx context.Context, kind Kind, recipient string, data map[string]string) error {
	body, err := sonic.Marshal(Message{Kind: kind, Recipient: recipient, Data: data})
	if err != nil {
		return err
	}

	return s.chn.PublishWithContext(
		ctx,
		"",      // exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (s *AMQPSender) Close() error {
	if err := s.chn.Close(); err != nil {
		return err
	}
	return s.conn.Close()
}

// LogSender is the fallback when no broker is configured: it records the
// notification and drops it.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, kind Kind, recipient string, data map[string]string) error {
	slog.InfoContext(ctx, "Notification dispatch skipped (no broker configured)",
		slog.String("kind", string(kind)),
		slog.String("recipient", recipient))
	return nil
}

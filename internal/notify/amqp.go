package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MimeLyc/video-sub-translator/internal/service"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

const publishTimeout = 5 * time.Second

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier forwards terminal commands to a RabbitMQ exchange so other
// services can react to finished jobs.
type AMQPNotifier struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	pub        publisher
	exchange   string
	routingKey string
}

func DialAMQP(url, exchange, routingKey string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	n := newNotifier(ch, exchange, routingKey)
	n.conn = conn
	n.ch = ch
	return n, nil
}

func newNotifier(pub publisher, exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{pub: pub, exchange: exchange, routingKey: routingKey}
}

// Notify publishes one command.
func (n *AMQPNotifier) Notify(ctx context.Context, cmd service.Command) error {
	msg, err := encode(cmd, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := n.pub.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Attach forwards every command published on ch until the returned func
// is called. Broker failures are logged; they never affect the job.
func (n *AMQPNotifier) Attach(ch *service.CommandChannel) (detach func()) {
	return ch.Tap(func(cmd service.Command) {
		if err := n.Notify(context.Background(), cmd); err != nil {
			log.Warn("Failed to notify %s for job %s: %v", cmd.Kind, cmd.JobID, err)
		}
	})
}

func (n *AMQPNotifier) Close() error {
	if n.ch != nil {
		if err := n.ch.Close(); err != nil {
			return err
		}
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

func encode(cmd service.Command, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode command: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    cmd.JobID,
		Type:         string(cmd.Kind),
		Timestamp:    now,
		Body:         body,
	}, nil
}

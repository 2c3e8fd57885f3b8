package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/reachend/auth-service/internal/core/domain"
)

// AMQPConfig names the broker and the route notifications are published on.
type AMQPConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Retries    int
	RetryDelay time.Duration
}

// publisher is satisfied by *amqp.Channel.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier hands notifications to a mail worker through RabbitMQ.
type AMQPNotifier struct {
	mu         sync.Mutex
	ch         publisher
	exchange   string
	routingKey string
}

func NewAMQPNotifier(ch publisher, exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, exchange: exchange, routingKey: routingKey}
}

func (n *AMQPNotifier) Send(ctx context.Context, msg domain.Notification) error {
	const op = "notify.AMQPNotifier.Send"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	err = n.ch.Publish(n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         "notification.email",
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DialAMQP connects to the broker, retrying up to cfg.Retries times.
func DialAMQP(cfg AMQPConfig) (*amqp.Connection, error) {
	const op = "notify.DialAMQP"

	retries := cfg.Retries
	if retries <= 0 {
		retries = 1
	}
	var (
		conn *amqp.Connection
		err  error
	)
	for i := range retries {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			return conn, nil
		}
		if i < retries-1 {
			time.Sleep(cfg.RetryDelay)
		}
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

// SetupChannel declares the durable exchange and queue and binds them.
func SetupChannel(conn *amqp.Connection, cfg AMQPConfig) (*amqp.Channel, error) {
	const op = "notify.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: declare queue %s: %w", op, cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: bind queue %s to %s: %w", op, cfg.Queue, cfg.RoutingKey, err)
	}
	return ch, nil
}

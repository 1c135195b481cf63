// Package publisher fans accepted notifications out to a RabbitMQ exchange
// so downstream consumers can react to new posts.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"bluebird/internal/domain"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    Channel
	closer     func() error
	exchange   string
	routingKey string
	now        func() time.Time
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	r := newRabbitMQ(ch, cfg, logger)
	r.conn = conn
	r.closer = ch.Close
	return r, nil
}

func newRabbitMQ(ch Channel, cfg Config, logger *slog.Logger) *RabbitMQ {
	return &RabbitMQ{
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		now:        time.Now,
		logger:     logger.With("sink", "rabbitmq"),
	}
}

func declare(ch *amqp.Channel, cfg Config) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// No queue means consumers bind their own.
	if cfg.QueueName == "" {
		return nil
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

type NotificationMessage struct {
	ID          uuid.UUID    `json:"id"`
	Account     string       `json:"account"`
	Action      string       `json:"action"`
	Post        domain.Post  `json:"post"`
	ReplyParent *domain.Post `json:"reply_parent,omitempty"`
	Quote       *domain.Post `json:"quote,omitempty"`
	RepostOf    *domain.Post `json:"repost_of,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

func (r *RabbitMQ) Name() string {
	return "rabbitmq"
}

func (r *RabbitMQ) Send(ctx context.Context, n *domain.Notification) error {
	now := r.now().UTC()
	msg := NotificationMessage{
		ID:          uuid.New(),
		Account:     n.Account,
		Action:      n.Action(),
		Post:        n.Post,
		ReplyParent: n.ReplyParent,
		Quote:       n.Quote,
		RepostOf:    n.RepostOf,
		Timestamp:   now,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			MessageId:    msg.ID.String(),
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    now,
			Type:         "bluebird.notification",
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published notification",
		"message_id", msg.ID,
		"account", n.Account,
		"post_id", n.Post.ID,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.closer != nil {
		r.closer()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

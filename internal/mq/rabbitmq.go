package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/magadiflo/usersvc/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient publishes each channel to a queue of the same name. With an
// exchange configured, the queue is bound to that direct exchange using the
// channel as routing key.
type RabbitMQClient struct {
	conn          *amqp.Connection
	channel       *amqp.Channel
	exchange      string
	queueDurable  bool
	prefetchCount int

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQClient constructs a RabbitMQ client from config.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:          conn,
		channel:       ch,
		exchange:      strings.TrimSpace(cfg.Exchange),
		queueDurable:  cfg.QueueDurable,
		prefetchCount: cfg.PrefetchCount,
		declared:      make(map[string]bool),
	}, nil
}

// Publish sends a JSON message on the channel. Attributes become headers.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", ErrChannelRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	exchange, key, err := r.route(channel)
	if err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	err = r.channel.PublishWithContext(ctx, exchange, key, false, false, publishing(messageID, data, attrs, r.queueDurable))
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe consumes from the queue named after channel.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return ErrChannelRequired
	}

	r.mu.Lock()
	_, _, err := r.route(channel)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	consumerTag := fmt.Sprintf("usersvc-%s", uuid.NewString())
	deliveries, err := r.channel.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			message := Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			}
			if err := handler(ctx, message); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes the underlying channel and connection.
func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// route declares the topology for channel once and returns the exchange and
// routing key to publish with. Callers hold r.mu.
func (r *RabbitMQClient) route(channel string) (string, string, error) {
	if !r.declared[channel] {
		if r.exchange != "" {
			if err := r.channel.ExchangeDeclare(r.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
				return "", "", err
			}
		}
		if _, err := r.channel.QueueDeclare(channel, r.queueDurable, false, false, false, nil); err != nil {
			return "", "", err
		}
		if r.exchange != "" {
			if err := r.channel.QueueBind(channel, channel, r.exchange, false, nil); err != nil {
				return "", "", err
			}
		}
		r.declared[channel] = true
	}
	return r.exchange, channel, nil
}

func publishing(messageID string, data []byte, attrs map[string]string, persistent bool) amqp.Publishing {
	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}
	msg := amqp.Publishing{
		ContentType: "application/json",
		MessageId:   messageID,
		Timestamp:   time.Now().UTC(),
		Headers:     headers,
		Body:        data,
	}
	if persistent {
		msg.DeliveryMode = amqp.Persistent
	}
	return msg
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}

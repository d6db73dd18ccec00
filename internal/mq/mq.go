package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/magadiflo/usersvc/config"
	"go.uber.org/zap"
)

// ErrChannelRequired is returned when a publish or subscribe names no channel.
var ErrChannelRequired = errors.New("mq channel is required")

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with logging.
type MQ struct {
	backend Backend
	lg      *zap.SugaredLogger
}

// Wrap constructs an MQ for an already connected backend.
func Wrap(backend Backend, lg *zap.SugaredLogger) *MQ {
	if lg == nil {
		lg = zap.NewNop().Sugar()
	}
	return &MQ{backend: backend, lg: lg}
}

// New connects the backend selected by cfg. It returns nil, nil when
// events are disabled.
func New(ctx context.Context, cfg config.MQConfig, lg *zap.SugaredLogger) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case config.MQBackendNone, "":
		return nil, nil
	case config.MQBackendRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case config.MQBackendPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Backend, err)
	}
	return Wrap(backend, lg), nil
}

// Publish sends a message to the named channel and returns the broker
// message id.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id, err := m.backend.Publish(ctx, channel, data, attrs)
	if err != nil {
		return "", err
	}
	m.lg.Debugw("published message", "channel", channel, "message_id", id, "bytes", len(data))
	return id, nil
}

// Subscribe consumes messages from the named channel until ctx is done.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	m.lg.Infow("subscribing", "channel", channel)
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}

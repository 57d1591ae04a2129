package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"go.uber.org/zap"
)

const SchemaAuditV1 = "switchboard.audit.v1"

type Meta struct {
	ID         string    `json:"id"`
	Schema     string    `json:"schema"`
	OccurredAt time.Time `json:"occurredAt"`
	Source     string    `json:"source"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// AuditEnvelope wraps an audit entry for publication. The message id is the
// entry id so consumers can deduplicate redeliveries.
func AuditEnvelope(e *domain.AuditLogEntry) Envelope {
	return Envelope{
		Meta: Meta{
			ID:         e.ID,
			Schema:     SchemaAuditV1,
			OccurredAt: e.CreatedAt,
			Source:     "switchboard",
		},
		Data: e,
	}
}

type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

const (
	dialTimeout   = 5 * time.Second
	redialBackoff = time.Second
)

// connection is the part of *amqp.Connection the publisher uses.
type connection interface {
	Channel() (*amqp.Channel, error)
	IsClosed() bool
	Close() error
}

type dialer func(url string) (connection, error)

var errAwaitingRedial = errors.New("amqp connection closed; waiting to redial")

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// AMQPPublisher publishes JSON envelopes to a durable topic exchange and waits
// for the broker to confirm each message. A dropped connection is redialed on
// the next publish, at most once per redialBackoff.
type AMQPPublisher struct {
	url      string
	exchange string
	dial     dialer
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	conn       connection
	ch         *amqp.Channel
	lastRedial time.Time
}

func NewAMQPPublisher(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := dialAMQP(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	p := newPublisher(url, exchange, conn, dialAMQP, logger)
	if _, err := p.channel(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(url, exchange string, conn connection, dial dialer, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:      url,
		exchange: exchange,
		dial:     dial,
		logger:   logger,
		now:      time.Now,
		conn:     conn,
	}
}

// liveConn returns a live connection, redialing when the broker dropped
// the previous one. Callers hold p.mu.
func (p *AMQPPublisher) liveConn() (connection, error) {
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	now := p.now()
	if now.Sub(p.lastRedial) < redialBackoff {
		return nil, errAwaitingRedial
	}
	p.lastRedial = now
	p.logger.Warn("amqp connection closed, redialing", zap.String("exchange", p.exchange))
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("redial amqp: %w", err)
	}
	p.conn = conn
	p.ch = nil
	p.logger.Info("amqp connection restored")
	return conn, nil
}

// channel returns the shared confirm-mode channel, reopening it after the
// broker closed it. Callers hold p.mu.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	conn, err := p.liveConn()
	if err != nil {
		return nil, err
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm %s: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: broker nacked message %s", key, msgID)
	}
	p.logger.Debug("published event", zap.String("key", key), zap.String("exchange", p.exchange))
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

// NopPublisher drops every message. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Envelope) error { return nil }
func (NopPublisher) Close() error                                    { return nil }

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"go.uber.org/zap"
)

func TestAuditEnvelope(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := &domain.AuditLogEntry{
		ID:        "evt-1",
		EventType: domain.AuditAgentProvisioned,
		Actor:     "orchestrator",
		Target:    "agt_1",
		Details:   json.RawMessage(`{"phone":true}`),
		CreatedAt: at,
	}

	env := AuditEnvelope(entry)
	assert.Equal(t, "evt-1", env.Meta.ID)
	assert.Equal(t, SchemaAuditV1, env.Meta.Schema)
	assert.Equal(t, at, env.Meta.OccurredAt)

	body, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded struct {
		Meta Meta `json:"meta"`
		Data struct {
			EventType string          `json:"eventType"`
			Details   json.RawMessage `json:"details"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, domain.AuditAgentProvisioned, decoded.Data.EventType)
	assert.JSONEq(t, `{"phone":true}`, string(decoded.Data.Details))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), "agent.provisioned", Envelope{}))
	assert.NoError(t, p.Close())
}

type fakeConn struct {
	closed   bool
	channels int
}

func (c *fakeConn) Channel() (*amqp.Channel, error) {
	c.channels++
	return nil, errors.New("channel refused")
}

func (c *fakeConn) IsClosed() bool { return c.closed }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestAMQPPublisher_RedialsDroppedConnection(t *testing.T) {
	dropped := &fakeConn{closed: true}
	fresh := &fakeConn{}
	dials := 0
	p := newPublisher("amqp://broker", "switchboard.audit", dropped, func(url string) (connection, error) {
		dials++
		assert.Equal(t, "amqp://broker", url)
		return fresh, nil
	}, zap.NewNop())

	err := p.Publish(context.Background(), "agent.provisioned", Envelope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open channel")
	assert.Equal(t, 1, dials)
	assert.Zero(t, dropped.channels)
	assert.Equal(t, 1, fresh.channels)

	// A live connection is reused.
	_ = p.Publish(context.Background(), "agent.provisioned", Envelope{})
	assert.Equal(t, 1, dials)
	assert.Equal(t, 2, fresh.channels)

	require.NoError(t, p.Close())
	assert.True(t, fresh.closed)
}

func TestAMQPPublisher_RedialBackoff(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	dials := 0
	p := newPublisher("amqp://broker", "switchboard.audit", &fakeConn{closed: true}, func(string) (connection, error) {
		dials++
		return nil, errors.New("connection refused")
	}, zap.NewNop())
	p.now = func() time.Time { return now }

	err := p.Publish(context.Background(), "agent.provisioned", Envelope{})
	assert.ErrorContains(t, err, "redial amqp")
	assert.Equal(t, 1, dials)

	err = p.Publish(context.Background(), "agent.provisioned", Envelope{})
	assert.ErrorIs(t, err, errAwaitingRedial)
	assert.Equal(t, 1, dials)

	now = now.Add(redialBackoff)
	_ = p.Publish(context.Background(), "agent.provisioned", Envelope{})
	assert.Equal(t, 2, dials)
}

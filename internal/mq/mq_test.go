package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
)

func TestNewRunEvent_Failed(t *testing.T) {
	run := domain.NewRun(uuid.New(), uuid.New())
	run.MarkFailed(domain.StageGold, domain.FailureTimedOut, "context deadline exceeded")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	msg, err := NewRunEvent(run, now)
	require.NoError(t, err)

	assert.Equal(t, MessageTypeRunFailed, msg.Type)
	assert.Equal(t, now, msg.Timestamp)
	assert.NotEmpty(t, msg.ID)

	payload, err := ParseRunEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, run.ID, payload.RunID)
	assert.Equal(t, run.PipelineID, payload.PipelineID)
	assert.Equal(t, domain.RunStateFailed, payload.State)
	assert.Equal(t, domain.FailureTimedOut, payload.FailureCode)
	assert.Equal(t, domain.StageGold, payload.FailedStage)
}

func TestNewRunEvent_OmitsEmptyFields(t *testing.T) {
	run := domain.NewRun(uuid.New(), uuid.New())

	msg, err := NewRunEvent(run, time.Now())
	require.NoError(t, err)
	assert.Equal(t, MessageTypeRunStarted, msg.Type)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &raw))
	assert.Equal(t, "running", raw["state"])
	assert.NotContains(t, raw, "state_reason")
	assert.NotContains(t, raw, "failure_code")
	assert.NotContains(t, raw, "failed_stage")
}

func TestNewRunEvent_UnknownState(t *testing.T) {
	run := domain.NewRun(uuid.New(), uuid.New())
	run.State = domain.RunStateQueued

	_, err := NewRunEvent(run, time.Now())
	assert.Error(t, err)
}

func TestDecodeMessage(t *testing.T) {
	run := domain.NewRun(uuid.New(), uuid.New())
	run.MarkSucceeded()
	msg, err := NewRunEvent(run, time.Now())
	require.NoError(t, err)

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	decoded, err := DecodeMessage(body)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeRunSucceeded, decoded.Type)
	assert.Equal(t, msg.ID, decoded.ID)

	_, err = DecodeMessage([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	_, err = DecodeMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestConnection_ReconnectHooks(t *testing.T) {
	c := &Connection{logger: zap.NewNop(), closedCh: make(chan struct{})}

	var calls []string
	c.OnReconnect(func(ctx context.Context, conn *Connection) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		assert.Same(t, c, conn)
		calls = append(calls, "topology")
		return errors.New("exchange declare failed")
	})
	c.OnReconnect(func(context.Context, *Connection) error {
		calls = append(calls, "second")
		return nil
	})

	c.runHooks()

	assert.Equal(t, []string{"topology", "second"}, calls)
}

func TestConnection_WithChannelWithoutConnection(t *testing.T) {
	c := &Connection{logger: zap.NewNop(), closedCh: make(chan struct{})}

	err := c.WithChannel(context.Background(), func(*amqp.Channel) error {
		t.Fatal("fn must not be called")
		return nil
	})
	assert.ErrorIs(t, err, ErrNoChannel)
}

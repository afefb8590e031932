package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы событий жизненного цикла run.
const (
	MessageTypeRunStarted   MessageType = "run.started"
	MessageTypeRunSucceeded MessageType = "run.succeeded"
	MessageTypeRunFailed    MessageType = "run.failed"
)

// Message — конверт публикуемого сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// RunEventPayload — payload событий run.*.
type RunEventPayload struct {
	RunID       uuid.UUID          `json:"run_id"`
	ProjectID   uuid.UUID          `json:"project_id"`
	PipelineID  uuid.UUID          `json:"pipeline_id"`
	State       domain.RunState    `json:"state"`
	StateReason string             `json:"state_reason,omitempty"`
	FailureCode domain.FailureCode `json:"failure_code,omitempty"`
	FailedStage domain.Stage       `json:"failed_stage,omitempty"`
}

// EventTypeFor возвращает тип события по состоянию run.
func EventTypeFor(state domain.RunState) (MessageType, bool) {
	switch state {
	case domain.RunStateRunning:
		return MessageTypeRunStarted, true
	case domain.RunStateSucceeded:
		return MessageTypeRunSucceeded, true
	case domain.RunStateFailed:
		return MessageTypeRunFailed, true
	default:
		return "", false
	}
}

// NewRunEvent собирает сообщение о текущем состоянии run.
func NewRunEvent(run *domain.Run, now time.Time) (*Message, error) {
	msgType, ok := EventTypeFor(run.State)
	if !ok {
		return nil, fmt.Errorf("no event for run state %q", run.State)
	}

	payload, err := json.Marshal(RunEventPayload{
		RunID:       run.ID,
		ProjectID:   run.ProjectID,
		PipelineID:  run.PipelineID,
		State:       run.State,
		StateReason: run.StateReason,
		FailureCode: run.FailureCode,
		FailedStage: run.FailedStage,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: now.UTC(),
	}, nil
}

// Publisher публикует события в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *zap.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key, равным типу сообщения.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	routingKey := string(msg.Type)

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			routingKey,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			zap.String("exchange", string(exchange)),
			zap.String("routing_key", routingKey),
			zap.String("message_id", msg.ID),
		)
		return nil
	})
}

// PublishRunEvent публикует событие о смене состояния run.
func (p *Publisher) PublishRunEvent(ctx context.Context, run *domain.Run) error {
	msg, err := NewRunEvent(run, time.Now())
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeRuns, msg)
}

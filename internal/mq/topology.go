package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	// ExchangeRuns — topic exchange событий run.
	ExchangeRuns Exchange = "medallion.runs"

	// QueueRunEvents — долговечная очередь для внешних потребителей.
	QueueRunEvents Queue = "runs.events"

	// RoutingKeyAllRuns совпадает со всеми событиями run.*.
	RoutingKeyAllRuns RoutingKey = "run.#"
)

// SetupTopology объявляет exchange и очередь событий. Операции идемпотентны.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchange(ch); err != nil {
			return err
		}

		_, err := ch.QueueDeclare(
			string(QueueRunEvents),
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueRunEvents, err)
		}

		return bindQueue(ch, string(QueueRunEvents))
	})
}

// DeclareTailQueue объявляет временную эксклюзивную очередь, привязанную к run.#,
// и возвращает её имя, выданное сервером. Очередь удаляется вместе с соединением.
func DeclareTailQueue(ctx context.Context, conn *Connection) (string, error) {
	var name string
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchange(ch); err != nil {
			return err
		}

		q, err := ch.QueueDeclare(
			"",
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare tail queue: %w", err)
		}
		name = q.Name

		return bindQueue(ch, q.Name)
	})
	return name, err
}

func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeRuns),
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeRuns, err)
	}
	return nil
}

func bindQueue(ch *amqp.Channel, queue string) error {
	if err := ch.QueueBind(queue, string(RoutingKeyAllRuns), string(ExchangeRuns), false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, ExchangeRuns, err)
	}
	return nil
}

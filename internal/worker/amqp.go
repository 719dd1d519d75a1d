package worker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

type AMQPConfig struct {
	URL          string
	Queue        string
	ResultsQueue string
}

type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ServeAMQP consumes requests from a queue, one delivery at a time, and
// publishes each response to the delivery's ReplyTo queue or, without one,
// to the results queue. It returns when ctx is done or the broker closes
// the channel.
func (w *Worker) ServeAMQP(ctx context.Context, cfg AMQPConfig) error {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return errors.Wrap(err, "dial rabbitmq")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open rabbitmq channel")
	}
	defer ch.Close()

	for _, q := range []string{cfg.Queue, cfg.ResultsQueue} {
		_, err = ch.QueueDeclare(
			q,     // name
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return errors.Wrapf(err, "declare queue %s", q)
		}
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return errors.Wrap(err, "set prefetch")
	}

	msgs, err := ch.Consume(
		cfg.Queue, // queue
		"",        // consumer tag
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return errors.Wrap(err, "consume")
	}
	w.log.Info().Str("queue", cfg.Queue).Msg("consuming")
	return w.consume(ctx, ch, msgs, cfg.ResultsQueue)
}

func (w *Worker) consume(ctx context.Context, pub publisher, msgs <-chan amqp.Delivery, resultsQueue string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			w.deliver(ctx, pub, d, resultsQueue)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, pub publisher, d amqp.Delivery, resultsQueue string) {
	resp := w.Handle(ctx, d.Body)
	body, err := encodeLine(resp)
	if err != nil {
		body, _ = encodeLine(failure(resp.ID, err))
	}

	key := d.ReplyTo
	if key == "" {
		key = resultsQueue
	}
	err = pub.Publish("", key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: d.CorrelationId,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		w.log.Error().Err(err).Str("queue", key).Msg("failed to publish response")
		if err := d.Nack(false, true); err != nil {
			w.log.Error().Err(err).Msg("failed to nack delivery")
		}
		return
	}
	if err := d.Ack(false); err != nil {
		w.log.Error().Err(err).Msg("failed to ack delivery")
	}
}

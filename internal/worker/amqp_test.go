package worker

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type published struct {
	key string
	msg amqp.Publishing
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key, msg})
	return nil
}

type fakeAcker struct {
	acked, nacked []uint64
	requeued      bool
}

func (f *fakeAcker) Ack(tag uint64, _ bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	f.nacked = append(f.nacked, tag)
	f.requeued = requeue
	return nil
}

func (f *fakeAcker) Reject(uint64, bool) error { return nil }

func TestConsume(t *testing.T) {
	w := newWorker(t, Config{Oracle: &fakeOracle{answer: warningAnswer}})
	pub := &fakePublisher{}
	acker := &fakeAcker{}

	msgs := make(chan amqp.Delivery, 2)
	msgs <- amqp.Delivery{
		Acknowledger:  acker,
		DeliveryTag:   1,
		Body:          []byte(requestLine("a", "", []byte("%PDF-1.4"))),
		ReplyTo:       "reply.a",
		CorrelationId: "corr-a",
	}
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte(`{"id":"b"}`)}
	close(msgs)

	err := w.consume(context.Background(), pub, msgs, "cv_review_results")
	require.Error(t, err, "a closed delivery channel ends consumption")

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "reply.a", pub.sent[0].key)
	assert.Equal(t, "corr-a", pub.sent[0].msg.CorrelationId)
	assert.Equal(t, "application/json", pub.sent[0].msg.ContentType)
	assert.True(t, gjson.GetBytes(pub.sent[0].msg.Body, "ok").Bool())

	assert.Equal(t, "cv_review_results", pub.sent[1].key)
	assert.Equal(t, "b", gjson.GetBytes(pub.sent[1].msg.Body, "id").String())
	assert.False(t, gjson.GetBytes(pub.sent[1].msg.Body, "ok").Bool())

	assert.Equal(t, []uint64{1, 2}, acker.acked)
	assert.Empty(t, acker.nacked)
}

func TestConsume_PublishFailureRequeues(t *testing.T) {
	w := newWorker(t, Config{Oracle: &fakeOracle{answer: warningAnswer}})
	pub := &fakePublisher{err: errors.New("channel closed")}
	acker := &fakeAcker{}

	w.deliver(context.Background(), pub, amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  7,
		Body:         []byte(requestLine("a", "", []byte("%PDF-1.4"))),
	}, "results")

	assert.Empty(t, acker.acked)
	assert.Equal(t, []uint64{7}, acker.nacked)
	assert.True(t, acker.requeued)
}

func TestConsume_StopsOnContext(t *testing.T) {
	w := newWorker(t, Config{Oracle: &fakeOracle{answer: warningAnswer}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.consume(ctx, &fakePublisher{}, make(chan amqp.Delivery), "results")
	assert.NoError(t, err)
}

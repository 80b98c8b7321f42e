package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   string
	prefetch   int
	published  []amqp.Publishing
	deliveries chan amqp.Delivery
	cancelled  bool
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = name
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Cancel(string, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cancelled {
		f.cancelled = true
		close(f.deliveries)
	}
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type ackRecord struct {
	acked    bool
	nacked   bool
	requeue  bool
	rejected bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records map[uint64]*ackRecord
}

func (a *fakeAcknowledger) record(tag uint64) *ackRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.records == nil {
		a.records = map[uint64]*ackRecord{}
	}
	if a.records[tag] == nil {
		a.records[tag] = &ackRecord{}
	}
	return a.records[tag]
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.record(tag).acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	r := a.record(tag)
	r.nacked = true
	r.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, _ bool) error {
	a.record(tag).rejected = true
	return nil
}

func TestQueueDispatchPublishesPersistentMessage(t *testing.T) {
	ch := newFakeChannel()
	q, err := newQueue(ch, nil, AMQPConfig{Workers: 3}, func(context.Context, int64) error { return nil }, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultQueueName, ch.declared)
	assert.Equal(t, 3, ch.prefetch)

	require.NoError(t, q.Dispatch(context.Background(), 42))
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)

	var body evaluationMessage
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, int64(42), body.ApplicationID)

	require.NoError(t, q.Shutdown(context.Background()))
	assert.True(t, ch.closed)
	assert.True(t, errors.Is(q.Dispatch(context.Background(), 1), ErrClosed))
}

func TestQueueConsumeAcksAndNacks(t *testing.T) {
	ch := newFakeChannel()
	acks := &fakeAcknowledger{}

	var (
		mu   sync.Mutex
		seen []int64
	)
	q, err := newQueue(ch, nil, AMQPConfig{Workers: 1}, func(_ context.Context, id int64) error {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		if id == 2 {
			return errors.New("store unavailable")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	require.NoError(t, q.Consume())

	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, Body: []byte(`{"application_id":1}`)}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 2, Body: []byte(`{"application_id":2}`)}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 3, Body: []byte(`not json`)}

	require.NoError(t, q.Shutdown(context.Background()))

	assert.Equal(t, []int64{1, 2}, seen)
	assert.True(t, acks.record(1).acked)
	assert.True(t, acks.record(2).nacked)
	assert.False(t, acks.record(2).requeue)
	assert.True(t, acks.record(3).rejected)
}

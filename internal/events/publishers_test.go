package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	channel string
	message interface{}
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message
	return redis.NewIntResult(1, f.err)
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(
	_ context.Context,
	exchange, key string,
	_, _ bool,
	msg amqp.Publishing,
) error {
	f.exchange = exchange
	f.key = key
	f.msg = msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type recorder struct {
	backend string
	ok      []bool
}

func (r *recorder) EventPublished(backend string, ok bool) {
	r.backend = backend
	r.ok = append(r.ok, ok)
}

func TestRedisPublisher(t *testing.T) {
	t.Parallel()

	client := &fakeRedis{}
	rec := &recorder{}
	p := newRedisPublisher(client, "scribe:progress", quietLogger(), rec)

	event, err := New(TypeJobResolved, uuid.New(), uuid.New(), "writing", map[string]int{"completed": 1})
	require.NoError(t, err)

	require.NoError(t, p.EmitEvent(context.Background(), event))
	assert.Equal(t, "scribe:progress:"+event.ProjectID.String(), client.channel)

	var decoded Event
	require.NoError(t, json.Unmarshal(client.message.([]byte), &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, TypeJobResolved, decoded.Type)

	client.err = errors.New("connection refused")
	assert.Error(t, p.EmitEvent(context.Background(), event))
	assert.Equal(t, "redis", rec.backend)
	assert.Equal(t, []bool{true, false}, rec.ok)
	assert.NoError(t, p.Close())
}

func TestNewRedisPublisherRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisPublisher("not a url", "p", quietLogger(), nil)
	assert.Error(t, err)
}

func TestAMQPPublisher(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	rec := &recorder{}
	p := newAMQPPublisher(ch, "scribe.progress", quietLogger(), rec)

	event, err := New(TypeCompleted, uuid.New(), uuid.New(), "completed", nil)
	require.NoError(t, err)

	require.NoError(t, p.EmitEvent(context.Background(), event))
	assert.Equal(t, "scribe.progress", ch.exchange)
	assert.Equal(t, string(TypeCompleted), ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, event.ID.String(), ch.msg.MessageId)

	ch.err = errors.New("channel closed")
	assert.Error(t, p.EmitEvent(context.Background(), event))
	assert.Equal(t, []bool{true, false}, rec.ok)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

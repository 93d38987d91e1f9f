package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeQueueEnqueueReserveAck(t *testing.T) {
	ctx := context.Background()
	q := NewFakeQueue()

	env := Envelope{Type: JobProcessFile, ID: "doc-1", Payload: []byte(`{}`)}
	require.NoError(t, q.Enqueue(ctx, env))

	got, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, env.ID, got.ID)

	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.InFlight)

	require.NoError(t, q.Ack(ctx, *got))

	m, err = q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.InFlight)
}

func TestFakeQueueReserveEmptyReturnsNil(t *testing.T) {
	ctx := context.Background()
	q := NewFakeQueue()

	got, err := q.Reserve(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFakeQueueRetryLaterIncrementsAttemptAndDelays(t *testing.T) {
	ctx := context.Background()
	q := NewFakeQueue()

	env := Envelope{Type: JobProcessFile, ID: "doc-1", Attempt: 0}
	require.NoError(t, q.Enqueue(ctx, env))
	reserved, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.RetryLater(ctx, *reserved, 10*time.Millisecond))

	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Delayed)
	assert.Equal(t, int64(0), m.InFlight)

	promoted, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)

	time.Sleep(15 * time.Millisecond)
	promoted, err = q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	retried, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, 1, retried.Attempt)
}

func TestFakeQueueDeadletter(t *testing.T) {
	ctx := context.Background()
	q := NewFakeQueue()

	env := Envelope{Type: JobProcessFile, ID: "doc-1"}
	require.NoError(t, q.Enqueue(ctx, env))
	reserved, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Deadletter(ctx, *reserved))

	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.InFlight)
	assert.Equal(t, int64(1), m.Dead)
}

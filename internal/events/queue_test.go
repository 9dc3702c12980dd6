package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDeliversToHandler(t *testing.T) {
	q, err := NewQueue(watermill.NopLogger{})
	require.NoError(t, err)
	defer q.Close()

	received := make(chan string, 1)
	q.AddHandler("test-handler", "test.topic", func(msg *message.Message) error {
		received <- string(msg.Payload)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()
	<-q.Running()

	msg := message.NewMessage(watermill.NewUUID(), []byte("hello"))
	require.NoError(t, q.Publisher().Publish("test.topic", msg))

	select {
	case payload := <-received:
		assert.Equal(t, "hello", payload)
	case <-time.After(5 * time.Second):
		t.Fatal("message never reached the handler")
	}
}

func TestQueueRetriesFailingHandler(t *testing.T) {
	q, err := NewQueue(watermill.NopLogger{})
	require.NoError(t, err)
	defer q.Close()

	var attempts atomic.Int64
	done := make(chan struct{})
	q.AddHandler("flaky-handler", "retry.topic", func(msg *message.Message) error {
		if attempts.Add(1) < 2 {
			return assert.AnError
		}
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()
	<-q.Running()

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{}`))
	require.NoError(t, q.Publisher().Publish("retry.topic", msg))

	select {
	case <-done:
		assert.Equal(t, int64(2), attempts.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not retried to success")
	}
}

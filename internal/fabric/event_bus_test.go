package fabric

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEventBusDelivers(t *testing.T) {
	bus := NewLocalEventBus()
	defer bus.Close()

	received := make(chan *Event, 1)
	bus.Subscribe(EventPaymentSettled, func(_ context.Context, e *Event) error {
		received <- e
		return nil
	})

	err := bus.Publish(context.Background(), &Event{
		Type:    EventPaymentSettled,
		Source:  "settlement-abc123",
		Payload: map[string]any{"amount_hbar": 0.4},
	})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, "settlement-abc123", e.Source)
		assert.Equal(t, 0.4, e.Payload["amount_hbar"])
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestLocalEventBusTypeIsolation(t *testing.T) {
	bus := NewLocalEventBus()
	defer bus.Close()

	received := make(chan *Event, 1)
	bus.Subscribe(EventPaymentSettled, func(_ context.Context, e *Event) error {
		received <- e
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), &Event{Type: EventAgentRegistered}))

	select {
	case <-received:
		t.Fatal("received event of a different type")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLocalEventBusUnsubscribe(t *testing.T) {
	bus := NewLocalEventBus()
	defer bus.Close()

	var count int
	var mu sync.Mutex
	unsub := bus.Subscribe(EventMessageRecorded, func(context.Context, *Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	unsub()

	require.NoError(t, bus.Publish(context.Background(), &Event{Type: EventMessageRecorded}))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

// fakeRedis implements RedisPubSubClient in memory.
type fakeRedis struct {
	mu       sync.Mutex
	handlers map[string][]func([]byte)
	failPub  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{handlers: make(map[string][]func([]byte))}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPub {
		return errors.New("redis down")
	}
	for _, h := range f.handlers[channel] {
		go h(message)
	}
	return nil
}

func (f *fakeRedis) Subscribe(_ context.Context, channel string, handler func([]byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[channel] = append(f.handlers[channel], handler)
	return func() {}, nil
}

func TestRedisEventBusRoundTrip(t *testing.T) {
	redis := newFakeRedis()
	bus := NewRedisEventBus(redis, "economy:events:")

	received := make(chan *Event, 1)
	bus.Subscribe(EventPaymentSettled, func(_ context.Context, e *Event) error {
		received <- e
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), &Event{
		Type:    EventPaymentSettled,
		Source:  "settlement-abc123",
		Payload: map[string]any{"task_id": "task-1"},
	}))

	select {
	case e := <-received:
		assert.Equal(t, "task-1", e.Payload["task_id"])
		assert.NotEmpty(t, e.ID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered through redis")
	}
}

func TestRedisEventBusFallsBackToLocal(t *testing.T) {
	redis := newFakeRedis()
	redis.failPub = true
	bus := NewRedisEventBus(redis, "economy:events:")

	received := make(chan *Event, 1)
	bus.Subscribe(EventPaymentSettled, func(_ context.Context, e *Event) error {
		received <- e
		return nil
	})

	// A redis outage degrades to in-process delivery, never an error.
	require.NoError(t, bus.Publish(context.Background(), &Event{Type: EventPaymentSettled}))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("event not delivered locally on redis failure")
	}
}

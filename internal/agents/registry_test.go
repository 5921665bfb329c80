package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoranet/backend/internal/economy"
)

func TestRegistryAnnouncesThenHeartbeats(t *testing.T) {
	bus := newStubBus()
	store := economy.NewStore()
	r := NewRegistry(bus, store, 100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool {
		types := bus.published(TopicRegistry)
		return len(types) >= 2
	}, 3*time.Second, 20*time.Millisecond)

	types := bus.published(TopicRegistry)
	assert.Equal(t, economy.MsgRegister, types[0])
	assert.Equal(t, economy.MsgHeartbeat, types[1])
}

func TestRegistryHeartbeatPayload(t *testing.T) {
	bus := newStubBus()
	store := economy.NewStore()
	r := NewRegistry(bus, store, time.Minute, nil)

	w := economy.NewAgentRecord(economy.AgentWorker, "Worker-summarizer", []string{"summarize"})
	store.RegisterAgent(w)
	store.CreditWorker(w.AgentID, 0.4)

	r.heartbeat(context.Background())

	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.submissions, 1)
	payload := bus.submissions[0].msg.Payload

	// JSON round-trips numbers as float64.
	assert.Equal(t, float64(1), payload["tasks_completed"])
	agents, ok := payload["agents"].([]any)
	require.True(t, ok)
	assert.Len(t, agents, 2) // registry itself plus the worker
}

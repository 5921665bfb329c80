// Package agents implements the four economy roles (registry, broker,
// worker, settlement) as long-lived concurrent actors coordinating over
// consensus topics. Each agent runs one goroutine (Run), owns its own
// registry record, and shares the economy state store with everyone else.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agoranet/backend/internal/economy"
	"github.com/agoranet/backend/internal/monitoring"
)

// Logical topic names used by the economy protocol.
const (
	TopicRegistry = "registry"
	TopicTasks    = "tasks"
	TopicResults  = "results"
	TopicPayments = "payments"
)

// TopicNames lists every topic the economy uses, in ensure order.
func TopicNames() []string {
	return []string{TopicRegistry, TopicTasks, TopicResults, TopicPayments}
}

// Idle poll interval for the queue-driven agent loops. Bounded waits keep
// the loops responsive to cancellation.
const queuePollInterval = 5 * time.Second

var (
	// ErrNoWorkerAvailable means no idle worker could take the task.
	// The caller must resubmit; the broker does not queue or retry.
	ErrNoWorkerAvailable = errors.New("agents: no worker available")

	// ErrQueueFull is returned when a bounded submission queue rejects
	// a new entry. Overflow policy is reject, not block or drop.
	ErrQueueFull = errors.New("agents: queue full")
)

// TopicBus is the slice of the consensus client the agents depend on.
// *hedera.Client satisfies it; tests substitute stubs.
type TopicBus interface {
	Submit(ctx context.Context, topicName string, message []byte) (txID string, seq int64, err error)
	Transfer(ctx context.Context, toAccount string, amount float64) (string, error)
	AccountID() string
	Network() string
	IsMock() bool
	Topics() map[string]string
}

// Base carries the identity and capabilities every agent role shares:
// a registry record, the topic bus, the state store, and metrics.
type Base struct {
	rec     *economy.AgentRecord
	bus     TopicBus
	store   *economy.Store
	metrics *monitoring.Metrics
	log     *slog.Logger
}

func newBase(agentType economy.AgentType, name string, skills []string, bus TopicBus, store *economy.Store, metrics *monitoring.Metrics) *Base {
	rec := economy.NewAgentRecord(agentType, name, skills)
	store.RegisterAgent(rec)
	return &Base{
		rec:     rec,
		bus:     bus,
		store:   store,
		metrics: metrics,
		log: slog.Default().With(
			"agent", strings.ToUpper(string(agentType)),
			"agent_id", rec.AgentID,
		),
	}
}

// ID returns the agent's id.
func (b *Base) ID() string { return b.rec.AgentID }

// Record returns the agent's live registry record.
func (b *Base) Record() *economy.AgentRecord { return b.rec }

// publish stamps a topic message, submits it to the bus, and records the
// committed copy (with bus-assigned sequence and tx id) in the store.
func (b *Base) publish(ctx context.Context, topic string, msgType economy.MessageType, payload map[string]any) (string, error) {
	msg := economy.NewTopicMessage(topic, b.rec.AgentID, msgType, payload)
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal %s message: %w", msgType, err)
	}

	txID, seq, err := b.bus.Submit(ctx, topic, data)
	if b.metrics != nil {
		b.metrics.RecordPublish(topic, string(msgType), err)
	}
	if err != nil {
		return "", err
	}

	msg.TxID = txID
	msg.SequenceNumber = seq
	b.store.RecordMessage(msg)
	return txID, nil
}

// setStatus transitions this agent's own advisory status.
func (b *Base) setStatus(status economy.AgentStatus) {
	b.store.SetStatus(b.rec.AgentID, status)
	if b.metrics != nil {
		b.metrics.SetAgentBusy(b.rec.AgentID, string(b.rec.AgentType), status == economy.StatusBusy)
	}
}

// truncate clips s to at most n bytes for payload previews and error
// summaries.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

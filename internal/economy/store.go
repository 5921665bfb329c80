package economy

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/agoranet/backend/internal/fabric"
)

const (
	defaultMessageCap     = 500
	defaultTransactionCap = 200

	snapshotMessages     = 20
	snapshotTransactions = 10
)

// Store is the single shared state aggregate: the agent roster, the bounded
// message and transaction histories, and the economy-wide counters. All
// mutation goes through Store methods; the internal mutex is the unit of
// atomicity a Snapshot observes.
type Store struct {
	mu sync.RWMutex

	agents     map[string]*AgentRecord
	agentOrder []string

	messages     []*TopicMessage
	transactions []Transaction
	messageCap   int
	txCap        int

	tasksCompleted int
	totalSettled   float64
	topics         map[string]string
	startedAt      string

	bus fabric.EventBus
}

// StoreOption tunes a Store at construction.
type StoreOption func(*Store)

// WithHistoryCaps overrides the bounded history retention limits.
func WithHistoryCaps(messages, transactions int) StoreOption {
	return func(s *Store) {
		if messages > 0 {
			s.messageCap = messages
		}
		if transactions > 0 {
			s.txCap = transactions
		}
	}
}

// WithEventBus attaches an event bus notified on every state change.
func WithEventBus(bus fabric.EventBus) StoreOption {
	return func(s *Store) { s.bus = bus }
}

// NewStore creates an empty economy state store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		agents:     make(map[string]*AgentRecord),
		messageCap: defaultMessageCap,
		txCap:      defaultTransactionCap,
		topics:     make(map[string]string),
		startedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RegisterAgent inserts an agent into the roster. Registering the same id
// twice replaces the record.
func (s *Store) RegisterAgent(rec *AgentRecord) {
	s.mu.Lock()
	if _, exists := s.agents[rec.AgentID]; !exists {
		s.agentOrder = append(s.agentOrder, rec.AgentID)
	}
	s.agents[rec.AgentID] = rec
	s.mu.Unlock()

	s.emit(fabric.EventAgentRegistered, rec.AgentID, map[string]any{
		"agent_id":   rec.AgentID,
		"agent_type": string(rec.AgentType),
	})
}

// Agent returns the live record for an agent id.
func (s *Store) Agent(id string) (*AgentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.agents[id]
	return rec, ok
}

// Agents returns the roster in registration order.
func (s *Store) Agents() []*AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AgentRecord, 0, len(s.agentOrder))
	for _, id := range s.agentOrder {
		out = append(out, s.agents[id])
	}
	return out
}

// SetStatus transitions an agent's advisory status. Callers must only
// transition agents they own.
func (s *Store) SetStatus(agentID string, status AgentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.agents[agentID]; ok {
		rec.Status = status
	}
}

// CreditWorker applies a completed task to a worker's lifetime counters and
// bumps the economy-wide completion count.
func (s *Store) CreditWorker(agentID string, earned float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.agents[agentID]; ok {
		rec.TasksCompleted++
		rec.Earnings = round4(rec.Earnings + earned)
	}
	s.tasksCompleted++
}

// RecordMessage appends a published message to the bounded history,
// evicting the oldest entries beyond the retention cap.
func (s *Store) RecordMessage(msg *TopicMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	if len(s.messages) > s.messageCap {
		s.messages = s.messages[len(s.messages)-s.messageCap:]
	}
	s.mu.Unlock()

	s.emit(fabric.EventMessageRecorded, msg.Sender, map[string]any{
		"topic":        msg.Topic,
		"message_type": string(msg.MessageType),
	})
}

// Messages returns up to limit of the most recent messages, oldest first.
func (s *Store) Messages(limit int) []*TopicMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tailMessages(s.messages, limit)
}

// MessageCount returns the current history length.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// RecordTransaction appends a settlement record and adds its amount to the
// settled total. The total is monotonically non-decreasing.
func (s *Store) RecordTransaction(txn Transaction) {
	s.mu.Lock()
	s.transactions = append(s.transactions, txn)
	if len(s.transactions) > s.txCap {
		s.transactions = s.transactions[len(s.transactions)-s.txCap:]
	}
	s.totalSettled = round4(s.totalSettled + txn.Amount)
	s.mu.Unlock()

	s.emit(fabric.EventPaymentSettled, txn.WorkerID, map[string]any{
		"task_id":     txn.TaskID,
		"amount_hbar": txn.Amount,
		"tx_id":       txn.TxID,
	})
}

// Transactions returns up to limit of the most recent settlements, oldest first.
func (s *Store) Transactions(limit int) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.transactions) {
		limit = len(s.transactions)
	}
	out := make([]Transaction, limit)
	copy(out, s.transactions[len(s.transactions)-limit:])
	return out
}

// TransactionCount returns the current history length.
func (s *Store) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

// TotalSettled returns the committed settlement total.
func (s *Store) TotalSettled() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSettled
}

// TasksCompleted returns the economy-wide completion count.
func (s *Store) TasksCompleted() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasksCompleted
}

// SetTopics records the resolved topic name → id mapping for display.
func (s *Store) SetTopics(topics map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = make(map[string]string, len(topics))
	for k, v := range topics {
		s.topics[k] = v
	}
}

// Stats are the aggregate economy counters included in every snapshot.
type Stats struct {
	TasksCompleted int               `json:"tasks_completed"`
	TotalSettled   float64           `json:"total_hbar_settled"`
	ActiveAgents   int               `json:"active_agents"`
	TotalAgents    int               `json:"total_agents"`
	Topics         map[string]string `json:"topics"`
}

// Snapshot is a consistent point-in-time view of the economy, suitable for
// periodic broadcast: the full roster, the 20 most recent messages, the 10
// most recent transactions, and aggregate stats.
type Snapshot struct {
	Agents       []AgentRecord   `json:"agents"`
	Messages     []*TopicMessage `json:"messages"`
	Transactions []Transaction   `json:"transactions"`
	Stats        Stats           `json:"stats"`
	Timestamp    string          `json:"timestamp"`
}

// Snapshot captures the current state under a single lock acquisition so it
// never observes a partially-applied mutation. Agent records are copied by
// value; messages are immutable once recorded.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]AgentRecord, 0, len(s.agentOrder))
	active := 0
	for _, id := range s.agentOrder {
		rec := s.agents[id]
		agents = append(agents, *rec)
		if rec.Status != StatusOffline {
			active++
		}
	}

	txns := s.transactions
	if len(txns) > snapshotTransactions {
		txns = txns[len(txns)-snapshotTransactions:]
	}
	txnCopy := make([]Transaction, len(txns))
	copy(txnCopy, txns)

	topics := make(map[string]string, len(s.topics))
	for k, v := range s.topics {
		topics[k] = v
	}

	return Snapshot{
		Agents:       agents,
		Messages:     tailMessages(s.messages, snapshotMessages),
		Transactions: txnCopy,
		Stats: Stats{
			TasksCompleted: s.tasksCompleted,
			TotalSettled:   round4(s.totalSettled),
			ActiveAgents:   active,
			TotalAgents:    len(s.agents),
			Topics:         topics,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Store) emit(eventType fabric.EventType, source string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(context.Background(), &fabric.Event{
		Type:      eventType,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func tailMessages(msgs []*TopicMessage, limit int) []*TopicMessage {
	if limit <= 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	out := make([]*TopicMessage, limit)
	copy(out, msgs[len(msgs)-limit:])
	return out
}

// round4 rounds currency amounts to four decimal places, the settlement
// precision used across the economy.
func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

// Round4 is the exported form used by the agents for cost computation.
func Round4(x float64) float64 { return round4(x) }

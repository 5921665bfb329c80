// Package economy holds the shared data model and the in-memory state
// store for the agent economy: who the agents are, what they said on the
// consensus topics, and what has been settled.
package economy

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AgentType classifies the role an agent plays in the economy.
type AgentType string

const (
	AgentRegistry   AgentType = "registry"
	AgentBroker     AgentType = "broker"
	AgentWorker     AgentType = "worker"
	AgentSettlement AgentType = "settlement"
)

// AgentStatus is the advisory liveness state of an agent. It is used for
// worker selection, not as a lock; see the broker for the implications.
type AgentStatus string

const (
	StatusIdle    AgentStatus = "idle"
	StatusBusy    AgentStatus = "busy"
	StatusOffline AgentStatus = "offline"
)

// MessageType is the closed set of message kinds on the consensus topics.
type MessageType string

const (
	MsgRegister    MessageType = "REGISTER"
	MsgTaskRequest MessageType = "TASK_REQUEST"
	MsgTaskBid     MessageType = "TASK_BID"
	MsgTaskAssign  MessageType = "TASK_ASSIGN"
	MsgTaskResult  MessageType = "TASK_RESULT"
	MsgPayment     MessageType = "PAYMENT"
	MsgHeartbeat   MessageType = "HEARTBEAT"
)

// TaskStatus is the terminal outcome of a task execution.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// AgentRecord is the registry entry for one agent. The record is shared by
// reference: the owning agent transitions Status, the worker increments its
// own counters, and everyone else only reads.
type AgentRecord struct {
	AgentID        string      `json:"agent_id"`
	AgentType      AgentType   `json:"agent_type"`
	Name           string      `json:"name"`
	Skills         []string    `json:"skills"`
	Balance        float64     `json:"hbar_balance"`
	TasksCompleted int         `json:"tasks_completed"`
	Earnings       float64     `json:"earnings_hbar"`
	Status         AgentStatus `json:"status"`
	RegisteredAt   string      `json:"registered_at"`
}

// NewAgentRecord creates a registry entry with the standard starting
// balance and an id of the form "<type>-<6 hex chars>".
func NewAgentRecord(agentType AgentType, name string, skills []string) *AgentRecord {
	return &AgentRecord{
		AgentID:      string(agentType) + "-" + uuid.NewString()[:6],
		AgentType:    agentType,
		Name:         name,
		Skills:       skills,
		Balance:      10.0,
		Status:       StatusIdle,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// HasSkillFor reports whether any advertised skill claims the task type.
// Matching is substring containment: a "summarize" skill claims task types
// like "summarize" or "summarize-long".
func (a *AgentRecord) HasSkillFor(taskType string) bool {
	for _, skill := range a.Skills {
		if skill != "" && strings.Contains(taskType, skill) {
			return true
		}
	}
	return false
}

// TopicMessage is one entry on a consensus topic. Immutable once published;
// the sequence number is assigned by the topic bus, never the caller.
type TopicMessage struct {
	ID                 string         `json:"id"`
	Topic              string         `json:"topic"`
	Sender             string         `json:"sender"`
	MessageType        MessageType    `json:"message_type"`
	Payload            map[string]any `json:"payload"`
	SequenceNumber     int64          `json:"sequence_number"`
	ConsensusTimestamp string         `json:"consensus_timestamp"`
	TxID               string         `json:"tx_id,omitempty"`
}

// NewTopicMessage stamps a fresh message for publication. Sequence number
// and tx id are filled in by the topic bus at submit time.
func NewTopicMessage(topic, sender string, msgType MessageType, payload map[string]any) *TopicMessage {
	if payload == nil {
		payload = map[string]any{}
	}
	return &TopicMessage{
		ID:                 uuid.NewString()[:8],
		Topic:              topic,
		Sender:             sender,
		MessageType:        msgType,
		Payload:            payload,
		ConsensusTimestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// TaskRequest enters the economy at the broker and is consumed exactly once.
type TaskRequest struct {
	TaskID      string  `json:"task_id"`
	TaskType    string  `json:"task_type"`
	Payload     string  `json:"payload"`
	Budget      float64 `json:"budget_hbar"`
	Requester   string  `json:"requester"`
	SubmittedAt string  `json:"submitted_at"`
}

// NewTaskRequest fills the request defaults: generated 12-char id, 0.5
// budget, "user" requester.
func NewTaskRequest(taskType, payload string) *TaskRequest {
	return &TaskRequest{
		TaskID:      uuid.NewString()[:12],
		TaskType:    taskType,
		Payload:     payload,
		Budget:      0.5,
		Requester:   "user",
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Normalize backstops zero values on requests that arrive over the wire.
func (r *TaskRequest) Normalize() {
	if r.TaskID == "" {
		r.TaskID = uuid.NewString()[:12]
	}
	if r.Budget <= 0 {
		r.Budget = 0.5
	}
	if r.Requester == "" {
		r.Requester = "user"
	}
	if r.SubmittedAt == "" {
		r.SubmittedAt = time.Now().UTC().Format(time.RFC3339)
	}
}

// TaskResult is produced by the worker and immutable thereafter.
// Cost never exceeds the request budget.
type TaskResult struct {
	TaskID      string     `json:"task_id"`
	WorkerID    string     `json:"worker_id"`
	TaskType    string     `json:"task_type"`
	Result      string     `json:"result"`
	Cost        float64    `json:"cost_hbar"`
	DurationMS  int64      `json:"duration_ms"`
	CompletedAt string     `json:"completed_at"`
	TxID        string     `json:"tx_id,omitempty"`
	Status      TaskStatus `json:"status"`
}

// Transaction records one settled payment.
type Transaction struct {
	TaskID     string  `json:"task_id"`
	WorkerID   string  `json:"worker_id"`
	Amount     float64 `json:"amount_hbar"`
	TxID       string  `json:"tx_id"`
	DurationMS int64   `json:"duration_ms"`
	Timestamp  string  `json:"timestamp"`
	Network    string  `json:"network"`
	Mock       bool    `json:"mock"`
}

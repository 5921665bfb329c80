package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/agoranet/backend/internal/economy"
	"github.com/agoranet/backend/internal/monitoring"
)

type settlementRequest struct {
	taskID   string
	workerID string
	amount   float64
}

// Settlement commits HBAR micropayments for completed tasks: transfer,
// PAYMENT publication, and the store's settlement aggregates. Transfer
// failures propagate to the caller; money movement is never silently
// downgraded.
type Settlement struct {
	*Base
	queue chan settlementRequest
}

// NewSettlement creates the settlement agent. queueSize bounds the async
// QueueSettlement entry point.
func NewSettlement(bus TopicBus, store *economy.Store, queueSize int, metrics *monitoring.Metrics) *Settlement {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Settlement{
		Base:  newBase(economy.AgentSettlement, "Settlement Agent", []string{"pay", "settle", "transfer"}, bus, store, metrics),
		queue: make(chan settlementRequest, queueSize),
	}
}

// SettleTask settles payment for a completed task and returns the external
// transaction id. On any failure the agent is back to idle and nothing has
// been recorded: no PAYMENT message, no transaction, no settled-total bump.
func (s *Settlement) SettleTask(ctx context.Context, taskID, workerID string, amount float64) (string, error) {
	s.setStatus(economy.StatusBusy)
	defer s.setStatus(economy.StatusIdle)

	start := time.Now()

	account := s.payableAccount(workerID)
	txID, err := s.bus.Transfer(ctx, account, amount)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordSettlement(amount, time.Since(start).Seconds(), err)
		}
		return "", fmt.Errorf("transfer %.4f to %s for task %s: %w", amount, account, taskID, err)
	}

	if _, err := s.publish(ctx, TopicPayments, economy.MsgPayment, map[string]any{
		"task_id":        taskID,
		"worker_id":      workerID,
		"worker_account": account,
		"amount_hbar":    amount,
		"tx_id":          txID,
		"settled_at":     time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		if s.metrics != nil {
			s.metrics.RecordSettlement(amount, time.Since(start).Seconds(), err)
		}
		return "", err
	}

	s.store.RecordTransaction(economy.Transaction{
		TaskID:     taskID,
		WorkerID:   workerID,
		Amount:     amount,
		TxID:       txID,
		DurationMS: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Network:    s.bus.Network(),
		Mock:       s.bus.IsMock(),
	})
	if s.metrics != nil {
		s.metrics.RecordSettlement(amount, time.Since(start).Seconds(), nil)
	}

	s.log.Info("Settled payment",
		"task_id", taskID, "worker_id", workerID,
		"amount_hbar", amount, "tx_id", txID, "mock", s.bus.IsMock())
	return txID, nil
}

// payableAccount resolves the account a worker is paid into. Workers do
// not yet register distinct payable accounts, so settlement goes to the
// operator account; a production deployment would take the account from
// the worker's REGISTER message.
func (s *Settlement) payableAccount(string) string {
	return s.bus.AccountID()
}

// QueueSettlement hands a settlement to the background loop for
// fire-and-forget processing. Rejects with ErrQueueFull at capacity.
func (s *Settlement) QueueSettlement(taskID, workerID string, amount float64) error {
	select {
	case s.queue <- settlementRequest{taskID: taskID, workerID: workerID, amount: amount}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the settlement queue until cancelled. Individual settlement
// failures are logged; the loop keeps settling.
func (s *Settlement) Run(ctx context.Context) {
	s.log.Info("Starting, ready to settle payments")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopping")
			return
		case req := <-s.queue:
			if _, err := s.SettleTask(ctx, req.taskID, req.workerID, req.amount); err != nil {
				s.log.Warn("Settlement failed", "task_id", req.taskID, "error", err)
			}
		case <-time.After(queuePollInterval):
			// Idle tick keeps the wait bounded.
		}
	}
}

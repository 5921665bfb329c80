package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoranet/backend/internal/economy"
)

func TestSettleTaskRecordsEverything(t *testing.T) {
	bus := newStubBus()
	store := economy.NewStore()
	s := NewSettlement(bus, store, 8, nil)

	txID, err := s.SettleTask(context.Background(), "task-1", "worker-abc123", 0.4)
	require.NoError(t, err)
	assert.Equal(t, "0.0.1001@0.settlement", txID)

	// The transfer went to the operator account for the full amount.
	require.Len(t, bus.transfers, 1)
	assert.Equal(t, "0.0.1001", bus.transfers[0].account)
	assert.Equal(t, 0.4, bus.transfers[0].amount)

	// PAYMENT on the wire with the settlement details.
	payments := bus.published(TopicPayments)
	require.Equal(t, []economy.MessageType{economy.MsgPayment}, payments)

	txns := store.Transactions(0)
	require.Len(t, txns, 1)
	assert.Equal(t, "task-1", txns[0].TaskID)
	assert.Equal(t, "worker-abc123", txns[0].WorkerID)
	assert.Equal(t, 0.4, txns[0].Amount)
	assert.Equal(t, txID, txns[0].TxID)
	assert.Equal(t, "testnet", txns[0].Network)
	assert.True(t, txns[0].Mock)
	assert.Equal(t, 0.4, store.TotalSettled())

	rec, _ := store.Agent(s.ID())
	assert.Equal(t, economy.StatusIdle, rec.Status)
}

func TestSettleTaskTransferFailure(t *testing.T) {
	bus := newStubBus()
	bus.transferErr = errBackendDown
	store := economy.NewStore()
	s := NewSettlement(bus, store, 8, nil)

	_, err := s.SettleTask(context.Background(), "task-1", "worker-abc123", 0.4)
	require.ErrorIs(t, err, errBackendDown)

	// Nothing is recorded on a failed transfer: no PAYMENT, no
	// transaction, no settled-total bump.
	assert.Empty(t, bus.published(TopicPayments))
	assert.Zero(t, store.TransactionCount())
	assert.Zero(t, store.TotalSettled())

	rec, _ := store.Agent(s.ID())
	assert.Equal(t, economy.StatusIdle, rec.Status)
}

func TestSettleTaskPublishFailure(t *testing.T) {
	bus := newStubBus()
	store := economy.NewStore()
	s := NewSettlement(bus, store, 8, nil)

	// The transfer succeeds, then the PAYMENT publish fails. The error
	// propagates and the transaction is not recorded.
	bus.submitErr = errBackendDown
	_, err := s.SettleTask(context.Background(), "task-1", "worker-abc123", 0.4)
	require.ErrorIs(t, err, errBackendDown)

	assert.Len(t, bus.transfers, 1)
	assert.Zero(t, store.TransactionCount())
	assert.Zero(t, store.TotalSettled())
}

func TestQueueSettlementRejectsWhenFull(t *testing.T) {
	bus := newStubBus()
	store := economy.NewStore()
	s := NewSettlement(bus, store, 1, nil)

	require.NoError(t, s.QueueSettlement("task-1", "worker-abc123", 0.4))
	assert.ErrorIs(t, s.QueueSettlement("task-2", "worker-abc123", 0.4), ErrQueueFull)
}

func TestSettlementRunDrainsQueue(t *testing.T) {
	bus := newStubBus()
	store := economy.NewStore()
	s := NewSettlement(bus, store, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.NoError(t, s.QueueSettlement("task-1", "worker-abc123", 0.4))
	require.NoError(t, s.QueueSettlement("task-2", "worker-abc123", 0.6))

	require.Eventually(t, func() bool {
		return store.TransactionCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, store.TotalSettled())
}

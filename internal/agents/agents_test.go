package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/agoranet/backend/internal/economy"
)

// stubBus records submissions in order and lets tests inject failures.
type stubBus struct {
	mu          sync.Mutex
	submissions []stubSubmission
	transfers   []stubTransfer
	seq         map[string]int64
	submitErr   error
	transferErr error
}

type stubSubmission struct {
	topic string
	msg   economy.TopicMessage
}

type stubTransfer struct {
	account string
	amount  float64
}

func newStubBus() *stubBus {
	return &stubBus{seq: make(map[string]int64)}
}

func (b *stubBus) Submit(_ context.Context, topicName string, message []byte) (string, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return "", 0, b.submitErr
	}
	var msg economy.TopicMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return "", 0, err
	}
	b.seq[topicName]++
	b.submissions = append(b.submissions, stubSubmission{topic: topicName, msg: msg})
	return fmt.Sprintf("0.0.1001@0.%06d", b.seq[topicName]), b.seq[topicName], nil
}

func (b *stubBus) Transfer(_ context.Context, toAccount string, amount float64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transferErr != nil {
		return "", b.transferErr
	}
	b.transfers = append(b.transfers, stubTransfer{account: toAccount, amount: amount})
	return "0.0.1001@0.settlement", nil
}

func (b *stubBus) AccountID() string { return "0.0.1001" }
func (b *stubBus) Network() string   { return "testnet" }
func (b *stubBus) IsMock() bool      { return true }
func (b *stubBus) Topics() map[string]string {
	return map[string]string{"registry": "0.0.1", "tasks": "0.0.2", "results": "0.0.3", "payments": "0.0.4"}
}

// published returns the message types submitted on a topic, in order.
func (b *stubBus) published(topic string) []economy.MessageType {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []economy.MessageType
	for _, s := range b.submissions {
		if s.topic == topic {
			out = append(out, s.msg.MessageType)
		}
	}
	return out
}

// failingCompleter always errors, simulating a fulfillment backend outage.
type failingCompleter struct{ err error }

func (f failingCompleter) Complete(context.Context, string, string) (string, error) {
	return "", f.err
}

var errBackendDown = errors.New("fulfillment backend unreachable")

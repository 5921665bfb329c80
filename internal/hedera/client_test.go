package hedera

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "0.0.5483526"

func newMockClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(testAccount, "", "testnet", WithMockLatency(0))
}

func TestModeSelection(t *testing.T) {
	assert.True(t, NewClient(testAccount, "", "testnet").IsMock())
	assert.False(t, NewClient(testAccount, "302e0201...", "testnet").IsMock())
}

func TestEnsureTopicsIdempotent(t *testing.T) {
	c := newMockClient(t)
	names := []string{"registry", "tasks", "results", "payments"}

	first, err := c.EnsureTopics(context.Background(), names, nil)
	require.NoError(t, err)
	require.Len(t, first, 4)

	for _, name := range names {
		assert.Regexp(t, regexp.MustCompile(`^0\.0\.[1-9]\d{6}$`), first[name])
	}

	second, err := c.EnsureTopics(context.Background(), names, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first, c.Topics())
}

func TestEnsureTopicsUsesPreset(t *testing.T) {
	c := newMockClient(t)

	topics, err := c.EnsureTopics(context.Background(), []string{"registry", "tasks"},
		map[string]string{"tasks": "0.0.4242424"})
	require.NoError(t, err)

	assert.Equal(t, "0.0.4242424", topics["tasks"])
	assert.NotEqual(t, "0.0.4242424", topics["registry"])
}

func TestMockTopicIDDeterministic(t *testing.T) {
	a := newMockClient(t)
	b := newMockClient(t)

	ta, err := a.EnsureTopics(context.Background(), []string{"tasks"}, nil)
	require.NoError(t, err)
	tb, err := b.EnsureTopics(context.Background(), []string{"tasks"}, nil)
	require.NoError(t, err)

	// Same memo, same id, across independent clients.
	assert.Equal(t, ta["tasks"], tb["tasks"])
}

func TestSubmitUnknownTopic(t *testing.T) {
	c := newMockClient(t)

	_, _, err := c.Submit(context.Background(), "nope", []byte("{}"))
	assert.ErrorIs(t, err, ErrUnknownTopic)

	_, err = c.FetchMessages(context.Background(), "nope", 10)
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestSubmitSequenceNumbers(t *testing.T) {
	c := newMockClient(t)
	_, err := c.EnsureTopics(context.Background(), []string{"tasks", "results"}, nil)
	require.NoError(t, err)

	txRe := regexp.MustCompile(`^0\.0\.5483526@\d+\.\d{6}$`)
	for i := int64(1); i <= 3; i++ {
		txID, seq, err := c.Submit(context.Background(), "tasks", []byte("{}"))
		require.NoError(t, err)
		assert.Equal(t, i, seq)
		assert.Regexp(t, txRe, txID)
	}

	// Sequences are tracked per topic.
	_, seq, err := c.Submit(context.Background(), "results", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestSubmitSequencesConcurrent(t *testing.T) {
	c := newMockClient(t)
	_, err := c.EnsureTopics(context.Background(), []string{"tasks"}, nil)
	require.NoError(t, err)

	const n = 50
	seqs := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, seq, err := c.Submit(context.Background(), "tasks", []byte("{}"))
			assert.NoError(t, err)
			seqs[i] = seq
		}(i)
	}
	wg.Wait()

	// Every sequence 1..n appears exactly once: strictly increasing with
	// no gaps under concurrent publishers.
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i := 0; i < n; i++ {
		assert.Equal(t, int64(i+1), seqs[i])
	}
}

func TestMockBalanceAndTransfer(t *testing.T) {
	c := newMockClient(t)

	bal, err := c.AccountBalance(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 100.0, bal)

	txID, err := c.Transfer(context.Background(), "0.0.9999", 0.4)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^0\.0\.5483526@\d+\.settlement$`), txID)
}

func TestMockFetchMessagesEmpty(t *testing.T) {
	c := newMockClient(t)
	_, err := c.EnsureTopics(context.Background(), []string{"tasks"}, nil)
	require.NoError(t, err)

	msgs, err := c.FetchMessages(context.Background(), "tasks", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestLiveSubmitUsesBackendTxID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/topics":
			json.NewEncoder(w).Encode(map[string]string{"topic_id": "0.0.7777777"})
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]string{"transaction_id": "0.0.5483526@1724567890.123456789"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(testAccount, "302e0201...", "testnet",
		WithSubmitBase(srv.URL), WithMockLatency(0))

	topics, err := c.EnsureTopics(context.Background(), []string{"tasks"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.7777777", topics["tasks"])

	txID, seq, err := c.Submit(context.Background(), "tasks", []byte(`{"k":"v"}`))
	require.NoError(t, err)
	assert.Equal(t, "0.0.5483526@1724567890.123456789", txID)
	assert.Equal(t, int64(1), seq)
}

func TestLiveSubmitDegradesToMockScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testAccount, "302e0201...", "testnet",
		WithSubmitBase(srv.URL), WithMockLatency(0))

	// Topic creation falls back to the deterministic id scheme.
	topics, err := c.EnsureTopics(context.Background(), []string{"tasks"}, nil)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^0\.0\.[1-9]\d{6}$`), topics["tasks"])

	// Submission still succeeds with a synthesized tx id and a valid
	// sequence number.
	txID, seq, err := c.Submit(context.Background(), "tasks", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	assert.Regexp(t, regexp.MustCompile(`^0\.0\.5483526@\d+\.000001$`), txID)
}

func TestFetchMessagesDecodesMirrorPayload(t *testing.T) {
	content, _ := json.Marshal(map[string]any{"message_type": "TASK_REQUEST", "task_id": "abc"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/topics/0.0.7777777/messages")
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{
					"sequence_number":     2,
					"consensus_timestamp": "1724567890.000000001",
					"message":             base64.StdEncoding.EncodeToString(content),
				},
				{
					"sequence_number":     1,
					"consensus_timestamp": "1724567880.000000001",
					"message":             "!!!not-base64!!!",
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(testAccount, "302e0201...", "testnet",
		WithMirrorBase(srv.URL), WithMockLatency(0))
	_, err := c.EnsureTopics(context.Background(), []string{"tasks"},
		map[string]string{"tasks": "0.0.7777777"})
	require.NoError(t, err)

	msgs, err := c.FetchMessages(context.Background(), "tasks", 10)
	require.NoError(t, err)
	// Undecodable entries are skipped, not fatal.
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(2), msgs[0].SequenceNumber)
	assert.Equal(t, "TASK_REQUEST", msgs[0].Content["message_type"])
}

func TestLiveAccountBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/0.0.5483526", r.URL.Path)
		fmt.Fprint(w, `{"balance":{"balance":250000000}}`)
	}))
	defer srv.Close()

	c := NewClient(testAccount, "302e0201...", "testnet",
		WithMirrorBase(srv.URL), WithMockLatency(0))

	bal, err := c.AccountBalance(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2.5, bal)
}

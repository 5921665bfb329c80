// HTTP handlers for the agent economy API. Each handler is a closure over
// its dependencies so the router wiring in cmd/api stays explicit.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/agoranet/backend/internal/economy"
	"github.com/agoranet/backend/internal/hedera"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a bounded JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// limitParam parses ?limit= with a default and hard cap.
func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Health reports liveness plus the consensus backend mode.
func Health(client *hedera.Client, store *economy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"network": client.Network(),
			"mock":    client.IsMock(),
			"account": client.AccountID(),
			"agents":  len(store.Agents()),
		})
	}
}

// State returns the full economy snapshot: agents, recent messages,
// recent transactions, and aggregate stats.
func State(store *economy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Snapshot())
	}
}

// Agents returns every registered agent in registration order.
func Agents(store *economy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"agents": store.Agents(),
		})
	}
}

// Messages returns the most recent topic messages, newest last.
func Messages(store *economy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := limitParam(r, 50, 500)
		writeJSON(w, http.StatusOK, map[string]any{
			"messages": store.Messages(limit),
			"total":    store.MessageCount(),
		})
	}
}

// Transactions returns the most recent settlements, newest last.
func Transactions(store *economy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := limitParam(r, 50, 200)
		writeJSON(w, http.StatusOK, map[string]any{
			"transactions":       store.Transactions(limit),
			"total":              store.TransactionCount(),
			"total_hbar_settled": store.TotalSettled(),
		})
	}
}

package agents

import (
	"context"
	"time"

	"github.com/agoranet/backend/internal/economy"
	"github.com/agoranet/backend/internal/monitoring"
)

// Registry settling delay before the first announcement.
const registryAnnounceDelay = 1 * time.Second

// Registry announces the economy's presence on the registry topic and
// broadcasts a liveness heartbeat with the full roster at a fixed
// interval. Heartbeats are fire-and-forget: a publish failure is logged
// and the loop continues at the next interval.
type Registry struct {
	*Base
	interval time.Duration
}

// NewRegistry creates the registry agent with the given heartbeat interval.
func NewRegistry(bus TopicBus, store *economy.Store, interval time.Duration, metrics *monitoring.Metrics) *Registry {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Registry{
		Base:     newBase(economy.AgentRegistry, "Registry Agent", []string{"register", "discover", "heartbeat"}, bus, store, metrics),
		interval: interval,
	}
}

// Run announces after a short settling delay, then heartbeats forever.
func (r *Registry) Run(ctx context.Context) {
	r.log.Info("Starting, will broadcast registry heartbeats")

	if err := sleepCtx(ctx, registryAnnounceDelay); err != nil {
		return
	}
	r.announce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Stopping")
			return
		case <-ticker.C:
			r.heartbeat(ctx)
		}
	}
}

// announce publishes the registry's presence and the full known-agent set.
func (r *Registry) announce(ctx context.Context) {
	known := make([]string, 0)
	for _, rec := range r.store.Agents() {
		known = append(known, rec.AgentID)
	}

	if _, err := r.publish(ctx, TopicRegistry, economy.MsgRegister, map[string]any{
		"registry_id":  r.ID(),
		"known_agents": known,
		"status":       "online",
		"topics":       r.bus.Topics(),
	}); err != nil {
		r.log.Warn("Registry announcement failed", "error", err)
		return
	}
	r.log.Info("Registry announced", "known_agents", len(known))
}

// heartbeat broadcasts the roster summary and aggregate economy stats.
func (r *Registry) heartbeat(ctx context.Context) {
	roster := r.store.Agents()
	summary := make([]map[string]any, 0, len(roster))
	for _, rec := range roster {
		summary = append(summary, map[string]any{
			"id":     rec.AgentID,
			"type":   string(rec.AgentType),
			"status": string(rec.Status),
			"skills": rec.Skills,
		})
	}

	if _, err := r.publish(ctx, TopicRegistry, economy.MsgHeartbeat, map[string]any{
		"agents":             summary,
		"tasks_completed":    r.store.TasksCompleted(),
		"total_hbar_settled": r.store.TotalSettled(),
	}); err != nil {
		r.log.Warn("Heartbeat publish failed", "error", err)
		return
	}
	r.log.Info("Heartbeat", "agents", len(summary))
}

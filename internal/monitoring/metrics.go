// Package monitoring exposes Prometheus metrics for the agent economy.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the coordination layer.
type Metrics struct {
	// Task metrics
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec

	// Topic bus metrics
	MessagesPublished *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec

	// Settlement metrics
	SettledTotal       prometheus.Counter
	SettlementDuration prometheus.Histogram
	SettlementFailures prometheus.Counter

	// Roster metrics
	AgentBusy   *prometheus.GaugeVec
	AgentsTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics with a custom
// registerer so tests can use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "economy_tasks_total",
				Help: "Total tasks executed, by worker and outcome",
			},
			[]string{"worker_id", "status"}, // status: completed, failed
		),

		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "economy_task_duration_seconds",
				Help:    "Wall-clock task execution duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task_type"},
		),

		MessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "economy_messages_published_total",
				Help: "Messages published to consensus topics",
			},
			[]string{"topic", "message_type"},
		),

		PublishFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "economy_publish_failures_total",
				Help: "Topic publish attempts that returned an error",
			},
			[]string{"topic"},
		),

		SettledTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "economy_settled_hbar_total",
				Help: "Cumulative HBAR settled for completed tasks",
			},
		),

		SettlementDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "economy_settlement_duration_seconds",
				Help:    "Duration of settlement operations",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),

		SettlementFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "economy_settlement_failures_total",
				Help: "Settlements that failed before committing",
			},
		),

		AgentBusy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "economy_agent_busy",
				Help: "Whether an agent is busy (1) or idle (0)",
			},
			[]string{"agent_id", "agent_type"},
		),

		AgentsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "economy_agents_total",
				Help: "Number of registered agents",
			},
		),
	}
}

// RecordTask records one task execution outcome.
func (m *Metrics) RecordTask(workerID, taskType, status string, seconds float64) {
	m.TasksTotal.WithLabelValues(workerID, status).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(seconds)
}

// RecordPublish records a topic publish attempt.
func (m *Metrics) RecordPublish(topic, messageType string, err error) {
	if err != nil {
		m.PublishFailures.WithLabelValues(topic).Inc()
		return
	}
	m.MessagesPublished.WithLabelValues(topic, messageType).Inc()
}

// RecordSettlement records a settlement outcome.
func (m *Metrics) RecordSettlement(amount, seconds float64, err error) {
	if err != nil {
		m.SettlementFailures.Inc()
		return
	}
	m.SettledTotal.Add(amount)
	m.SettlementDuration.Observe(seconds)
}

// SetAgentBusy flips the busy gauge for an agent.
func (m *Metrics) SetAgentBusy(agentID, agentType string, busy bool) {
	v := 0.0
	if busy {
		v = 1.0
	}
	m.AgentBusy.WithLabelValues(agentID, agentType).Set(v)
}

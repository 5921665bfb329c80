package monitoring

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTask(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTask("worker-abc123", "summarize", "completed", 0.1)
	m.RecordTask("worker-abc123", "summarize", "failed", 0.2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("worker-abc123", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("worker-abc123", "failed")))
}

func TestRecordPublishSplitsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPublish("tasks", "TASK_REQUEST", nil)
	m.RecordPublish("tasks", "TASK_REQUEST", errors.New("backend down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesPublished.WithLabelValues("tasks", "TASK_REQUEST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishFailures.WithLabelValues("tasks")))
}

func TestRecordSettlement(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSettlement(0.4, 0.05, nil)
	m.RecordSettlement(0.6, 0.05, nil)
	m.RecordSettlement(0.9, 0.05, errors.New("transfer failed"))

	// Failed settlements never add to the settled total.
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettledTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettlementFailures))
}

func TestSetAgentBusy(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetAgentBusy("worker-abc123", "worker", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentBusy.WithLabelValues("worker-abc123", "worker")))

	m.SetAgentBusy("worker-abc123", "worker", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AgentBusy.WithLabelValues("worker-abc123", "worker")))
}

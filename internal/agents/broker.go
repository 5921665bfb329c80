package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/agoranet/backend/internal/economy"
	"github.com/agoranet/backend/internal/monitoring"
)

// Broker matches task requests to capable workers and drives the task
// protocol: TASK_REQUEST → TASK_ASSIGN → execute → TASK_RESULT, then an
// asynchronous settlement handoff. SubmitTask is end-to-end synchronous
// from the broker's point of view; dispatch is serialized per broker.
type Broker struct {
	*Base
	directory *Directory
	settler   *Settlement
	queue     chan *economy.TaskRequest
}

// BrokerOption tunes a Broker at construction.
type BrokerOption func(*Broker)

// WithBrokerQueueSize bounds the background-mode task queue.
func WithBrokerQueueSize(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.queue = make(chan *economy.TaskRequest, n)
		}
	}
}

// WithSettlement chains completed tasks into asynchronous settlement.
func WithSettlement(s *Settlement) BrokerOption {
	return func(b *Broker) { b.settler = s }
}

// NewBroker creates the broker agent and registers it in the store.
func NewBroker(bus TopicBus, store *economy.Store, directory *Directory, metrics *monitoring.Metrics, opts ...BrokerOption) *Broker {
	br := &Broker{
		Base:      newBase(economy.AgentBroker, "Broker Agent", []string{"match", "assign", "route"}, bus, store, metrics),
		directory: directory,
		queue:     make(chan *economy.TaskRequest, 32),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(br)
		}
	}
	return br
}

// SubmitTask accepts a task, finds a worker, executes, and publishes the
// result. Status is restored to idle on every path, including panics and
// publish failures, before the error reaches the caller.
func (br *Broker) SubmitTask(ctx context.Context, req *economy.TaskRequest) (*economy.TaskResult, error) {
	req.Normalize()

	br.setStatus(economy.StatusBusy)
	defer br.setStatus(economy.StatusIdle)

	if _, err := br.publish(ctx, TopicTasks, economy.MsgTaskRequest, map[string]any{
		"task_id":         req.TaskID,
		"task_type":       req.TaskType,
		"payload_preview": truncate(req.Payload, 100),
		"budget_hbar":     req.Budget,
		"requester":       req.Requester,
	}); err != nil {
		return nil, err
	}

	worker, err := br.selectWorker(req.TaskType)
	if err != nil {
		return nil, err
	}

	if _, err := br.publish(ctx, TopicTasks, economy.MsgTaskAssign, map[string]any{
		"task_id":     req.TaskID,
		"worker_id":   worker.ID(),
		"task_type":   req.TaskType,
		"budget_hbar": req.Budget,
	}); err != nil {
		return nil, err
	}
	br.log.Info("Assigned task", "task_id", req.TaskID, "task_type", req.TaskType, "worker_id", worker.ID())

	result := worker.ExecuteTask(ctx, req)

	if _, err := br.publish(ctx, TopicResults, economy.MsgTaskResult, map[string]any{
		"task_id":     result.TaskID,
		"worker_id":   result.WorkerID,
		"cost_hbar":   result.Cost,
		"duration_ms": result.DurationMS,
		"status":      string(result.Status),
	}); err != nil {
		return nil, err
	}

	if br.settler != nil && result.Status == economy.TaskCompleted && result.Cost > 0 {
		if err := br.settler.QueueSettlement(result.TaskID, result.WorkerID, result.Cost); err != nil {
			br.log.Warn("Settlement queue rejected task", "task_id", result.TaskID, "error", err)
		}
	}

	return result, nil
}

// selectWorker picks an idle worker for the task type. Skill matching is
// substring containment against the task-type tag, falling back to any
// idle worker; ties break to the fewest lifetime completions. The status
// read is advisory: a worker may turn busy between selection and
// dispatch, and the double-dispatch is tolerated.
func (br *Broker) selectWorker(taskType string) (Executable, error) {
	var candidates []*economy.AgentRecord
	var anyIdle []*economy.AgentRecord

	for _, rec := range br.store.Agents() {
		if rec.AgentType != economy.AgentWorker || rec.Status != economy.StatusIdle {
			continue
		}
		anyIdle = append(anyIdle, rec)
		if rec.HasSkillFor(taskType) {
			candidates = append(candidates, rec)
		}
	}

	if len(candidates) == 0 {
		candidates = anyIdle
	}

	var best *economy.AgentRecord
	for _, rec := range candidates {
		if best == nil || rec.TasksCompleted < best.TasksCompleted {
			best = rec
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w for task type %q", ErrNoWorkerAvailable, taskType)
	}

	worker, ok := br.directory.Lookup(best.AgentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no executable handle", ErrNoWorkerAvailable, best.AgentID)
	}
	return worker, nil
}

// Enqueue hands a task to the background loop. Rejects with ErrQueueFull
// when the bounded queue is at capacity.
func (br *Broker) Enqueue(req *economy.TaskRequest) error {
	select {
	case br.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the task queue until the context is cancelled. Errors from
// individual tasks are logged; the loop keeps brokering.
func (br *Broker) Run(ctx context.Context) {
	br.log.Info("Starting, ready to broker tasks")
	for {
		select {
		case <-ctx.Done():
			br.log.Info("Stopping")
			return
		case req := <-br.queue:
			if _, err := br.SubmitTask(ctx, req); err != nil {
				br.log.Warn("Task failed", "task_id", req.TaskID, "error", err)
			}
		case <-time.After(queuePollInterval):
			// Idle tick keeps the wait bounded.
		}
	}
}

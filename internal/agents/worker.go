package agents

import (
	"context"
	"time"

	"github.com/agoranet/backend/internal/economy"
	"github.com/agoranet/backend/internal/fulfillment"
	"github.com/agoranet/backend/internal/monitoring"
)

// instructionTemplates maps task types to role-specific instructions for
// the fulfillment backend. Unknown types fall through to the generic
// default.
var instructionTemplates = map[string]string{
	"summarize":     "You are a concise summarization agent. Summarize the following in 3-5 bullet points:",
	"tldr":          "You are a TLDR agent. Give a 1-2 sentence summary of:",
	"abstract":      "You are a research abstract agent. Write a structured abstract for:",
	"review":        "You are a code review agent. Identify issues, bugs, and improvements in:",
	"lint":          "You are a linting agent. Check for style issues and best practice violations in:",
	"security-scan": "You are a security audit agent. Find security vulnerabilities in:",
	"analyze":       "You are a data analysis agent. Analyze and provide insights on:",
	"stats":         "You are a statistical analysis agent. Compute key statistics for:",
	"chart":         "You are a data visualization agent. Describe what charts would best represent:",
}

const defaultInstruction = "You are a helpful AI agent. Process the following task:"

// Worker announce delay: lets the other agents register before the skill
// profile hits the registry topic.
const workerAnnounceDelay = 1500 * time.Millisecond

// Worker executes tasks through the fulfillment backend. One task at a
// time: the agent is busy from acceptance until the TaskResult exists,
// then always returns to idle.
type Worker struct {
	*Base
	workerType  string
	completer   fulfillment.Completer
	workerShare float64
	queue       chan *economy.TaskRequest
}

// NewWorker creates a worker agent with the given skill profile.
// workerShare is the fraction of the task budget the worker keeps
// (the platform retains the rest).
func NewWorker(bus TopicBus, store *economy.Store, completer fulfillment.Completer, workerType string, skills []string, workerShare float64, metrics *monitoring.Metrics) *Worker {
	if workerShare <= 0 || workerShare > 1 {
		workerShare = 0.8
	}
	return &Worker{
		Base:        newBase(economy.AgentWorker, "Worker-"+workerType, skills, bus, store, metrics),
		workerType:  workerType,
		completer:   completer,
		workerShare: workerShare,
		queue:       make(chan *economy.TaskRequest, 16),
	}
}

// ExecuteTask runs one task end to end. Fulfillment failures are a normal,
// observable outcome: they come back as a failed TaskResult with zero cost,
// never as an error. The worker is back to idle before this returns.
func (w *Worker) ExecuteTask(ctx context.Context, req *economy.TaskRequest) *economy.TaskResult {
	w.setStatus(economy.StatusBusy)
	defer w.setStatus(economy.StatusIdle)

	start := time.Now()
	instruction := instructionFor(req.TaskType)

	text, err := w.completer.Complete(ctx, instruction, req.Payload)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		w.log.Warn("Task failed", "task_id", req.TaskID, "error", err)
		if w.metrics != nil {
			w.metrics.RecordTask(w.ID(), req.TaskType, string(economy.TaskFailed), time.Since(start).Seconds())
		}
		return &economy.TaskResult{
			TaskID:      req.TaskID,
			WorkerID:    w.ID(),
			TaskType:    req.TaskType,
			Result:      "Task failed: " + truncate(err.Error(), 200),
			Cost:        0,
			DurationMS:  durationMS,
			CompletedAt: time.Now().UTC().Format(time.RFC3339),
			Status:      economy.TaskFailed,
		}
	}

	cost := economy.Round4(req.Budget * w.workerShare)
	w.store.CreditWorker(w.ID(), cost)
	if w.metrics != nil {
		w.metrics.RecordTask(w.ID(), req.TaskType, string(economy.TaskCompleted), time.Since(start).Seconds())
	}
	w.log.Info("Completed task", "task_id", req.TaskID, "duration_ms", durationMS, "earned_hbar", cost)

	return &economy.TaskResult{
		TaskID:      req.TaskID,
		WorkerID:    w.ID(),
		TaskType:    req.TaskType,
		Result:      text,
		Cost:        cost,
		DurationMS:  durationMS,
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
		Status:      economy.TaskCompleted,
	}
}

// Enqueue hands a task to the background loop. Rejects when full.
func (w *Worker) Enqueue(req *economy.TaskRequest) error {
	select {
	case w.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run announces the skill profile on the registry topic, then drains the
// task queue until cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("Starting", "skills", w.rec.Skills)

	if err := sleepCtx(ctx, workerAnnounceDelay); err != nil {
		return
	}
	if _, err := w.publish(ctx, TopicRegistry, economy.MsgRegister, map[string]any{
		"agent_id":    w.ID(),
		"agent_type":  string(economy.AgentWorker),
		"worker_type": w.workerType,
		"skills":      w.rec.Skills,
		"status":      string(economy.StatusIdle),
	}); err != nil {
		w.log.Warn("Registration publish failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Stopping")
			return
		case req := <-w.queue:
			w.ExecuteTask(ctx, req)
		case <-time.After(queuePollInterval):
			// Idle tick keeps the wait bounded.
		}
	}
}

func instructionFor(taskType string) string {
	if tpl, ok := instructionTemplates[taskType]; ok {
		return tpl
	}
	return defaultInstruction
}

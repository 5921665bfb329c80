package handlers

import (
	"errors"
	"net/http"

	"github.com/agoranet/backend/internal/agents"
	"github.com/agoranet/backend/internal/economy"
)

// taskSubmission is the POST /api/v1/task request body.
type taskSubmission struct {
	TaskType  string  `json:"task_type"`
	Payload   string  `json:"payload"`
	Budget    float64 `json:"budget_hbar"`
	Requester string  `json:"requester"`
}

// SubmitTask runs a task through the broker synchronously and returns the
// result. No idle worker maps to 503; the task is not queued or retried.
func SubmitTask(broker *agents.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body taskSubmission
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if body.TaskType == "" {
			writeError(w, http.StatusBadRequest, "task_type is required")
			return
		}

		req := economy.NewTaskRequest(body.TaskType, body.Payload)
		req.Budget = body.Budget
		req.Requester = body.Requester

		result, err := broker.SubmitTask(r.Context(), req)
		if err != nil {
			if errors.Is(err, agents.ErrNoWorkerAvailable) {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// demoTask is one scripted submission for the demo run.
type demoTask struct {
	taskType string
	payload  string
	budget   float64
}

var demoTasks = []demoTask{
	{"summarize", "Decentralized agent economies let autonomous AI agents discover each other, negotiate work, and settle micropayments over a public consensus ledger without any central coordinator.", 0.5},
	{"review", "func div(a, b int) int { return a / b }", 1.0},
	{"analyze", "q1_revenue=120000, q2_revenue=135000, q3_revenue=128000, q4_revenue=161000", 0.75},
}

// DemoRun submits a scripted batch of tasks across the worker skill
// profiles and returns every result. Per-task failures are reported
// inline so one busy worker does not abort the batch.
func DemoRun(broker *agents.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make([]map[string]any, 0, len(demoTasks))

		for _, dt := range demoTasks {
			req := economy.NewTaskRequest(dt.taskType, dt.payload)
			req.Budget = dt.budget
			req.Requester = "demo"

			result, err := broker.SubmitTask(r.Context(), req)
			if err != nil {
				results = append(results, map[string]any{
					"task_type": dt.taskType,
					"error":     err.Error(),
				})
				continue
			}
			results = append(results, map[string]any{
				"task_type": dt.taskType,
				"result":    result,
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"tasks_submitted": len(demoTasks),
			"results":         results,
		})
	}
}

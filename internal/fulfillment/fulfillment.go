// Package fulfillment abstracts the computation service that turns a task
// payload into a result: the Completer contract, an Anthropic-backed HTTP
// implementation, and a canned implementation for keyless deployments.
package fulfillment

import "context"

// Completer executes one instruction against a payload and returns the
// result text. Workers convert a returned error into a failed TaskResult
// rather than propagating it.
type Completer interface {
	Complete(ctx context.Context, instruction, payload string) (string, error)
}

package agents

import (
	"context"
	"sync"

	"github.com/agoranet/backend/internal/economy"
)

// Executable is the execution capability every worker-type agent must
// implement. The broker dispatches through this interface uniformly; a
// worker never raises, failures come back as a failed TaskResult.
type Executable interface {
	ID() string
	ExecuteTask(ctx context.Context, req *economy.TaskRequest) *economy.TaskResult
}

// Directory maps agent ids to live Executable handles. It is constructed
// at boot and injected into the broker; there is no ambient scan of the
// process for worker objects.
type Directory struct {
	mu      sync.RWMutex
	workers map[string]Executable
}

// NewDirectory creates an empty agent directory.
func NewDirectory() *Directory {
	return &Directory{workers: make(map[string]Executable)}
}

// Register adds a worker handle, keyed by its agent id.
func (d *Directory) Register(w Executable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workers[w.ID()] = w
}

// Lookup resolves an agent id to its live handle.
func (d *Directory) Lookup(id string) (Executable, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.workers[id]
	return w, ok
}

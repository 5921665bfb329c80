package fulfillment

import (
	"context"
	"fmt"
	"strings"
)

// CannedCompleter produces deterministic placeholder results. Used when no
// API key is configured, mirroring the ledger's mock mode: the economy
// stays fully exercisable without external services.
type CannedCompleter struct{}

// NewCannedCompleter returns the keyless fallback completer.
func NewCannedCompleter() *CannedCompleter { return &CannedCompleter{} }

// Complete echoes a short synthetic result derived from the inputs.
func (CannedCompleter) Complete(_ context.Context, instruction, payload string) (string, error) {
	preview := payload
	if len(preview) > 80 {
		preview = preview[:80] + "…"
	}
	role := strings.SplitN(instruction, ".", 2)[0]
	return fmt.Sprintf("[canned] %s: processed %q (%d bytes)", role, preview, len(payload)), nil
}

package telemetry

import "sync"

// BatchScope models the process-wide LLM_ADAPTER_BATCH_ID of spec.md
// §5/§9 as a small mutex-guarded holder instead of a bare global, per
// the design note's "scoped setter" guidance. The Coordinator updates it
// once per Run that carries runtime.batchId; a default Logger factory
// may read it to pick its output bucket.
type BatchScope struct {
	mu      sync.RWMutex
	current string
}

// NewBatchScope creates an empty scope.
func NewBatchScope() *BatchScope {
	return &BatchScope{}
}

// Current returns the active batch id, empty string if none was set.
func (b *BatchScope) Current() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// SetIfChanged updates the batch id and reports whether it actually
// changed, so callers can reset a logger only when needed (spec.md §4.11:
// "resetting the logger iff the current bucket differs").
func (b *BatchScope) SetIfChanged(id string) bool {
	if id == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == id {
		return false
	}
	b.current = id
	return true
}

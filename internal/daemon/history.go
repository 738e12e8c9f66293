package daemon

import (
	"sync"
	"time"

	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/runner"
)

// RunRecord is the retained summary of one completed run. Step outputs and
// credentials are deliberately absent; the record is safe to expose on the
// admin surface.
type RunRecord struct {
	RunID      string           `json:"run_id"`
	Trigger    pipeline.Trigger `json:"trigger"`
	Status     runner.Status    `json:"status"`
	Revision   string           `json:"revision,omitempty"`
	FailedStep string           `json:"failed_step,omitempty"`
	BundleID   string           `json:"bundle_id,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// History is a fixed-capacity ring of recent run records, newest first.
type History struct {
	mu      sync.RWMutex
	records []RunRecord
	next    int
	filled  bool
}

// NewHistory creates a history retaining the most recent capacity runs.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 32
	}
	return &History{records: make([]RunRecord, capacity)}
}

// Record summarizes a finished run into the ring.
func (h *History) Record(res pipeline.Result) {
	rec := RunRecord{
		RunID:      res.RunID,
		Trigger:    res.Trigger,
		Status:     res.Status,
		Revision:   res.Source.Short(),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if step, ok := res.Artifact.FailedStep(); ok {
		rec.FailedStep = step.Name
	} else if step, ok := res.Flow.FailedStep(); ok {
		rec.FailedStep = step.Name
	}
	if res.Bundle != nil {
		rec.BundleID = res.Bundle.ID
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[h.next] = rec
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.filled = true
	}
}

// Snapshot returns the retained records, newest first.
func (h *History) Snapshot() []RunRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	if h.filled {
		size = len(h.records)
	}
	out := make([]RunRecord, 0, size)
	for i := 1; i <= size; i++ {
		idx := (h.next - i + len(h.records)) % len(h.records)
		out = append(out, h.records[idx])
	}
	return out
}

// Len returns the number of retained records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.filled {
		return len(h.records)
	}
	return h.next
}

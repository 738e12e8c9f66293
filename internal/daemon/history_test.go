package daemon

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/runner"
)

func resultWithID(id string, status runner.Status) pipeline.Result {
	return pipeline.Result{
		RunID:      id,
		Trigger:    pipeline.TriggerManual,
		Status:     status,
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	h := NewHistory(8)
	h.Record(resultWithID("first", runner.StatusSucceeded))
	h.Record(resultWithID("second", runner.StatusFailed))
	h.Record(resultWithID("third", runner.StatusSucceeded))

	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "third", snap[0].RunID)
	assert.Equal(t, "second", snap[1].RunID)
	assert.Equal(t, "first", snap[2].RunID)
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Record(resultWithID(fmt.Sprintf("run-%d", i), runner.StatusSucceeded))
	}

	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "run-4", snap[0].RunID)
	assert.Equal(t, "run-2", snap[2].RunID)
	assert.Equal(t, 3, h.Len())
}

func TestHistoryRecordsFailedStep(t *testing.T) {
	res := resultWithID("run-x", runner.StatusFailed)
	res.Flow = runner.StageResult{
		Stage:  pipeline.StageFlowVerification,
		Status: runner.StatusFailed,
		Steps: []runner.StepResult{
			{Name: "org-auth"},
			{Name: "flow-beta", Err: assert.AnError},
		},
	}

	h := NewHistory(4)
	h.Record(res)

	snap := h.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "flow-beta", snap[0].FailedStep)
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(4)
	assert.Empty(t, h.Snapshot())
	assert.Zero(t, h.Len())
}

package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/runner"
)

func TestDecodeTriggerRequest(t *testing.T) {
	req, err := decodeTriggerRequest([]byte(`{"source":"upstream-ci","secrets":{"UPSTREAM_TOKEN":"tok"}}`))
	require.NoError(t, err)
	assert.Equal(t, "upstream-ci", req.Source)
	assert.Equal(t, "tok", req.Secrets["UPSTREAM_TOKEN"])
}

func TestDecodeTriggerRequestEmptyBody(t *testing.T) {
	req, err := decodeTriggerRequest(nil)
	require.NoError(t, err)
	assert.Empty(t, req.Secrets)
}

func TestDecodeTriggerRequestMalformed(t *testing.T) {
	_, err := decodeTriggerRequest([]byte("{not json"))
	assert.Error(t, err)
}

func TestSummarizeFailedRun(t *testing.T) {
	res := pipeline.Result{
		RunID:  "run-9",
		Status: runner.StatusFailed,
		Artifact: runner.StageResult{
			Status: runner.StatusFailed,
			Steps: []runner.StepResult{
				{Name: "build"},
				{Name: "install-wheel", Err: assert.AnError},
			},
		},
	}

	reply := summarize(res)
	assert.Equal(t, "run-9", reply.RunID)
	assert.Equal(t, runner.StatusFailed, reply.Status)
	assert.Equal(t, "install-wheel", reply.FailedStep)
	assert.Empty(t, reply.Error)
}

func TestSummarizeOmitsOutputs(t *testing.T) {
	res := pipeline.Result{
		RunID:  "run-10",
		Status: runner.StatusSucceeded,
		Flow: runner.StageResult{
			Status: runner.StatusSucceeded,
			Steps:  []runner.StepResult{{Name: "flow-release", Output: "secret-laden output"}},
		},
	}

	reply := summarize(res)
	assert.Equal(t, runner.StatusSucceeded, reply.Status)
	assert.Empty(t, reply.FailedStep)
}

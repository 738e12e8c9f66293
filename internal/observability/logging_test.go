package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAccumulatesFields(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, "run-1")
	ctx = WithStage(ctx, "artifact-verification")
	ctx = WithStep(ctx, "build")

	lc := GetContext(ctx)
	assert.Equal(t, "run-1", lc.RunID)
	assert.Equal(t, "artifact-verification", lc.Stage)
	assert.Equal(t, "build", lc.Step)
}

func TestLaterWithOverridesEarlier(t *testing.T) {
	ctx := WithStep(context.Background(), "build")
	ctx = WithStep(ctx, "install-wheel")
	assert.Equal(t, "install-wheel", GetContext(ctx).Step)
}

func TestContextFieldsAppearInRecords(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := WithRunID(context.Background(), "run-42")
	ctx = WithStage(ctx, "release-flow-verification")
	InfoContext(ctx, "stage started")

	out := buf.String()
	require.Contains(t, out, "stage started")
	assert.Contains(t, out, "run.id=run-42")
	assert.Contains(t, out, "stage=release-flow-verification")
}

func TestEmptyContextAddsNoFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	InfoContext(context.Background(), "hello")
	out := buf.String()
	assert.NotContains(t, out, "run.id")
	assert.NotContains(t, out, "stage=")
}

package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "github.com/muselab-d2x/releasegate/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCaptureCollectsDirectoryTree(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "dist", "pkg-1.0.whl"), "wheel-bytes")
	writeFile(t, filepath.Join(src, "dist", "pkg-1.0.tar.gz"), "sdist-bytes")

	c := NewCapturer(t.TempDir())
	bundle, err := c.Capture(context.Background(), "run-1", []string{filepath.Join(src, "dist")})
	require.NoError(t, err)

	assert.Equal(t, "run-1", bundle.ID)
	assert.Len(t, bundle.Entries, 2)
	assert.Empty(t, bundle.Missing)

	got, err := os.ReadFile(filepath.Join(bundle.Path, "dist", "pkg-1.0.whl"))
	require.NoError(t, err)
	assert.Equal(t, "wheel-bytes", string(got))

	// manifest is addressable afterwards
	loaded, err := c.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, bundle.ID, loaded.ID)
	assert.Len(t, loaded.Entries, 2)
}

func TestCaptureOmitsMissingPaths(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "build.log"), "log")

	c := NewCapturer(t.TempDir())
	bundle, err := c.Capture(context.Background(), "run-2", []string{
		filepath.Join(src, "build.log"),
		filepath.Join(src, "does-not-exist"),
	})
	require.NoError(t, err, "missing paths are omitted, not fatal")

	assert.Len(t, bundle.Entries, 1)
	assert.Equal(t, []string{filepath.Join(src, "does-not-exist")}, bundle.Missing)
}

func TestCaptureIsIdempotent(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "dist", "pkg.whl"), "bytes")

	c := NewCapturer(t.TempDir())
	first, err := c.Capture(context.Background(), "run-3", []string{filepath.Join(src, "dist")})
	require.NoError(t, err)
	second, err := c.Capture(context.Background(), "run-3", []string{filepath.Join(src, "dist")})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, first.Entries[0].Path, second.Entries[0].Path)
	assert.Equal(t, first.Entries[0].Size, second.Entries[0].Size)

	// source untouched
	_, err = os.Stat(filepath.Join(src, "dist", "pkg.whl"))
	assert.NoError(t, err)
}

func TestCaptureStampsRevision(t *testing.T) {
	c := NewCapturer(t.TempDir())
	c.Revision = "abc1234"

	bundle, err := c.Capture(context.Background(), "run-4", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc1234", bundle.Revision)

	loaded, err := c.Load("run-4")
	require.NoError(t, err)
	assert.Equal(t, "abc1234", loaded.Revision)
}

func TestCaptureCancelled(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCapturer(t.TempDir())
	_, err := c.Capture(ctx, "run-5", []string{filepath.Join(src, "a")})
	assert.True(t, pipeerrors.IsCancelled(err))
}

func TestLoadUnknownRunFails(t *testing.T) {
	c := NewCapturer(t.TempDir())
	_, err := c.Load("never-ran")
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.CodeCapture))
}

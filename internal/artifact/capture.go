// Package artifact collects declared output locations into a retrievable
// bundle when a stage that asked for capture-on-failure fails.
package artifact

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/logfields"
	"github.com/muselab-d2x/releasegate/internal/observability"
)

const manifestName = "manifest.json"

// Entry is one captured file in a bundle.
type Entry struct {
	Source string `json:"source"` // original path
	Path   string `json:"path"`   // path relative to the bundle root
	Size   int64  `json:"size"`
}

// Bundle is the result of one capture, addressable by the run's identifier.
type Bundle struct {
	ID        string    `json:"id"` // equals the pipeline run ID
	Path      string    `json:"-"`  // bundle directory on disk
	Revision  string    `json:"revision,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
	Missing   []string  `json:"missing,omitempty"` // declared paths that did not exist
}

// Capturer copies declared paths into per-run bundle directories under Root.
type Capturer struct {
	Root     string
	Revision string // source revision stamped into the manifest, may be empty
}

// NewCapturer creates a capturer rooted at dir.
func NewCapturer(dir string) *Capturer {
	return &Capturer{Root: dir}
}

// Capture collects the given paths into <Root>/<runID>/. Paths that do not
// exist are omitted and recorded in the manifest, not fatal. Re-capturing the
// same inputs replaces the bundle with equivalent content; source paths are
// never modified or deleted.
func (c *Capturer) Capture(ctx context.Context, runID string, paths []string) (*Bundle, error) {
	bundleDir := filepath.Join(c.Root, runID)

	// Replace any previous bundle for this run so capture stays idempotent.
	if err := os.RemoveAll(bundleDir); err != nil {
		return nil, errors.CaptureError(err)
	}
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return nil, errors.CaptureError(err)
	}

	bundle := &Bundle{
		ID:        runID,
		Path:      bundleDir,
		Revision:  c.Revision,
		CreatedAt: time.Now().UTC(),
	}

	for _, src := range paths {
		if err := ctx.Err(); err != nil {
			return nil, errors.Cancelled(err)
		}

		info, err := os.Stat(src)
		if os.IsNotExist(err) {
			bundle.Missing = append(bundle.Missing, src)
			observability.DebugContext(ctx, "capture path absent, skipping", slog.String("path", src))
			continue
		}
		if err != nil {
			return nil, errors.CaptureError(err)
		}

		dest := filepath.Join(bundleDir, filepath.Base(src))
		if info.IsDir() {
			entries, err := copyTree(src, dest, bundleDir)
			if err != nil {
				return nil, errors.CaptureError(err)
			}
			bundle.Entries = append(bundle.Entries, entries...)
		} else {
			entry, err := copyFile(src, dest, bundleDir, info)
			if err != nil {
				return nil, errors.CaptureError(err)
			}
			bundle.Entries = append(bundle.Entries, entry)
		}
	}

	if err := c.writeManifest(bundleDir, bundle); err != nil {
		return nil, errors.CaptureError(err)
	}

	observability.InfoContext(ctx, "artifact bundle written",
		logfields.BundleID(bundle.ID))
	return bundle, nil
}

// Load reads a previously captured bundle's manifest by run ID.
func (c *Capturer) Load(runID string) (*Bundle, error) {
	bundleDir := filepath.Join(c.Root, runID)
	raw, err := os.ReadFile(filepath.Join(bundleDir, manifestName))
	if err != nil {
		return nil, errors.CaptureError(err)
	}
	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, errors.CaptureError(err)
	}
	bundle.Path = bundleDir
	return &bundle, nil
}

func (c *Capturer) writeManifest(bundleDir string, bundle *Bundle) error {
	raw, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(bundleDir, manifestName), raw, 0o644)
}

func copyTree(src, dest, bundleRoot string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entry, err := copyFile(path, target, bundleRoot, info)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

func copyFile(src, dest, bundleRoot string, info os.FileInfo) (Entry, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Entry{}, err
	}

	in, err := os.Open(src)
	if err != nil {
		return Entry{}, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return Entry{}, err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return Entry{}, err
	}

	rel, err := filepath.Rel(bundleRoot, dest)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Source: src, Path: rel, Size: info.Size()}, nil
}

package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/muselab-d2x/releasegate/internal/config"
	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/logfields"
	"github.com/muselab-d2x/releasegate/internal/observability"
)

// reloader applies a freshly loaded configuration.
type reloader interface {
	ReloadConfig(ctx context.Context, next *config.Config) error
}

// ConfigWatcher reloads the configuration when its file changes on disk.
// Watching the directory rather than the file survives editors that replace
// the file by rename.
type ConfigWatcher struct {
	configPath string
	target     reloader
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	stop       chan struct{}
	pending    chan struct{}
}

// NewConfigWatcher creates a watcher for the configuration at configPath.
func NewConfigWatcher(configPath string, target reloader) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDaemon, errors.SeverityError, "creating file watcher")
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, errors.CategoryDaemon, errors.SeverityError, "resolving config path")
	}

	return &ConfigWatcher{
		configPath: absPath,
		target:     target,
		watcher:    watcher,
		debounce:   2 * time.Second,
		stop:       make(chan struct{}),
		pending:    make(chan struct{}, 1),
	}, nil
}

// Start begins watching the configuration file's directory.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return errors.Wrap(err, errors.CategoryDaemon, errors.SeverityError, "watching config directory").
			WithContext("dir", dir)
	}

	observability.InfoContext(ctx, "config watcher started")
	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *ConfigWatcher) Stop() {
	close(w.stop)
	_ = w.watcher.Close()
}

func (w *ConfigWatcher) watchLoop(ctx context.Context) {
	name := filepath.Base(w.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mark()
			}
			if event.Op&fsnotify.Remove != 0 {
				observability.WarnContext(ctx, "config file removed")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			observability.WarnContext(ctx, "config watch error", logfields.Error(err))
		}
	}
}

func (w *ConfigWatcher) reloadLoop(ctx context.Context) {
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.pending:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.reload(ctx)
			})
		}
	}
}

// mark coalesces bursts of file events into one pending reload.
func (w *ConfigWatcher) mark() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// reload loads the file and hands it to the target. A config that fails to
// load or apply leaves the running configuration untouched.
func (w *ConfigWatcher) reload(ctx context.Context) {
	next, err := config.Load(w.configPath)
	if err != nil {
		observability.ErrorContext(ctx, "reload skipped: config invalid", logfields.Error(err))
		return
	}
	if err := w.target.ReloadConfig(ctx, next); err != nil {
		observability.ErrorContext(ctx, "reload rejected", logfields.Error(err))
		return
	}
	observability.InfoContext(ctx, "configuration reloaded from disk")
}

// Package daemon runs the validation pipeline as a long-lived service:
// scheduled runs, upstream-triggered runs over the message bus, live
// configuration reload, and an admin HTTP surface.
package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/muselab-d2x/releasegate/internal/config"
	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/gate"
	"github.com/muselab-d2x/releasegate/internal/logfields"
	"github.com/muselab-d2x/releasegate/internal/metrics"
	"github.com/muselab-d2x/releasegate/internal/observability"
	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/runner"
	"github.com/muselab-d2x/releasegate/internal/services"
)

const (
	runQueueCapacity = 16
	shutdownGrace    = 30 * time.Second
)

// runService is the slice of services.RunService the daemon depends on.
// Tests substitute fakes.
type runService interface {
	Execute(ctx context.Context, trigger pipeline.Trigger, extraSecrets map[string]string) (pipeline.Result, error)
}

// runRequest is one queued trigger. The reply channel, when set, receives
// the result exactly once; it must be buffered.
type runRequest struct {
	trigger pipeline.Trigger
	secrets map[string]string
	reply   chan<- pipeline.Result
}

// Daemon owns the long-lived pipeline state: the shared gate, the metrics
// registry, the run queue, and the recent-run history.
type Daemon struct {
	configPath string

	mu  sync.RWMutex
	cfg *config.Config
	svc runService

	gate      gate.Gate
	gateClose func() error
	recorder  metrics.Recorder
	registry  *prom.Registry

	queue   chan runRequest
	history *History
	workers WorkerGroup

	activeRuns atomic.Int32
	startedAt  time.Time
}

// New assembles a daemon from the configuration at configPath. The gate and
// metrics registry live for the daemon's lifetime; the run service is
// rebuilt on configuration reload.
func New(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	g, closer, err := services.BuildGate(cfg)
	if err != nil {
		return nil, err
	}

	registry := prom.NewRegistry()
	registry.MustRegister(
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(registry)

	return &Daemon{
		configPath: configPath,
		cfg:        cfg,
		svc:        services.NewRunService(cfg, g, recorder),
		gate:       g,
		gateClose:  closer,
		recorder:   recorder,
		registry:   registry,
		queue:      make(chan runRequest, runQueueCapacity),
		history:    NewHistory(64),
	}, nil
}

// Run starts all daemon components and blocks until ctx is cancelled, then
// shuts them down in reverse order.
func (d *Daemon) Run(ctx context.Context) error {
	d.startedAt = time.Now()

	admin, err := newAdminServer(d.config().Daemon.AdminAddr, d)
	if err != nil {
		return err
	}
	admin.Start(&d.workers)

	scheduler, err := d.startScheduler(ctx)
	if err != nil {
		admin.Shutdown(context.Background())
		return err
	}

	listener, err := d.startListener(ctx)
	if err != nil {
		d.stopScheduler(scheduler)
		admin.Shutdown(context.Background())
		return err
	}

	watcher, err := NewConfigWatcher(d.configPath, d)
	if err != nil {
		observability.WarnContext(ctx, "config watcher unavailable", logfields.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		observability.WarnContext(ctx, "config watcher failed to start", logfields.Error(err))
		watcher = nil
	}

	d.workers.Go(func() { d.runLoop(ctx) })

	observability.InfoContext(ctx, "daemon started")
	<-ctx.Done()
	observability.InfoContext(ctx, "daemon stopping")

	if watcher != nil {
		watcher.Stop()
	}
	if listener != nil {
		listener.Stop()
	}
	d.stopScheduler(scheduler)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	admin.Shutdown(shutdownCtx)

	if err := d.workers.StopAndWait(shutdownCtx); err != nil {
		observability.WarnContext(shutdownCtx, "workers did not stop cleanly", logfields.Error(err))
	}
	if d.gateClose != nil {
		if err := d.gateClose(); err != nil {
			observability.WarnContext(shutdownCtx, "closing gate", logfields.Error(err))
		}
	}
	return nil
}

// Enqueue queues one run. It never blocks: a full queue is reported as a
// daemon error so the trigger source can decide what to do with the drop.
func (d *Daemon) Enqueue(trigger pipeline.Trigger, secrets map[string]string, reply chan<- pipeline.Result) error {
	select {
	case d.queue <- runRequest{trigger: trigger, secrets: secrets, reply: reply}:
		return nil
	default:
		return errors.DaemonError("run queue full").
			WithContext("trigger", string(trigger)).
			WithContext("capacity", runQueueCapacity)
	}
}

// runLoop drains the queue one run at a time. Runs never overlap within one
// daemon; cross-process overlap is what the gate is for.
func (d *Daemon) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.executeRequest(ctx, req)
		}
	}
}

func (d *Daemon) executeRequest(ctx context.Context, req runRequest) {
	d.activeRuns.Add(1)
	defer d.activeRuns.Add(-1)

	ctx = observability.WithTrigger(ctx, string(req.trigger))
	res, err := d.service().Execute(ctx, req.trigger, req.secrets)
	if err != nil {
		observability.ErrorContext(ctx, "run could not start", logfields.Error(err))
		res = pipeline.Result{
			Trigger:    req.trigger,
			Status:     runner.StatusFailed,
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
		}
	}

	d.history.Record(res)
	observability.InfoContext(ctx, "run finished",
		logfields.RunID(res.RunID),
		logfields.Status(string(res.Status)))

	if req.reply != nil {
		select {
		case req.reply <- res:
		default:
		}
	}
}

// ReloadConfig validates and applies a configuration loaded from disk. The
// gate backend and admin address are fixed for the process lifetime; changes
// to them are rejected and require a restart.
func (d *Daemon) ReloadConfig(ctx context.Context, next *config.Config) error {
	current := d.config()
	if next.Gate.Database != current.Gate.Database {
		return errors.DaemonError("gate database change requires restart")
	}
	if next.Daemon.AdminAddr != current.Daemon.AdminAddr {
		return errors.DaemonError("admin address change requires restart")
	}

	d.mu.Lock()
	d.cfg = next
	d.svc = services.NewRunService(next, d.gate, d.recorder)
	d.mu.Unlock()

	observability.InfoContext(ctx, "configuration reloaded")
	return nil
}

func (d *Daemon) config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Daemon) service() runService {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.svc
}

// RecentRuns returns the retained run records, newest first.
func (d *Daemon) RecentRuns() []RunRecord { return d.history.Snapshot() }

// ActiveRuns reports how many runs are currently executing.
func (d *Daemon) ActiveRuns() int { return int(d.activeRuns.Load()) }

// QueueLength reports how many runs are waiting.
func (d *Daemon) QueueLength() int { return len(d.queue) }

// Uptime reports how long the daemon has been serving.
func (d *Daemon) Uptime() time.Duration {
	if d.startedAt.IsZero() {
		return 0
	}
	return time.Since(d.startedAt)
}

func (d *Daemon) startScheduler(ctx context.Context) (*Scheduler, error) {
	interval, err := d.config().ScheduleInterval()
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, nil
	}

	scheduler, err := NewScheduler(d, interval)
	if err != nil {
		return nil, err
	}
	scheduler.Start(ctx)
	return scheduler, nil
}

func (d *Daemon) stopScheduler(s *Scheduler) {
	if s == nil {
		return
	}
	if err := s.Stop(); err != nil {
		observability.WarnContext(context.Background(), "stopping scheduler", logfields.Error(err))
	}
}

func (d *Daemon) startListener(ctx context.Context) (*TriggerListener, error) {
	cfg := d.config()
	if cfg.Daemon.NATSURL == "" {
		return nil, nil
	}
	listener, err := NewTriggerListener(cfg.Daemon.NATSURL, cfg.Daemon.NATSSubject, d)
	if err != nil {
		return nil, err
	}
	if err := listener.Start(ctx); err != nil {
		listener.Stop()
		return nil, err
	}
	return listener, nil
}

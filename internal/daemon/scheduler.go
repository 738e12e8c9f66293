package daemon

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/logfields"
	"github.com/muselab-d2x/releasegate/internal/observability"
	"github.com/muselab-d2x/releasegate/internal/pipeline"
)

// enqueuer is the trigger-facing slice of the daemon.
type enqueuer interface {
	Enqueue(trigger pipeline.Trigger, secrets map[string]string, reply chan<- pipeline.Result) error
}

// Scheduler fires periodic validation runs.
type Scheduler struct {
	scheduler gocron.Scheduler
	sink      enqueuer
}

// NewScheduler creates a scheduler enqueueing one run every interval.
func NewScheduler(sink enqueuer, interval time.Duration) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDaemon, errors.SeverityFatal, "creating scheduler")
	}

	s := &Scheduler{scheduler: gs, sink: sink}
	if _, err := gs.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.fire),
		gocron.WithName("scheduled-validation"),
	); err != nil {
		_ = gs.Shutdown()
		return nil, errors.Wrap(err, errors.CategoryDaemon, errors.SeverityFatal, "registering scheduled run")
	}
	return s, nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start(ctx context.Context) {
	observability.InfoContext(ctx, "scheduler started")
	s.scheduler.Start()
}

// Stop shuts the scheduler down; in-flight runs are unaffected.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// fire is called by gocron on each tick. A full queue drops the tick; the
// next tick tries again, which is the right behavior for periodic runs.
func (s *Scheduler) fire() {
	if err := s.sink.Enqueue(pipeline.TriggerSchedule, nil, nil); err != nil {
		observability.WarnContext(context.Background(), "scheduled run dropped", logfields.Error(err))
	}
}

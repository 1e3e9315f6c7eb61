// Package scheduler runs the periodic event lifecycle jobs.
package scheduler

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/event"
)

// Lifecycle is what the scheduler needs from the event service.
type Lifecycle interface {
	FinalizeEnded(ctx context.Context) ([]event.Event, error)
	ArchiveDue(ctx context.Context, graceDays int) ([]event.Event, error)
}

type Scheduler struct {
	sched  gocron.Scheduler
	events Lifecycle
	conf   core.LifecycleConfig
	logger core.Logger
}

func New(events Lifecycle, conf core.LifecycleConfig, logger core.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "creating scheduler")
	}
	s := &Scheduler{sched: sched, events: events, conf: conf, logger: logger}

	// a single instance of each job runs at a time
	if _, err = sched.NewJob(
		gocron.DurationJob(conf.FinalizeEvery),
		gocron.NewTask(func() { s.Finalize(context.Background()) }),
		gocron.WithName("finalize-ended-events"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, errors.Wrap(err, "scheduling finalization")
	}
	if _, err = sched.NewJob(
		gocron.DurationJob(conf.ArchiveEvery),
		gocron.NewTask(func() { s.Archive(context.Background()) }),
		gocron.WithName("archive-finalized-events"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, errors.Wrap(err, "scheduling archival")
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// Finalize moves every Active event whose end date has passed to Finalized.
func (s *Scheduler) Finalize(ctx context.Context) {
	done, err := s.events.FinalizeEnded(ctx)
	s.report("finalized", done, err)
}

// Archive moves every Finalized event past its grace period to Archived.
func (s *Scheduler) Archive(ctx context.Context) {
	done, err := s.events.ArchiveDue(ctx, s.conf.GraceDays)
	s.report("archived", done, err)
}

func (s *Scheduler) report(action string, done []event.Event, err error) {
	if err != nil {
		s.logger.Error(fmt.Sprintf("lifecycle job (%s): %v", action, err), err)
		return
	}
	if len(done) > 0 {
		s.logger.Info(fmt.Sprintf("lifecycle job: %s %d events", action, len(done)))
	}
}

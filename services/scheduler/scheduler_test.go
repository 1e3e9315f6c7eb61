package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/event"
)

type lifecycleMock struct {
	finalized int
	graceDays []int
	err       error
}

func (m *lifecycleMock) FinalizeEnded(context.Context) ([]event.Event, error) {
	m.finalized++
	return []event.Event{{ID: "1"}}, m.err
}

func (m *lifecycleMock) ArchiveDue(_ context.Context, graceDays int) ([]event.Event, error) {
	m.graceDays = append(m.graceDays, graceDays)
	return nil, m.err
}

type loggerMock struct {
	errors, infos int
}

func (l *loggerMock) Debug(string, ...interface{}) {}
func (l *loggerMock) Info(string, ...interface{})  { l.infos++ }
func (l *loggerMock) Warn(string, ...interface{})  {}
func (l *loggerMock) Error(string, ...interface{}) { l.errors++ }
func (l *loggerMock) Fatal(string, ...interface{}) {}

func TestScheduler_Jobs(t *testing.T) {
	events := &lifecycleMock{}
	logger := &loggerMock{}
	conf := core.LifecycleConfig{GraceDays: 7, FinalizeEvery: time.Hour, ArchiveEvery: time.Hour}

	s, err := New(events, conf, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = s.Shutdown() }()

	s.Finalize(context.Background())
	s.Archive(context.Background())
	if events.finalized != 1 {
		t.Errorf("FinalizeEnded() calls = %d, want 1", events.finalized)
	}
	if len(events.graceDays) != 1 || events.graceDays[0] != 7 {
		t.Errorf("ArchiveDue() graceDays = %v, want [7]", events.graceDays)
	}
	if logger.infos != 1 {
		t.Errorf("logged %d infos, want 1", logger.infos)
	}

	events.err = errors.New("db down")
	s.Archive(context.Background())
	if logger.errors != 1 {
		t.Errorf("logged %d errors, want 1", logger.errors)
	}
}

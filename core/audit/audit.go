// Package audit keeps an append-only trail of state transitions performed on the platform.
package audit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
)

// SystemActor is recorded as the actor of transitions performed by scheduled jobs.
const SystemActor = "system"

type Entry struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

type QueryFilter struct {
	TargetType string
	TargetID   string
	Action     string
}

type Repository interface {
	AppendEntry(ctx context.Context, e Entry) error
	ListEntries(ctx context.Context, filter QueryFilter) ([]Entry, error)
}

type Log struct {
	repo Repository
}

func NewLog(repo Repository) *Log {
	return &Log{repo: repo}
}

// Record appends an entry stamped with the current time.
func (l *Log) Record(ctx context.Context, e Entry) error {
	e.ID = core.NewID()
	e.At = core.Now()
	if e.ActorID == "" {
		e.ActorID = SystemActor
	}
	return errors.Wrap(l.repo.AppendEntry(ctx, e), "appending audit entry")
}

func (l *Log) List(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var entries []Entry
	err := core.RetryRead(ctx, func(ctx context.Context) (err error) {
		entries, err = l.repo.ListEntries(ctx, filter)
		return err
	})
	return entries, err
}

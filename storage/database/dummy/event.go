package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/event"
)

type eventRepository struct {
	events   *table[string, event.Event]
	memories *table[string, event.Memory]
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) event.Repository {
	return &eventRepository{events: db.events, memories: db.memories}
}

func (repo *eventRepository) CreateEvent(_ context.Context, e event.Event) (event.Event, error) {
	if e.ID == "" {
		e.ID = core.NewID()
	}
	repo.events.put(e.ID, e)
	return e, nil
}

func (repo *eventRepository) GetEvent(_ context.Context, id string) (event.Event, error) {
	if e, ok := repo.events.get(id); ok {
		return e, nil
	}
	return event.Event{}, event.ErrNotFound
}

// LockEvent is GetEvent: transactions are already serialised.
func (repo *eventRepository) LockEvent(ctx context.Context, id string) (event.Event, error) {
	return repo.GetEvent(ctx, id)
}

func (repo *eventRepository) UpdateEvent(_ context.Context, e event.Event) (event.Event, error) {
	if _, ok := repo.events.get(e.ID); !ok {
		return event.Event{}, event.ErrNotFound
	}
	repo.events.put(e.ID, e)
	return e, nil
}

func (repo *eventRepository) ListEvents(_ context.Context, filter event.QueryFilter) ([]event.Event, error) {
	search := strings.ToLower(filter.Search)
	events := repo.events.filter(func(e event.Event) bool {
		if search != "" && !strings.Contains(strings.ToLower(e.Name), search) && !strings.Contains(strings.ToLower(e.City), search) {
			return false
		}
		if len(filter.States) > 0 {
			var found bool
			for _, st := range filter.States {
				if e.State == st {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		if filter.OwnerID != "" && e.OwnerID != filter.OwnerID {
			return false
		}
		return filter.EndedBefore.IsZero() || core.DateOf(e.EndDate).Before(filter.EndedBefore)
	})
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].StartDate.After(events[j].StartDate)
		}
		return events[i].Name < events[j].Name
	})
	return events, nil
}

func (repo *eventRepository) CreateMemory(_ context.Context, m event.Memory) (event.Memory, error) {
	if m.ID == "" {
		m.ID = core.NewID()
	}
	repo.memories.put(m.ID, m)
	return m, nil
}

func (repo *eventRepository) GetMemory(_ context.Context, id string) (event.Memory, error) {
	if m, ok := repo.memories.get(id); ok {
		return m, nil
	}
	return event.Memory{}, event.ErrMemoryNotFound
}

func (repo *eventRepository) ListMemories(_ context.Context, eventID string) ([]event.Memory, error) {
	memories := repo.memories.filter(func(m event.Memory) bool { return m.EventID == eventID })
	sort.Slice(memories, func(i, j int) bool { return memories[i].CreatedAt.Before(memories[j].CreatedAt) })
	return memories, nil
}

func (repo *eventRepository) DeleteMemory(_ context.Context, id string) error {
	if _, ok := repo.memories.get(id); !ok {
		return event.ErrMemoryNotFound
	}
	repo.memories.del(id)
	return nil
}

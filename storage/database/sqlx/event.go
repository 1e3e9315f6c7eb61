package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/event"
)

const eventColumns = `id, name, description, city, venue, start_date, end_date, state, owner_id, capacity, has_cost,
	banner_image, program_doc, technical_info_doc,
	enroll_open_participants, enroll_open_evaluators, enroll_open_assistants, created_at, updated_at`

type eventRow struct {
	ID                     string    `db:"id"`
	Name                   string    `db:"name"`
	Description            string    `db:"description"`
	City                   string    `db:"city"`
	Venue                  string    `db:"venue"`
	StartDate              time.Time `db:"start_date"`
	EndDate                time.Time `db:"end_date"`
	State                  string    `db:"state"`
	OwnerID                string    `db:"owner_id"`
	Capacity               int       `db:"capacity"`
	HasCost                bool      `db:"has_cost"`
	BannerImage            string    `db:"banner_image"`
	ProgramDoc             string    `db:"program_doc"`
	TechnicalInfoDoc       string    `db:"technical_info_doc"`
	EnrollOpenParticipants bool      `db:"enroll_open_participants"`
	EnrollOpenEvaluators   bool      `db:"enroll_open_evaluators"`
	EnrollOpenAssistants   bool      `db:"enroll_open_assistants"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

type memoryRow struct {
	ID          string    `db:"id"`
	EventID     string    `db:"event_id"`
	Name        string    `db:"name"`
	FileKey     string    `db:"file_key"`
	URL         string    `db:"url"`
	ContentType string    `db:"content_type"`
	UploadedBy  string    `db:"uploaded_by"`
	CreatedAt   time.Time `db:"created_at"`
}

type eventRepository struct {
	db *DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) event.Repository {
	return &eventRepository{db: db}
}

func (repo *eventRepository) toRow(e event.Event) eventRow {
	return eventRow{
		ID:                     e.ID,
		Name:                   e.Name,
		Description:            e.Description,
		City:                   e.City,
		Venue:                  e.Venue,
		StartDate:              core.DateOf(e.StartDate),
		EndDate:                core.DateOf(e.EndDate),
		State:                  string(e.State),
		OwnerID:                e.OwnerID,
		Capacity:               e.Capacity,
		HasCost:                e.HasCost,
		BannerImage:            e.BannerImage,
		ProgramDoc:             e.ProgramDoc,
		TechnicalInfoDoc:       e.TechnicalInfoDoc,
		EnrollOpenParticipants: e.EnrollOpenParticipants,
		EnrollOpenEvaluators:   e.EnrollOpenEvaluators,
		EnrollOpenAssistants:   e.EnrollOpenAssistants,
		CreatedAt:              e.CreatedAt.UTC(),
		UpdatedAt:              e.UpdatedAt.UTC(),
	}
}

func (repo *eventRepository) fromRow(r eventRow) event.Event {
	return event.Event{
		ID:                     r.ID,
		Name:                   r.Name,
		Description:            r.Description,
		City:                   r.City,
		Venue:                  r.Venue,
		StartDate:              core.DateOf(r.StartDate),
		EndDate:                core.DateOf(r.EndDate),
		State:                  event.State(r.State),
		OwnerID:                r.OwnerID,
		Capacity:               r.Capacity,
		HasCost:                r.HasCost,
		BannerImage:            r.BannerImage,
		ProgramDoc:             r.ProgramDoc,
		TechnicalInfoDoc:       r.TechnicalInfoDoc,
		EnrollOpenParticipants: r.EnrollOpenParticipants,
		EnrollOpenEvaluators:   r.EnrollOpenEvaluators,
		EnrollOpenAssistants:   r.EnrollOpenAssistants,
		CreatedAt:              r.CreatedAt.UTC(),
		UpdatedAt:              r.UpdatedAt.UTC(),
	}
}

func (repo *eventRepository) CreateEvent(ctx context.Context, e event.Event) (event.Event, error) {
	if e.ID == "" {
		e.ID = core.NewID()
	}
	_, err := repo.db.namedExec(ctx, `INSERT INTO events (`+eventColumns+`) VALUES (
		:id, :name, :description, :city, :venue, :start_date, :end_date, :state, :owner_id, :capacity, :has_cost,
		:banner_image, :program_doc, :technical_info_doc,
		:enroll_open_participants, :enroll_open_evaluators, :enroll_open_assistants, :created_at, :updated_at)`, repo.toRow(e))
	if err != nil {
		return event.Event{}, errors.Wrap(err, "inserting event")
	}
	return e, nil
}

func (repo *eventRepository) getEvent(ctx context.Context, id, suffix string) (event.Event, error) {
	var r eventRow
	if err := repo.db.get(ctx, &r, `SELECT `+eventColumns+` FROM events WHERE id = ?`+suffix, id); err != nil {
		return event.Event{}, trapNoRowsErr(err, event.ErrNotFound, "getting event")
	}
	return repo.fromRow(r), nil
}

func (repo *eventRepository) GetEvent(ctx context.Context, id string) (event.Event, error) {
	return repo.getEvent(ctx, id, "")
}

func (repo *eventRepository) LockEvent(ctx context.Context, id string) (event.Event, error) {
	return repo.getEvent(ctx, id, " FOR UPDATE")
}

func (repo *eventRepository) UpdateEvent(ctx context.Context, e event.Event) (event.Event, error) {
	ok, err := repo.db.namedExec(ctx, `UPDATE events SET
		name = :name, description = :description, city = :city, venue = :venue,
		start_date = :start_date, end_date = :end_date, state = :state, owner_id = :owner_id,
		capacity = :capacity, has_cost = :has_cost, banner_image = :banner_image,
		program_doc = :program_doc, technical_info_doc = :technical_info_doc,
		enroll_open_participants = :enroll_open_participants, enroll_open_evaluators = :enroll_open_evaluators,
		enroll_open_assistants = :enroll_open_assistants, updated_at = :updated_at
		WHERE id = :id`, repo.toRow(e))
	if err != nil {
		return event.Event{}, errors.Wrap(err, "updating event")
	}
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return e, nil
}

func (repo *eventRepository) ListEvents(ctx context.Context, filter event.QueryFilter) ([]event.Event, error) {
	var w where
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add(`(name ILIKE ? OR city ILIKE ?)`, val, val)
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, st := range filter.States {
			states = append(states, string(st))
		}
		w.add(`state = ANY(?)`, pq.Array(states))
	}
	if filter.OwnerID != "" {
		w.add(`owner_id = ?`, filter.OwnerID)
	}
	if !filter.EndedBefore.IsZero() {
		w.add(`end_date < ?`, core.DateOf(filter.EndedBefore))
	}

	var rows []eventRow
	q := `SELECT ` + eventColumns + ` FROM events` + w.String() + ` ORDER BY start_date DESC, name`
	if err := repo.db.selectAll(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing events")
	}
	events := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, repo.fromRow(r))
	}
	return events, nil
}

func (repo *eventRepository) CreateMemory(ctx context.Context, m event.Memory) (event.Memory, error) {
	if m.ID == "" {
		m.ID = core.NewID()
	}
	_, err := repo.db.namedExec(ctx, `INSERT INTO event_memories (id, event_id, name, file_key, url, content_type, uploaded_by, created_at)
		VALUES (:id, :event_id, :name, :file_key, :url, :content_type, :uploaded_by, :created_at)`, memoryRow{
		ID: m.ID, EventID: m.EventID, Name: m.Name, FileKey: m.FileKey, URL: m.URL,
		ContentType: m.ContentType, UploadedBy: m.UploadedBy, CreatedAt: m.CreatedAt.UTC(),
	})
	if isFKViolation(err, "event_memories_event_id_fkey") {
		return event.Memory{}, event.ErrNotFound
	}
	if err != nil {
		return event.Memory{}, errors.Wrap(err, "inserting memory")
	}
	return m, nil
}

func memoryFromRow(r memoryRow) event.Memory {
	return event.Memory{
		ID: r.ID, EventID: r.EventID, Name: r.Name, FileKey: r.FileKey, URL: r.URL,
		ContentType: r.ContentType, UploadedBy: r.UploadedBy, CreatedAt: r.CreatedAt.UTC(),
	}
}

func (repo *eventRepository) GetMemory(ctx context.Context, id string) (event.Memory, error) {
	var r memoryRow
	err := repo.db.get(ctx, &r, `SELECT id, event_id, name, file_key, url, content_type, uploaded_by, created_at
		FROM event_memories WHERE id = ?`, id)
	if err != nil {
		return event.Memory{}, trapNoRowsErr(err, event.ErrMemoryNotFound, "getting memory")
	}
	return memoryFromRow(r), nil
}

func (repo *eventRepository) ListMemories(ctx context.Context, eventID string) ([]event.Memory, error) {
	var rows []memoryRow
	err := repo.db.selectAll(ctx, &rows, `SELECT id, event_id, name, file_key, url, content_type, uploaded_by, created_at
		FROM event_memories WHERE event_id = ? ORDER BY created_at`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "listing memories")
	}
	memories := make([]event.Memory, 0, len(rows))
	for _, r := range rows {
		memories = append(memories, memoryFromRow(r))
	}
	return memories, nil
}

func (repo *eventRepository) DeleteMemory(ctx context.Context, id string) error {
	ok, err := repo.db.execOne(ctx, `DELETE FROM event_memories WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "deleting memory")
	}
	if !ok {
		return event.ErrMemoryNotFound
	}
	return nil
}

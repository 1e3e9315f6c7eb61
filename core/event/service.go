package event

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewError(core.KindNotFound, "event not found")
	ErrMemoryNotFound  = core.NewError(core.KindNotFound, "memory not found")
	ErrCapacityTooLow  = core.NewFieldError(core.KindCapacityExhausted, "capacity", "capacity is below the current number of enrollments")
	ErrInvalidCapacity = core.NewFieldError(core.KindFieldInvalid, "capacity", "capacity must not be negative")

	DefaultGraceDays = 30
)

// transitions lists the manual state changes; transitions into and out of Archived are reserved to SUPERADMIN.
var transitions = map[State][]State{
	StateDraft:     {StatePublished, StateActive, StateCancelled},
	StatePublished: {StateDraft, StateActive, StateCancelled},
	StateActive:    {StateFinalized, StateCancelled},
	StateFinalized: {StateArchived},
	StateCancelled: {StatePublished, StateActive, StateArchived},
	StateArchived:  {StateFinalized},
}

type (
	Repository interface {
		CreateEvent(ctx context.Context, e Event) (Event, error)
		GetEvent(ctx context.Context, id string) (Event, error)
		// LockEvent reads the event and holds a row lock on it until the surrounding transaction ends.
		LockEvent(ctx context.Context, id string) (Event, error)
		UpdateEvent(ctx context.Context, e Event) (Event, error)
		ListEvents(ctx context.Context, filter QueryFilter) ([]Event, error)

		CreateMemory(ctx context.Context, m Memory) (Memory, error)
		GetMemory(ctx context.Context, id string) (Memory, error)
		ListMemories(ctx context.Context, eventID string) ([]Memory, error)
		DeleteMemory(ctx context.Context, id string) error
	}

	// Roster exposes what the enrollment store knows about an event's audience.
	Roster interface {
		// Occupancy counts, per track, the enrollments holding a seat.
		Occupancy(ctx context.Context, eventID string) (map[Track]int, error)
		// Membership is the relation of userID to the event through its enrollments.
		Membership(ctx context.Context, eventID, userID string) (access.Membership, error)
		// Attendees returns the user IDs of every subject holding a seat.
		Attendees(ctx context.Context, eventID string) ([]string, error)
	}

	Service struct {
		tx      core.Transactor
		repo    Repository
		roster  Roster
		users   *user.Service
		files   core.FileStore
		mailSvc core.EmailService
		audit   *audit.Log
		logger  core.Logger
	}
)

func NewService(
	tx core.Transactor,
	repo Repository,
	roster Roster,
	users *user.Service,
	files core.FileStore,
	mailSvc core.EmailService,
	auditLog *audit.Log,
	logger core.Logger,
) *Service {
	return &Service{
		tx:      tx,
		repo:    repo,
		roster:  roster,
		users:   users,
		files:   files,
		mailSvc: mailSvc,
		audit:   auditLog,
		logger:  logger,
	}
}

func (svc *Service) Create(ctx context.Context, p user.Principal, ne NewEvent) (Event, error) {
	if err := access.Can(p, access.CreateEvent, access.Target{OwnerID: p.UserID}); err != nil {
		return Event{}, err
	}
	if err := ne.Validate(); err != nil {
		return Event{}, err
	}

	ownerID := p.UserID
	if ne.OwnerID != "" && ne.OwnerID != p.UserID {
		if !p.IsSuperAdmin() {
			return Event{}, core.NewFieldError(core.KindForbidden, "owner_id", "only a superadmin may assign another owner")
		}
		owner, err := svc.users.GetByID(ctx, ne.OwnerID)
		if err != nil {
			return Event{}, errors.Wrap(err, "getting owner")
		}
		if owner.Role != user.RoleEventAdmin {
			return Event{}, core.NewFieldError(core.KindFieldInvalid, "owner_id", "owner must be an event administrator")
		}
		ownerID = owner.ID
	}

	state := ne.State
	if state == "" {
		state = StateActive
	}
	now := core.Now()
	e := Event{
		Name:                   ne.Name,
		Description:            ne.Description,
		City:                   ne.City,
		Venue:                  ne.Venue,
		StartDate:              ne.StartDate,
		EndDate:                ne.EndDate,
		State:                  state,
		OwnerID:                ownerID,
		Capacity:               ne.Capacity,
		HasCost:                ne.HasCost,
		EnrollOpenParticipants: ne.EnrollOpenParticipants,
		EnrollOpenEvaluators:   ne.EnrollOpenEvaluators,
		EnrollOpenAssistants:   ne.EnrollOpenAssistants,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.repo.CreateEvent(ctx, e); err != nil {
			return errors.Wrap(err, "creating event")
		}
		return svc.audit.Record(ctx, audit.Entry{
			ActorID: p.UserID, Action: "event.create", TargetType: "event", TargetID: e.ID, To: string(e.State),
		})
	})
	if err != nil {
		return Event{}, err
	}

	svc.notifySuperAdmins(ctx, e)
	return e, nil
}

func (svc *Service) notifySuperAdmins(ctx context.Context, e Event) {
	admins, err := svc.users.ListByRole(ctx, user.RoleSuperAdmin)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("listing superadmins: %v", err), err)
		return
	}
	if len(admins) == 0 {
		return
	}
	msg := &core.EmailMessage{
		Subject:      "Nuevo evento creado: " + e.Name,
		TemplateName: "event_created",
		TemplateData: e,
	}
	for _, a := range admins {
		msg.To = append(msg.To, mail.Address{Name: a.FullName(), Address: a.Email})
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *Service) get(ctx context.Context, id string) (Event, error) {
	var e Event
	err := core.RetryRead(ctx, func(ctx context.Context) (err error) {
		e, err = svc.repo.GetEvent(ctx, id)
		return err
	})
	return e, err
}

// Get returns the public information of an event.
func (svc *Service) Get(ctx context.Context, p user.Principal, id string) (Event, error) {
	e, err := svc.get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if err = access.Can(p, access.ViewEvent, e.Target()); err != nil {
		return Event{}, err
	}
	return e, nil
}

// GetForUpdate returns an event the principal may edit.
func (svc *Service) GetForUpdate(ctx context.Context, p user.Principal, id string) (Event, error) {
	e, err := svc.get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if err = access.Can(p, access.EditEvent, e.Target()); err != nil {
		return Event{}, err
	}
	return e, nil
}

// List returns the events visible to p; visitors only see Active and Finalized events.
func (svc *Service) List(ctx context.Context, p user.Principal, filter QueryFilter) ([]Event, error) {
	filter.Clean()
	if access.ClassOf(p, access.Target{}) == access.Visitor {
		states := make([]State, 0, 2)
		for _, st := range []State{StateActive, StateFinalized} {
			if len(filter.States) == 0 || containsState(filter.States, st) {
				states = append(states, st)
			}
		}
		if len(states) == 0 {
			return []Event{}, nil
		}
		filter.States = states
	}
	var events []Event
	err := core.RetryRead(ctx, func(ctx context.Context) (err error) {
		events, err = svc.repo.ListEvents(ctx, filter)
		return err
	})
	return events, err
}

// Directory lists every event with its head-counts; SUPERADMIN only.
func (svc *Service) Directory(ctx context.Context, p user.Principal, filter QueryFilter) ([]DirectoryEntry, error) {
	if err := access.Can(p, access.PlatformAdmin, access.Target{}); err != nil {
		return nil, err
	}
	filter.Clean()
	events, err := svc.repo.ListEvents(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "listing events")
	}
	entries := make([]DirectoryEntry, 0, len(events))
	for _, e := range events {
		occ, err := svc.roster.Occupancy(ctx, e.ID)
		if err != nil {
			return nil, errors.Wrap(err, "counting occupancy")
		}
		entries = append(entries, DirectoryEntry{Event: e, Occupancy: occ})
	}
	return entries, nil
}

func (svc *Service) Update(ctx context.Context, p user.Principal, id string, uu UpdateEvent) (Event, error) {
	var e Event
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.repo.LockEvent(ctx, id); err != nil {
			return err
		}
		if err = access.Can(p, access.EditEvent, e.Target()); err != nil {
			return err
		}
		if e, err = uu.apply(e); err != nil {
			return err
		}
		e.UpdatedAt = core.Now()
		e, err = svc.repo.UpdateEvent(ctx, e)
		return errors.Wrap(err, "updating event")
	})
	return e, err
}

// SetCapacity changes the capacity; it is refused below the head-count of any single track.
func (svc *Service) SetCapacity(ctx context.Context, p user.Principal, id string, capacity int) (Event, error) {
	if capacity < 0 {
		return Event{}, ErrInvalidCapacity
	}
	var e Event
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.repo.LockEvent(ctx, id); err != nil {
			return err
		}
		if err = access.Can(p, access.ConfigureEvent, e.Target()); err != nil {
			return err
		}
		occ, err := svc.roster.Occupancy(ctx, id)
		if err != nil {
			return errors.Wrap(err, "counting occupancy")
		}
		for _, n := range occ {
			if n > capacity {
				return ErrCapacityTooLow
			}
		}
		if e.Capacity == capacity {
			return nil
		}
		from := e.Capacity
		e.Capacity = capacity
		e.UpdatedAt = core.Now()
		if e, err = svc.repo.UpdateEvent(ctx, e); err != nil {
			return errors.Wrap(err, "updating capacity")
		}
		return svc.audit.Record(ctx, audit.Entry{
			ActorID: p.UserID, Action: "event.capacity", TargetType: "event", TargetID: e.ID,
			From: fmt.Sprint(from), To: fmt.Sprint(capacity),
		})
	})
	return e, err
}

func (svc *Service) SetFeatures(ctx context.Context, p user.Principal, id string, f Features) (Event, error) {
	var e Event
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.repo.LockEvent(ctx, id); err != nil {
			return err
		}
		if err = access.Can(p, access.ConfigureEvent, e.Target()); err != nil {
			return err
		}
		if f.Participants != nil {
			e.EnrollOpenParticipants = *f.Participants
		}
		if f.Evaluators != nil {
			e.EnrollOpenEvaluators = *f.Evaluators
		}
		if f.Assistants != nil {
			e.EnrollOpenAssistants = *f.Assistants
		}
		e.UpdatedAt = core.Now()
		e, err = svc.repo.UpdateEvent(ctx, e)
		return errors.Wrap(err, "updating features")
	})
	return e, err
}

// Transition applies a manual state change. Cancelling an event notifies everyone holding a seat.
func (svc *Service) Transition(ctx context.Context, p user.Principal, id string, to State) (Event, error) {
	var (
		e    Event
		from State
	)
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.repo.LockEvent(ctx, id); err != nil {
			return err
		}
		action := access.ConfigureEvent
		if to == StateArchived || e.State == StateArchived {
			action = access.PlatformAdmin
		}
		if err = access.Can(p, action, e.Target()); err != nil {
			return err
		}
		if !canTransition(e.State, to) {
			return core.NewError(core.KindInvalidTransition, fmt.Sprintf("cannot move event from %s to %s", e.State, to))
		}
		from = e.State
		e.State = to
		e.UpdatedAt = core.Now()
		if e, err = svc.repo.UpdateEvent(ctx, e); err != nil {
			return errors.Wrap(err, "updating state")
		}
		return svc.audit.Record(ctx, audit.Entry{
			ActorID: p.UserID, Action: "event.transition", TargetType: "event", TargetID: e.ID,
			From: string(from), To: string(to),
		})
	})
	if err != nil {
		return Event{}, err
	}
	if to == StateCancelled {
		svc.notifyCancellation(ctx, e)
	}
	return e, nil
}

func canTransition(from, to State) bool {
	for _, st := range transitions[from] {
		if st == to {
			return true
		}
	}
	return false
}

func (svc *Service) notifyCancellation(ctx context.Context, e Event) {
	ids, err := svc.roster.Attendees(ctx, e.ID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("listing attendees of %s: %v", e.ID, err), err)
		return
	}
	messages := make([]*core.EmailMessage, 0, len(ids))
	for _, id := range ids {
		usr, err := svc.users.GetByID(ctx, id)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("getting attendee %s: %v", id, err), err)
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
			Subject:      "Evento cancelado: " + e.Name,
			TemplateName: "event_cancelled",
			TemplateData: map[string]string{"Name": usr.FullName(), "Event": e.Name},
		})
	}
	svc.mailSvc.SendMessages(messages...)
}

// SetMedia stores a banner, program or technical document; replacing it writes a new file.
func (svc *Service) SetMedia(ctx context.Context, p user.Principal, id string, kind MediaKind, up *core.Upload) (Event, error) {
	if up.Empty() {
		return Event{}, core.NewFieldError(core.KindFieldRequired, "file", "file is required")
	}
	e, err := svc.GetForUpdate(ctx, p, id)
	if err != nil {
		return Event{}, err
	}
	staged := core.StageFiles(svc.files, svc.logger)
	key := core.MediaKey(fmt.Sprintf("events/%s/%s", e.ID, kind), up.Filename)
	if err = staged.Put(ctx, key, up.Content, up.ContentType); err != nil {
		return Event{}, core.Unavailable(errors.Wrap(err, "storing media"))
	}

	err = svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		if e, err = svc.repo.LockEvent(ctx, id); err != nil {
			return err
		}
		switch kind {
		case MediaBanner:
			e.BannerImage = key
		case MediaProgram:
			e.ProgramDoc = key
		case MediaTechnicalInfo:
			e.TechnicalInfoDoc = key
		default:
			return core.NewFieldError(core.KindFieldInvalid, "kind", "unknown media kind")
		}
		e.UpdatedAt = core.Now()
		e, err = svc.repo.UpdateEvent(ctx, e)
		return errors.Wrap(err, "updating media")
	})
	if err = staged.Settle(ctx, err); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (svc *Service) target(ctx context.Context, p user.Principal, e Event) (access.Target, error) {
	m := access.NotEnrolled
	if p.IsAuthenticated() {
		var err error
		if m, err = svc.roster.Membership(ctx, e.ID, p.UserID); err != nil {
			return access.Target{}, errors.Wrap(err, "resolving membership")
		}
	}
	return e.Target(m), nil
}

// Program returns the full program and technical documentation, restricted to the owner and confirmed subjects.
func (svc *Service) Program(ctx context.Context, p user.Principal, id string) (Program, error) {
	e, err := svc.get(ctx, id)
	if err != nil {
		return Program{}, err
	}
	t, err := svc.target(ctx, p, e)
	if err != nil {
		return Program{}, err
	}
	if err = access.Can(p, access.ViewProgram, t); err != nil {
		return Program{}, err
	}
	prog := Program{EventID: e.ID}
	if e.ProgramDoc != "" {
		prog.ProgramURL = svc.files.URL(e.ProgramDoc)
	}
	if e.TechnicalInfoDoc != "" {
		prog.TechnicalInfoURL = svc.files.URL(e.TechnicalInfoDoc)
	}
	return prog, nil
}

func (svc *Service) AddMemory(ctx context.Context, p user.Principal, eventID, name string, up *core.Upload) (Memory, error) {
	name = core.CleanString(name)
	if err := core.CheckVar("name", name, "required,max=200"); err != nil {
		return Memory{}, err
	}
	if up.Empty() {
		return Memory{}, core.NewFieldError(core.KindFieldRequired, "file", "file is required")
	}
	e, err := svc.GetForUpdate(ctx, p, eventID)
	if err != nil {
		return Memory{}, err
	}
	staged := core.StageFiles(svc.files, svc.logger)
	key := core.MediaKey(fmt.Sprintf("events/%s/memories", e.ID), up.Filename)
	if err = staged.Put(ctx, key, up.Content, up.ContentType); err != nil {
		return Memory{}, core.Unavailable(errors.Wrap(err, "storing memory"))
	}
	m, err := svc.repo.CreateMemory(ctx, Memory{
		EventID:     e.ID,
		Name:        name,
		FileKey:     key,
		ContentType: up.ContentType,
		UploadedBy:  p.UserID,
		CreatedAt:   core.Now(),
	})
	if err = staged.Settle(ctx, err); err != nil {
		return Memory{}, errors.Wrap(err, "creating memory")
	}
	m.URL = svc.files.URL(m.FileKey)
	return m, nil
}

func (svc *Service) ListMemories(ctx context.Context, p user.Principal, eventID string) ([]Memory, error) {
	e, err := svc.get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	t, err := svc.target(ctx, p, e)
	if err != nil {
		return nil, err
	}
	// any enrolled subject may read the memories, not only confirmed ones
	if t.Membership == access.Enrolled {
		t.Membership = access.Confirmed
	}
	if err = access.Can(p, access.ViewProgram, t); err != nil {
		return nil, err
	}
	memories, err := svc.repo.ListMemories(ctx, e.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing memories")
	}
	for i := range memories {
		memories[i].URL = svc.files.URL(memories[i].FileKey)
	}
	return memories, nil
}

func (svc *Service) DeleteMemory(ctx context.Context, p user.Principal, eventID, memoryID string) error {
	e, err := svc.GetForUpdate(ctx, p, eventID)
	if err != nil {
		return err
	}
	m, err := svc.repo.GetMemory(ctx, memoryID)
	if err != nil {
		return err
	}
	if m.EventID != e.ID {
		return ErrMemoryNotFound
	}
	if err = svc.repo.DeleteMemory(ctx, m.ID); err != nil {
		return errors.Wrap(err, "deleting memory")
	}
	if err = svc.files.Delete(ctx, m.FileKey); err != nil {
		svc.logger.Warn(fmt.Sprintf("deleting memory file %s: %v", m.FileKey, err), err)
	}
	return nil
}

// FinalizeEnded moves every Active event whose end date is past to Finalized.
func (svc *Service) FinalizeEnded(ctx context.Context) ([]Event, error) {
	today := core.Today()
	return svc.sweep(ctx, StateActive, StateFinalized, today, "event.finalize")
}

// ArchiveDue moves every Finalized event whose end date plus graceDays is before today to Archived.
// Events already Archived and events still Active are left untouched, so running it twice is a no-op.
func (svc *Service) ArchiveDue(ctx context.Context, graceDays int) ([]Event, error) {
	if graceDays < 0 {
		graceDays = DefaultGraceDays
	}
	// end + grace < today  <=>  end < today - grace
	cutoff := core.Today().AddDate(0, 0, -graceDays)
	return svc.sweep(ctx, StateFinalized, StateArchived, cutoff, "event.archive")
}

func (svc *Service) sweep(ctx context.Context, from, to State, endedBefore time.Time, action string) ([]Event, error) {
	var moved []Event
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		due, err := svc.repo.ListEvents(ctx, QueryFilter{States: []State{from}, EndedBefore: endedBefore})
		if err != nil {
			return errors.Wrap(err, "listing due events")
		}
		moved = make([]Event, 0, len(due))
		for _, e := range due {
			if e, err = svc.repo.LockEvent(ctx, e.ID); err != nil {
				return err
			}
			if e.State != from || !core.DateOf(e.EndDate).Before(endedBefore) {
				continue
			}
			e.State = to
			e.UpdatedAt = core.Now()
			if e, err = svc.repo.UpdateEvent(ctx, e); err != nil {
				return errors.Wrap(err, "updating state")
			}
			err = svc.audit.Record(ctx, audit.Entry{
				Action: action, TargetType: "event", TargetID: e.ID, From: string(from), To: string(to),
			})
			if err != nil {
				return err
			}
			moved = append(moved, e)
		}
		return nil
	})
	return moved, err
}

func containsState(states []State, st State) bool {
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}

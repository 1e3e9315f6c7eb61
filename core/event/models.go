package event

import (
	"time"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
)

type State string

const (
	StateDraft     State = "Draft"
	StatePublished State = "Published"
	StateActive    State = "Active"
	StateFinalized State = "Finalized"
	StateArchived  State = "Archived"
	StateCancelled State = "Cancelled"
)

var AllStates = []State{StateDraft, StatePublished, StateActive, StateFinalized, StateArchived, StateCancelled}

var stateAliases = map[string]State{
	"draft": StateDraft, "borrador": StateDraft,
	"published": StatePublished, "publicado": StatePublished,
	"active": StateActive, "activo": StateActive,
	"finalized": StateFinalized, "finalizado": StateFinalized,
	"archived": StateArchived, "archivado": StateArchived,
	"cancelled": StateCancelled, "cancelado": StateCancelled,
}

// ParseState canonicalises a state string, accepting any casing and the legacy Spanish names.
func ParseState(s string) (State, error) {
	if st, ok := stateAliases[core.CleanString(s, true /* lower */)]; ok {
		return st, nil
	}
	return "", core.NewFieldError(core.KindFieldInvalid, "state", "unknown event state")
}

// Track is one of the three audiences an event accepts.
type Track string

const (
	TrackParticipant Track = "participant"
	TrackEvaluator   Track = "evaluator"
	TrackAssistant   Track = "assistant"
)

var Tracks = []Track{TrackParticipant, TrackEvaluator, TrackAssistant}

func ParseTrack(s string) (Track, error) {
	switch t := Track(core.CleanString(s, true /* lower */)); t {
	case TrackParticipant, TrackEvaluator, TrackAssistant:
		return t, nil
	}
	return "", core.NewFieldError(core.KindFieldInvalid, "track", "unknown track")
}

type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	City             string    `json:"city"`
	Venue            string    `json:"venue"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	State            State     `json:"state"`
	OwnerID          string    `json:"owner_id"`
	Capacity         int       `json:"capacity"`
	HasCost          bool      `json:"has_cost"`
	BannerImage      string    `json:"banner_image,omitempty"`
	ProgramDoc       string    `json:"-"`
	TechnicalInfoDoc string    `json:"-"`

	EnrollOpenParticipants bool `json:"enroll_open_participants"`
	EnrollOpenEvaluators   bool `json:"enroll_open_evaluators"`
	EnrollOpenAssistants   bool `json:"enroll_open_assistants"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Listed reports whether the event is visible to the public.
func (e Event) Listed() bool {
	return e.State == StateActive || e.State == StateFinalized
}

func (e Event) EnrollOpen(t Track) bool {
	switch t {
	case TrackParticipant:
		return e.EnrollOpenParticipants
	case TrackEvaluator:
		return e.EnrollOpenEvaluators
	case TrackAssistant:
		return e.EnrollOpenAssistants
	default:
		return false
	}
}

// Ended reports whether today is past the event's end date.
func (e Event) Ended(today time.Time) bool {
	return today.After(core.DateOf(e.EndDate))
}

// AcceptsEnrollments reports whether the event is open for enrollment and self-edits.
func (e Event) AcceptsEnrollments(today time.Time) bool {
	return (e.State == StateActive || e.State == StatePublished) && !e.Ended(today)
}

// Target is the authorization view of the event.
func (e Event) Target(m ...access.Membership) access.Target {
	t := access.Target{OwnerID: e.OwnerID, Listed: e.Listed()}
	if len(m) > 0 {
		t.Membership = m[0]
	}
	return t
}

// Memory is a file shared with the event's audience after (or during) the event.
type Memory struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Name        string    `json:"name"`
	FileKey     string    `json:"-"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type MediaKind string

const (
	MediaBanner        MediaKind = "banner"
	MediaProgram       MediaKind = "program"
	MediaTechnicalInfo MediaKind = "technical_info"
)

// NewEvent contains information needed to create a new Event.
type NewEvent struct {
	Name        string    `json:"name" validate:"required,notblank,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	City        string    `json:"city" validate:"required,notblank,max=100"`
	Venue       string    `json:"venue" validate:"required,notblank,max=200"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required,gtefield=StartDate"`
	Capacity    int       `json:"capacity" validate:"min=0"`
	HasCost     bool      `json:"has_cost"`
	// OwnerID may only be set by a SUPERADMIN creating an event on behalf of an ADMIN_EVENTO.
	OwnerID string `json:"owner_id"`
	State   State  `json:"state" validate:"omitempty,oneof=Draft Published Active"`

	EnrollOpenParticipants bool `json:"enroll_open_participants"`
	EnrollOpenEvaluators   bool `json:"enroll_open_evaluators"`
	EnrollOpenAssistants   bool `json:"enroll_open_assistants"`
}

func (ne *NewEvent) Validate() error {
	ne.Name = core.CleanString(ne.Name)
	ne.Description = core.CleanString(ne.Description)
	ne.City = core.CleanString(ne.City)
	ne.Venue = core.CleanString(ne.Venue)
	ne.OwnerID = core.CleanString(ne.OwnerID)
	ne.StartDate = core.DateOf(ne.StartDate)
	ne.EndDate = core.DateOf(ne.EndDate)
	return core.Validate.Struct(ne)
}

// UpdateEvent defines what information may be provided to modify an existing Event.
type UpdateEvent struct {
	Name        *string    `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	City        *string    `json:"city" validate:"omitempty,notblank,max=100"`
	Venue       *string    `json:"venue" validate:"omitempty,notblank,max=200"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	HasCost     *bool      `json:"has_cost"`
}

// apply validates uu and merges it into e.
func (uu UpdateEvent) apply(e Event) (Event, error) {
	if err := core.Validate.Struct(uu); err != nil {
		return Event{}, err
	}
	if uu.Name != nil {
		e.Name = core.CleanString(*uu.Name)
	}
	if uu.Description != nil {
		e.Description = core.CleanString(*uu.Description)
	}
	if uu.City != nil {
		e.City = core.CleanString(*uu.City)
	}
	if uu.Venue != nil {
		e.Venue = core.CleanString(*uu.Venue)
	}
	if uu.StartDate != nil {
		e.StartDate = core.DateOf(*uu.StartDate)
	}
	if uu.EndDate != nil {
		e.EndDate = core.DateOf(*uu.EndDate)
	}
	if uu.HasCost != nil {
		e.HasCost = *uu.HasCost
	}
	if e.EndDate.Before(e.StartDate) {
		return Event{}, core.NewFieldError(core.KindFieldInvalid, "end_date", "end_date must not be before start_date")
	}
	return e, nil
}

// Features toggles enrollment per track; nil leaves the flag unchanged.
type Features struct {
	Participants *bool `json:"enroll_open_participants"`
	Evaluators   *bool `json:"enroll_open_evaluators"`
	Assistants   *bool `json:"enroll_open_assistants"`
}

type QueryFilter struct {
	Search      string    `query:"search"`
	States      []State   `query:"state"`
	OwnerID     string    `query:"owner"`
	EndedBefore time.Time `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// DirectoryEntry is an event with its per-track head-counts.
type DirectoryEntry struct {
	Event
	Occupancy map[Track]int `json:"occupancy"`
}

// Program is the restricted documentation of an event.
type Program struct {
	EventID          string `json:"event_id"`
	ProgramURL       string `json:"program_url,omitempty"`
	TechnicalInfoURL string `json:"technical_info_url,omitempty"`
}

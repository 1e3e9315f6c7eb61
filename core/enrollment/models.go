package enrollment

import (
	"strings"
	"time"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
)

type State string

const (
	StatePreinscrito       State = "Preinscrito"
	StatePendiente         State = "Pendiente"
	StatePendienteRevision State = "Pendiente de Revisión"
	StateAprobado          State = "Aprobado"
	StateRechazado         State = "Rechazado"
	StateConfirmado        State = "Confirmado"
	StateCancelado         State = "Cancelado"

	// legacy spelling of StateAprobado for participant enrollments
	stateAceptado = "Aceptado"
)

var AllStates = []State{
	StatePreinscrito, StatePendiente, StatePendienteRevision, StateAprobado, StateRechazado, StateConfirmado, StateCancelado,
}

// ParseState canonicalises a boundary state string; "Aceptado" is read as Aprobado.
func ParseState(s string) (State, error) {
	s = core.CleanString(s)
	if strings.EqualFold(s, stateAceptado) {
		return StateAprobado, nil
	}
	for _, st := range AllStates {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", core.NewFieldError(core.KindFieldInvalid, "state", "unknown enrollment state")
}

// Terminal states never transition again.
func (s State) Terminal() bool {
	return s == StateRechazado || s == StateConfirmado || s == StateCancelado
}

// Occupying states hold a seat of the event's capacity.
func (s State) Occupying() bool {
	return s != StateRechazado && s != StateCancelado
}

// Admitted states count against capacity at approval time.
func (s State) Admitted() bool {
	return s == StateAprobado || s == StateConfirmado
}

// ConfirmedState reports whether s is the confirmed value of track t.
// Participants keep their confirmed status after the final Confirmado step.
func ConfirmedState(t event.Track, s State) bool {
	switch t {
	case event.TrackParticipant:
		return s == StateAprobado || s == StateConfirmado
	case event.TrackEvaluator:
		return s == StateAprobado
	case event.TrackAssistant:
		return s == StateConfirmado
	default:
		return false
	}
}

type op string

const (
	opApprove op = "approve"
	opReject  op = "reject"
	opConfirm op = "confirm"
	opCancel  op = "cancel"
)

// transitions is the per-track transition table: track -> operation -> source state -> target state.
var transitions = map[event.Track]map[op]map[State]State{
	event.TrackParticipant: {
		opApprove: {StatePreinscrito: StateAprobado},
		opReject:  {StatePreinscrito: StateRechazado},
		opConfirm: {StateAprobado: StateConfirmado},
	},
	event.TrackEvaluator: {
		opApprove: {StatePreinscrito: StateAprobado, StatePendienteRevision: StateAprobado},
		opReject:  {StatePreinscrito: StateRechazado, StatePendienteRevision: StateRechazado},
	},
	event.TrackAssistant: {
		// approving a pending (paid) assistant validates the payment proof
		opApprove: {StatePendiente: StateConfirmado},
		opReject:  {StatePendiente: StateRechazado},
		opConfirm: {StateAprobado: StateConfirmado},
		opCancel:  {StatePendiente: StateCancelado, StateAprobado: StateCancelado},
	},
}

// next returns the state reached by applying o to an enrollment of track t in state s.
func next(t event.Track, s State, o op) (State, error) {
	if s.Terminal() {
		return "", core.NewError(core.KindStateFinal, "enrollment is "+string(s)+" and cannot change")
	}
	if to, ok := transitions[t][o][s]; ok {
		return to, nil
	}
	if o == opReject && s.Admitted() {
		return "", core.NewError(core.KindStateFinal, "an approved enrollment cannot be rejected")
	}
	return "", core.NewError(core.KindInvalidTransition, "cannot "+string(o)+" a "+string(t)+" enrollment in state "+string(s))
}

// InitialState is the state of a new enrollment of track t.
func InitialState(t event.Track, hasCost bool) State {
	if t == event.TrackAssistant {
		if hasCost {
			return StatePendiente
		}
		return StateAprobado
	}
	return StatePreinscrito
}

type Enrollment struct {
	ID              string      `json:"id"`
	EventID         string      `json:"event_id"`
	Track           event.Track `json:"track"`
	SubjectID       string      `json:"subject_id"` // profile
	UserID          string      `json:"user_id"`
	State           State       `json:"state"`
	AccessKey       string      `json:"access_key"`
	ReviewerID      string      `json:"reviewer_id,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	QRImage         string      `json:"qr_image,omitempty"`
	PaymentProof    string      `json:"payment_proof,omitempty"`
	Attachment      string      `json:"attachment,omitempty"` // e.g. evaluator CV
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (e Enrollment) Confirmed() bool {
	return ConfirmedState(e.Track, e.State)
}

// Target is the authorization view of the enrollment.
func (e Enrollment) Target(ev event.Event) access.Target {
	return access.Target{OwnerID: ev.OwnerID, SubjectID: e.UserID, Listed: ev.Listed()}
}

// EnrollRequest asks for a new enrollment of Subject in an event's track.
type EnrollRequest struct {
	EventID      string           `json:"event_id"`
	Track        event.Track      `json:"track"`
	Subject      user.SubjectData `json:"subject"`
	PaymentProof *core.Upload     `json:"-"`
	Attachment   *core.Upload     `json:"-"`
}

// SelfEdit lists the fields a subject may change on their own enrollment; nil fields are left unchanged.
type SelfEdit struct {
	AccessKey    *string      `json:"access_key" validate:"omitempty,alphanum,min=6,max=32"`
	PaymentProof *core.Upload `json:"-"`
	Attachment   *core.Upload `json:"-"`
}

type QueryFilter struct {
	EventID string        `query:"-"`
	UserID  string        `query:"-"`
	Track   event.Track   `query:"track"`
	States  []State       `query:"state"`
	Tracks  []event.Track `query:"-"`
}

// Counts are head-counts per track and state.
type Counts map[event.Track]map[State]int

// TrackStats summarises one track of an event.
type TrackStats struct {
	Total    int           `json:"total"`
	Pending  int           `json:"pending"`
	Admitted int           `json:"admitted"`
	Rejected int           `json:"rejected"`
	ByState  map[State]int `json:"by_state"`
}

type Stats struct {
	EventID   string                     `json:"event_id"`
	Capacity  int                        `json:"capacity"`
	Tracks    map[event.Track]TrackStats `json:"tracks"`
	Occupied  map[event.Track]int        `json:"occupied"`
	Occupancy map[event.Track]float64    `json:"occupancy_pct"`
}

// Recipient is a subject selected for a dispatch.
type Recipient struct {
	UserID       string      `json:"user_id"`
	EnrollmentID string      `json:"enrollment_id"`
	Track        event.Track `json:"track"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone"`
	Specialty    string      `json:"specialty,omitempty"`
}

// Package access decides who may do what on the platform.
//
// Every decision is read from a closed table indexed by action and actor class;
// the actor class is derived from the principal's role and its relation to the target.
package access

import (
	"fmt"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/user"
)

type Action string

const (
	CreateEvent        Action = "event.create"
	EditEvent          Action = "event.edit"
	ConfigureEvent     Action = "event.configure" // features, capacity, media, state
	ReviewEnrollment   Action = "enrollment.review"
	EditOwnEnrollment  Action = "enrollment.edit_own"
	ViewEvent          Action = "event.view"
	ViewProgram        Action = "event.view_program" // program, technical info, memories
	Notify             Action = "event.notify"
	ManageCriteria     Action = "criteria.manage"
	PublishInstrument  Action = "instrument.publish"
	ViewInstrument     Action = "instrument.view"
	ManageCertificates Action = "certificates.manage"
	PlatformAdmin      Action = "platform.admin" // invitation codes, event directory, archival reversal, CMS
)

var AllActions = []Action{
	CreateEvent, EditEvent, ConfigureEvent, ReviewEnrollment, EditOwnEnrollment, ViewEvent, ViewProgram,
	Notify, ManageCriteria, PublishInstrument, ViewInstrument, ManageCertificates, PlatformAdmin,
}

// Class is the actor class of a principal relative to a target.
type Class int

const (
	Visitor    Class = iota // unauthenticated or VISITANTE
	SuperAdmin              // SUPERADMIN
	Owner                   // ADMIN_EVENTO owning the target
	OtherAdmin              // any other ADMIN_EVENTO
	Subject                 // PARTICIPANTE / EVALUADOR / ASISTENTE subject of the target
	NonSubject              // same roles, not subject of the target
	numClasses
)

var AllClasses = []Class{Visitor, SuperAdmin, Owner, OtherAdmin, Subject, NonSubject}

func (c Class) String() string {
	switch c {
	case Visitor:
		return "Visitor"
	case SuperAdmin:
		return "SuperAdmin"
	case Owner:
		return "Owner"
	case OtherAdmin:
		return "OtherAdmin"
	case Subject:
		return "Subject"
	case NonSubject:
		return "NonSubject"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Membership is the actor's relation to an event through its enrollments.
type Membership int

const (
	NotEnrolled Membership = iota
	Enrolled               // holds an enrollment in any non-confirmed state
	Confirmed              // holds an enrollment in its track's confirmed state
)

// Target describes the object an action is performed on, as far as authorization is concerned.
type Target struct {
	// OwnerID is the user ID of the ADMIN_EVENTO owning the target; empty for platform-wide targets.
	OwnerID string
	// SubjectID is the user ID of the enrollment subject, for enrollment targets.
	SubjectID string
	// Listed is set when the event is in a publicly visible state.
	Listed bool
	// Membership is the actor's relation to the target's event.
	Membership Membership
}

type rule uint8

const (
	deny rule = iota
	allow
	allowIfListed
	allowIfConfirmed
)

func row(superAdmin, owner, otherAdmin, subject, nonSubject, visitor rule) [numClasses]rule {
	var r [numClasses]rule
	r[SuperAdmin], r[Owner], r[OtherAdmin], r[Subject], r[NonSubject], r[Visitor] = superAdmin, owner, otherAdmin, subject, nonSubject, visitor
	return r
}

var table = map[Action][numClasses]rule{
	//                          super  owner  other  subject           non   visitor
	CreateEvent:        row(allow, allow, deny, deny, deny, deny),
	EditEvent:          row(allow, allow, deny, deny, deny, deny),
	ConfigureEvent:     row(allow, allow, deny, deny, deny, deny),
	ReviewEnrollment:   row(allow, allow, deny, deny, deny, deny),
	EditOwnEnrollment:  row(allow, deny, deny, allow, deny, deny),
	ViewEvent:          row(allow, allow, allow, allow, allow, allowIfListed),
	ViewProgram:        row(allow, allow, deny, allowIfConfirmed, deny, deny),
	Notify:             row(allow, allow, deny, deny, deny, deny),
	ManageCriteria:     row(allow, allow, deny, deny, deny, deny),
	PublishInstrument:  row(allow, allow, deny, deny, deny, deny),
	ViewInstrument:     row(allow, allow, deny, allowIfConfirmed, deny, deny),
	ManageCertificates: row(allow, allow, deny, deny, deny, deny),
	PlatformAdmin:      row(allow, deny, deny, deny, deny, deny),
}

// ownerScoped actions are denied to other admins with NotOwner rather than Forbidden.
var ownerScoped = map[Action]bool{
	EditEvent: true, ConfigureEvent: true, ReviewEnrollment: true, Notify: true, ViewProgram: true,
	ManageCriteria: true, PublishInstrument: true, ViewInstrument: true, ManageCertificates: true,
}

// ClassOf derives the actor class of p relative to t.
func ClassOf(p user.Principal, t Target) Class {
	switch {
	case !p.IsAuthenticated() || p.Role == user.RoleVisitor:
		return Visitor
	case p.IsSuperAdmin():
		return SuperAdmin
	case p.Role == user.RoleEventAdmin:
		if t.OwnerID != "" && t.OwnerID == p.UserID {
			return Owner
		}
		return OtherAdmin
	case t.SubjectID != "":
		if t.SubjectID == p.UserID {
			return Subject
		}
		return NonSubject
	case t.Membership != NotEnrolled:
		return Subject
	default:
		return NonSubject
	}
}

// Allowed reports whether the table permits action a for class c on t.
func Allowed(a Action, c Class, t Target) bool {
	r, ok := table[a]
	if !ok || c < 0 || c >= numClasses {
		return false
	}
	switch r[c] {
	case allow:
		return true
	case allowIfListed:
		return t.Listed
	case allowIfConfirmed:
		return t.Membership == Confirmed
	default:
		return false
	}
}

// Can returns nil when p may perform a on t, and a NotAuthenticated, NotOwner or Forbidden error otherwise.
func Can(p user.Principal, a Action, t Target) error {
	class := ClassOf(p, t)
	if Allowed(a, class, t) {
		return nil
	}
	switch {
	case !p.IsAuthenticated():
		return core.NewError(core.KindNotAuthenticated, "authentication required")
	case a == EditOwnEnrollment && class != Visitor:
		return core.NewError(core.KindNotOwner, "only the enrollment subject may do this")
	case class == OtherAdmin && ownerScoped[a]:
		return core.NewError(core.KindNotOwner, "only the event owner may do this")
	default:
		return core.NewError(core.KindForbidden, "permission denied")
	}
}

package access

import (
	"testing"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/user"
)

var (
	anon       = user.Principal{}
	visitor    = user.Principal{UserID: "v", Role: user.RoleVisitor}
	superAdmin = user.Principal{UserID: "root", Role: user.RoleSuperAdmin}
	owner      = user.Principal{UserID: "owner", Role: user.RoleEventAdmin}
	otherAdmin = user.Principal{UserID: "other", Role: user.RoleEventAdmin}
	juan       = user.Principal{UserID: "juan", Role: user.RoleParticipant}
	ana        = user.Principal{UserID: "ana", Role: user.RoleAssistant}
)

func TestClassOf(t *testing.T) {
	enrollmentTarget := Target{OwnerID: "owner", SubjectID: "juan"}
	tests := []struct {
		name   string
		p      user.Principal
		target Target
		want   Class
	}{
		{name: "anonymous", p: anon, target: enrollmentTarget, want: Visitor},
		{name: "visitor role", p: visitor, target: enrollmentTarget, want: Visitor},
		{name: "superadmin", p: superAdmin, target: enrollmentTarget, want: SuperAdmin},
		{name: "owner", p: owner, target: enrollmentTarget, want: Owner},
		{name: "other admin", p: otherAdmin, target: enrollmentTarget, want: OtherAdmin},
		{name: "admin on platform target", p: owner, target: Target{}, want: OtherAdmin},
		{name: "subject", p: juan, target: enrollmentTarget, want: Subject},
		{name: "non subject", p: ana, target: enrollmentTarget, want: NonSubject},
		{name: "event member", p: ana, target: Target{OwnerID: "owner", Membership: Enrolled}, want: Subject},
		{name: "event non member", p: ana, target: Target{OwnerID: "owner"}, want: NonSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.p, tt.target); got != tt.want {
				t.Errorf("ClassOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

// every (action, class, target state) triple must resolve to exactly one of allow / deny
func TestTableIsTotal(t *testing.T) {
	for _, a := range AllActions {
		if _, ok := table[a]; !ok {
			t.Errorf("action %q has no row", a)
		}
	}
	if len(table) != len(AllActions) {
		t.Errorf("table has %d rows, want %d", len(table), len(AllActions))
	}
	for _, a := range AllActions {
		for _, c := range AllClasses {
			for _, listed := range []bool{false, true} {
				for _, m := range []Membership{NotEnrolled, Enrolled, Confirmed} {
					r := table[a][c]
					if r > allowIfConfirmed {
						t.Errorf("%s/%s: unknown rule %d", a, c, r)
					}
					first := Allowed(a, c, Target{Listed: listed, Membership: m})
					second := Allowed(a, c, Target{Listed: listed, Membership: m})
					if first != second {
						t.Errorf("%s/%s: decision not deterministic", a, c)
					}
				}
			}
		}
	}
}

func TestCan(t *testing.T) {
	event := Target{OwnerID: "owner", Listed: true}
	draft := Target{OwnerID: "owner"}
	juanEnrollment := Target{OwnerID: "owner", SubjectID: "juan"}

	tests := []struct {
		name     string
		p        user.Principal
		action   Action
		target   Target
		wantKind core.Kind // KindUnknown: allowed
	}{
		// create/edit event
		{name: "owner edits event", p: owner, action: EditEvent, target: event},
		{name: "superadmin edits event", p: superAdmin, action: EditEvent, target: event},
		{name: "other admin edits event", p: otherAdmin, action: EditEvent, target: event, wantKind: core.KindNotOwner},
		{name: "participant edits event", p: juan, action: EditEvent, target: event, wantKind: core.KindForbidden},
		{name: "anonymous edits event", p: anon, action: EditEvent, target: event, wantKind: core.KindNotAuthenticated},
		{name: "admin creates event", p: owner, action: CreateEvent, target: Target{OwnerID: owner.UserID}},
		{name: "participant creates event", p: juan, action: CreateEvent, target: Target{OwnerID: juan.UserID}, wantKind: core.KindForbidden},

		// review
		{name: "owner approves", p: owner, action: ReviewEnrollment, target: juanEnrollment},
		{name: "other admin approves", p: otherAdmin, action: ReviewEnrollment, target: juanEnrollment, wantKind: core.KindNotOwner},
		{name: "subject approves self", p: juan, action: ReviewEnrollment, target: juanEnrollment, wantKind: core.KindForbidden},

		// self edit
		{name: "subject edits own", p: juan, action: EditOwnEnrollment, target: juanEnrollment},
		{name: "superadmin edits any", p: superAdmin, action: EditOwnEnrollment, target: juanEnrollment},
		{name: "non subject edits", p: ana, action: EditOwnEnrollment, target: juanEnrollment, wantKind: core.KindNotOwner},
		{name: "owner edits subject's", p: owner, action: EditOwnEnrollment, target: juanEnrollment, wantKind: core.KindNotOwner},
		{name: "anonymous edits", p: anon, action: EditOwnEnrollment, target: juanEnrollment, wantKind: core.KindNotAuthenticated},

		// public view
		{name: "anonymous views listed", p: anon, action: ViewEvent, target: event},
		{name: "anonymous views draft", p: anon, action: ViewEvent, target: draft, wantKind: core.KindNotAuthenticated},
		{name: "visitor views draft", p: visitor, action: ViewEvent, target: draft, wantKind: core.KindForbidden},
		{name: "other admin views draft", p: otherAdmin, action: ViewEvent, target: draft},

		// program
		{name: "confirmed subject views program", p: ana, action: ViewProgram, target: Target{OwnerID: "owner", Membership: Confirmed}},
		{name: "pending subject views program", p: ana, action: ViewProgram, target: Target{OwnerID: "owner", Membership: Enrolled}, wantKind: core.KindForbidden},
		{name: "non member views program", p: ana, action: ViewProgram, target: event, wantKind: core.KindForbidden},
		{name: "other admin views program", p: otherAdmin, action: ViewProgram, target: event, wantKind: core.KindNotOwner},

		// instrument
		{name: "confirmed views instrument", p: juan, action: ViewInstrument, target: Target{OwnerID: "owner", Membership: Confirmed}},
		{name: "visitor views instrument", p: anon, action: ViewInstrument, target: event, wantKind: core.KindNotAuthenticated},

		// platform
		{name: "superadmin issues code", p: superAdmin, action: PlatformAdmin},
		{name: "admin issues code", p: owner, action: PlatformAdmin, wantKind: core.KindForbidden},
		{name: "participant edits cms", p: juan, action: PlatformAdmin, wantKind: core.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Can(tt.p, tt.action, tt.target)
			if tt.wantKind == core.KindUnknown {
				if err != nil {
					t.Errorf("Can() error = %v, want nil", err)
				}
				return
			}
			if got := core.KindOf(err); got != tt.wantKind {
				t.Errorf("Can() error = %v, wantKind %v", err, tt.wantKind)
			}
		})
	}
}

package event_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/tests"
)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	_, super := env.CreateUser(t, user.RoleSuperAdmin, "root")
	_, part := env.CreateUser(t, user.RoleParticipant, "part")

	ev, err := env.Events.Create(ctx, owner, testutil.NewEvent(50))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ev.State != event.StateActive || ev.OwnerID != owner.UserID {
		t.Errorf("Create() = %v owned by %v, want %v owned by %v", ev.State, ev.OwnerID, event.StateActive, owner.UserID)
	}
	// superadmins hear about every new event
	if len(env.Mail.Sent()) != 1 || env.Mail.Sent()[0].TemplateName != "event_created" {
		t.Errorf("Create() did not notify the superadmins")
	}

	badDates := testutil.NewEvent(10)
	badDates.EndDate = badDates.StartDate.AddDate(0, 0, -1)
	onBehalf := testutil.NewEvent(10)
	onBehalf.OwnerID = owner.UserID
	draft := testutil.NewEvent(10)
	draft.State = event.StateDraft
	archived := testutil.NewEvent(10)
	archived.State = event.StateArchived

	tests := []struct {
		name     string
		p        user.Principal
		ne       event.NewEvent
		wantKind core.Kind
	}{
		{"anonymous", user.Principal{}, testutil.NewEvent(10), core.KindNotAuthenticated},
		{"participant", part, testutil.NewEvent(10), core.KindForbidden},
		{"end before start", owner, badDates, core.KindFieldInvalid},
		{"negative capacity", owner, testutil.NewEvent(-1), core.KindFieldInvalid},
		{"superadmin on behalf", super, onBehalf, core.KindUnknown},
		{"draft", owner, draft, core.KindUnknown},
		{"created archived", owner, archived, core.KindFieldInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.Events.Create(ctx, tt.p, tt.ne)
			if kind := core.KindOf(err); kind != tt.wantKind {
				t.Fatalf("Create() error = %v, want kind %v", err, tt.wantKind)
			}
			if err == nil && got.OwnerID != owner.UserID {
				t.Errorf("Create() owner = %v, want %v", got.OwnerID, owner.UserID)
			}
		})
	}
}

func TestService_SetCapacity(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	_, other := env.CreateUser(t, user.RoleEventAdmin, "other")
	ev := env.CreateEvent(t, owner, 100)

	for _, name := range []string{"ana", "beto", "ciro"} {
		env.Admit(t, owner, ev.ID, event.TrackParticipant, name)
	}

	if _, err := env.Events.SetCapacity(ctx, owner, ev.ID, 2); errors.Cause(err) != event.ErrCapacityTooLow {
		t.Errorf("SetCapacity(2) error = %v, want %v", err, event.ErrCapacityTooLow)
	}
	if got, _ := env.EventRepo.GetEvent(ctx, ev.ID); got.Capacity != 100 {
		t.Errorf("refused SetCapacity() changed the capacity to %d", got.Capacity)
	}

	got, err := env.Events.SetCapacity(ctx, owner, ev.ID, 5)
	if err != nil {
		t.Fatalf("SetCapacity(5) error = %v", err)
	}
	if got.Capacity != 5 {
		t.Errorf("SetCapacity(5) capacity = %d", got.Capacity)
	}
	if got, _ = env.Events.SetCapacity(ctx, owner, ev.ID, 3); got.Capacity != 3 {
		t.Errorf("SetCapacity(3) capacity = %d, want 3", got.Capacity)
	}

	if _, err = env.Events.SetCapacity(ctx, owner, ev.ID, -1); errors.Cause(err) != event.ErrInvalidCapacity {
		t.Errorf("SetCapacity(-1) error = %v, want %v", err, event.ErrInvalidCapacity)
	}
	if _, err = env.Events.SetCapacity(ctx, other, ev.ID, 50); !core.IsKind(err, core.KindNotOwner) {
		t.Errorf("SetCapacity() by other admin error = %v, want kind %v", err, core.KindNotOwner)
	}
}

func TestService_ArchiveDue(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	today := core.Today()

	a := env.CreateEvent(t, owner, 10)
	env.SetEventDates(t, a.ID, today.AddDate(0, 0, -42), today.AddDate(0, 0, -40))
	env.SetEventState(t, a.ID, event.StateFinalized)
	b := env.CreateEvent(t, owner, 10)
	env.SetEventDates(t, b.ID, today.AddDate(0, 0, -22), today.AddDate(0, 0, -20))
	env.SetEventState(t, b.ID, event.StateFinalized)
	c := env.CreateEvent(t, owner, 10)
	env.SetEventDates(t, c.ID, today.AddDate(0, 0, -92), today.AddDate(0, 0, -90))
	env.SetEventState(t, c.ID, event.StateArchived)
	// ended long ago but never finalized
	d := env.CreateEvent(t, owner, 10)
	env.SetEventDates(t, d.ID, today.AddDate(0, 0, -62), today.AddDate(0, 0, -60))
	env.SetEventState(t, d.ID, event.StateCancelled)

	cBefore, _ := env.EventRepo.GetEvent(ctx, c.ID)

	moved, err := env.Events.ArchiveDue(ctx, 30)
	if err != nil {
		t.Fatalf("ArchiveDue() error = %v", err)
	}
	if len(moved) != 1 || moved[0].ID != a.ID {
		t.Errorf("ArchiveDue() moved %v, want only %v", moved, a.ID)
	}

	want := map[string]event.State{
		a.ID: event.StateArchived,
		b.ID: event.StateFinalized,
		c.ID: event.StateArchived,
		d.ID: event.StateCancelled,
	}
	for id, st := range want {
		if got, _ := env.EventRepo.GetEvent(ctx, id); got.State != st {
			t.Errorf("event %s state = %v, want %v", id, got.State, st)
		}
	}
	if cAfter, _ := env.EventRepo.GetEvent(ctx, c.ID); !cAfter.UpdatedAt.Equal(cBefore.UpdatedAt) {
		t.Errorf("ArchiveDue() touched an archived event")
	}

	// running again changes nothing
	if moved, err = env.Events.ArchiveDue(ctx, 30); err != nil || len(moved) != 0 {
		t.Errorf("ArchiveDue() again = %v, %v; want nothing", moved, err)
	}
	entries, _ := env.AuditRepo.ListEntries(ctx, audit.QueryFilter{TargetID: a.ID, Action: "event.archive"})
	if len(entries) != 1 {
		t.Errorf("ArchiveDue() recorded %d audit entries for %s, want 1", len(entries), a.ID)
	}
}

func TestService_ArchiveDueBoundary(t *testing.T) {
	tests := []struct {
		name     string
		endedAgo int
		grace    int
		want     event.State
	}{
		{"exactly at grace", 30, 30, event.StateFinalized},
		{"one day past grace", 31, 30, event.StateArchived},
		{"zero grace ended yesterday", 1, 0, event.StateArchived},
		{"zero grace ended today", 0, 0, event.StateFinalized},
		{"negative grace uses default", 31, -1, event.StateArchived},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			ctx := context.Background()
			_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
			end := core.Today().AddDate(0, 0, -tt.endedAgo)

			ev := env.CreateEvent(t, owner, 10)
			env.SetEventDates(t, ev.ID, end.AddDate(0, 0, -1), end)
			env.SetEventState(t, ev.ID, event.StateFinalized)

			if _, err := env.Events.ArchiveDue(ctx, tt.grace); err != nil {
				t.Fatalf("ArchiveDue() error = %v", err)
			}
			if got, _ := env.EventRepo.GetEvent(ctx, ev.ID); got.State != tt.want {
				t.Errorf("ArchiveDue() state = %v, want %v", got.State, tt.want)
			}
		})
	}
}

func TestService_FinalizeEnded(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	today := core.Today()

	ended := env.CreateEvent(t, owner, 10)
	env.SetEventDates(t, ended.ID, today.AddDate(0, 0, -3), today.AddDate(0, 0, -1))
	endsToday := env.CreateEvent(t, owner, 10)
	env.SetEventDates(t, endsToday.ID, today.AddDate(0, 0, -2), today)
	draft := env.CreateEvent(t, owner, 10)
	env.SetEventDates(t, draft.ID, today.AddDate(0, 0, -3), today.AddDate(0, 0, -1))
	env.SetEventState(t, draft.ID, event.StateDraft)

	moved, err := env.Events.FinalizeEnded(ctx)
	if err != nil {
		t.Fatalf("FinalizeEnded() error = %v", err)
	}
	if len(moved) != 1 || moved[0].ID != ended.ID || moved[0].State != event.StateFinalized {
		t.Errorf("FinalizeEnded() = %v, want only %v", moved, ended.ID)
	}
	for id, st := range map[string]event.State{endsToday.ID: event.StateActive, draft.ID: event.StateDraft} {
		if got, _ := env.EventRepo.GetEvent(ctx, id); got.State != st {
			t.Errorf("event %s state = %v, want %v", id, got.State, st)
		}
	}
}

func TestService_Transition(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	_, super := env.CreateUser(t, user.RoleSuperAdmin, "root")
	ev := env.CreateEvent(t, owner, 10)

	steps := []struct {
		name     string
		p        user.Principal
		to       event.State
		wantKind core.Kind
	}{
		{"active to draft", owner, event.StateDraft, core.KindInvalidTransition},
		{"finalize", owner, event.StateFinalized, core.KindUnknown},
		{"owner cannot archive", owner, event.StateArchived, core.KindForbidden},
		{"superadmin archives", super, event.StateArchived, core.KindUnknown},
		{"owner cannot unarchive", owner, event.StateFinalized, core.KindForbidden},
		{"superadmin reverses archival", super, event.StateFinalized, core.KindUnknown},
		{"finalized to active", owner, event.StateActive, core.KindInvalidTransition},
	}
	for _, st := range steps {
		_, err := env.Events.Transition(ctx, st.p, ev.ID, st.to)
		if kind := core.KindOf(err); kind != st.wantKind {
			t.Errorf("%s: Transition() error = %v, want kind %v", st.name, err, st.wantKind)
		}
	}
	if got, _ := env.EventRepo.GetEvent(ctx, ev.ID); got.State != event.StateFinalized {
		t.Errorf("state = %v, want %v", got.State, event.StateFinalized)
	}
}

func TestService_CancelNotifiesAttendees(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	ev := env.CreateEvent(t, owner, 10)

	admitted, _ := env.Admit(t, owner, ev.ID, event.TrackParticipant, "ana")
	pending, _ := env.Enroll(t, ev.ID, event.TrackParticipant, "beto")
	rejected, _ := env.Enroll(t, ev.ID, event.TrackParticipant, "ciro")
	if _, err := env.Enrollments.Reject(ctx, owner, rejected.ID, "incompleto"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	if _, err := env.Events.Transition(ctx, owner, ev.ID, event.StateCancelled); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	for _, tt := range []struct {
		userID string
		want   int
	}{{admitted.UserID, 1}, {pending.UserID, 1}, {rejected.UserID, 0}} {
		usr, _ := env.Users.GetByID(ctx, tt.userID)
		if n := len(env.Mail.SentTo(usr.Email, "event_cancelled")); n != tt.want {
			t.Errorf("%s received %d cancellation messages, want %d", usr.Username, n, tt.want)
		}
	}
}

func TestService_ListVisibility(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")

	active := env.CreateEvent(t, owner, 10, func(ne *event.NewEvent) { ne.Name = "Foro Activo" })
	draft := env.CreateEvent(t, owner, 10, func(ne *event.NewEvent) { ne.Name = "Foro Borrador"; ne.State = event.StateDraft })

	visible, err := env.Events.List(ctx, user.Principal{}, event.QueryFilter{Search: "foro"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(visible) != 1 || visible[0].ID != active.ID {
		t.Errorf("List() by visitor = %v, want only %v", visible, active.Name)
	}
	if _, err = env.Events.Get(ctx, user.Principal{}, draft.ID); !core.IsKind(err, core.KindNotAuthenticated) {
		t.Errorf("Get() draft by visitor error = %v, want kind %v", err, core.KindNotAuthenticated)
	}
	all, _ := env.Events.List(ctx, owner, event.QueryFilter{OwnerID: owner.UserID})
	if len(all) != 2 {
		t.Errorf("List() by owner = %d events, want 2", len(all))
	}
}

func TestService_ProgramAndMemories(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	_, other := env.CreateUser(t, user.RoleEventAdmin, "other")
	ev := env.CreateEvent(t, owner, 10)

	doc := &core.Upload{Filename: "Programa.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")}
	if _, err := env.Events.SetMedia(ctx, owner, ev.ID, event.MediaProgram, doc); err != nil {
		t.Fatalf("SetMedia() error = %v", err)
	}

	_, confirmedP := env.Admit(t, owner, ev.ID, event.TrackParticipant, "ana")
	_, pendingP := env.Enroll(t, ev.ID, event.TrackParticipant, "beto")

	tests := []struct {
		name     string
		p        user.Principal
		wantKind core.Kind
	}{
		{"owner", owner, core.KindUnknown},
		{"confirmed subject", confirmedP, core.KindUnknown},
		{"pending subject", pendingP, core.KindForbidden},
		{"other admin", other, core.KindNotOwner},
		{"anonymous", user.Principal{}, core.KindNotAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := env.Events.Program(ctx, tt.p, ev.ID)
			if kind := core.KindOf(err); kind != tt.wantKind {
				t.Fatalf("Program() error = %v, want kind %v", err, tt.wantKind)
			}
			if err == nil && prog.ProgramURL == "" {
				t.Errorf("Program() has no program URL")
			}
		})
	}

	m, err := env.Events.AddMemory(ctx, owner, ev.ID, "Fotos", &core.Upload{Filename: "fotos.zip", Content: []byte("zip")})
	if err != nil {
		t.Fatalf("AddMemory() error = %v", err)
	}
	// memories are open to every enrolled subject
	memories, err := env.Events.ListMemories(ctx, pendingP, ev.ID)
	if err != nil || len(memories) != 1 || memories[0].URL == "" {
		t.Errorf("ListMemories() = %v, %v", memories, err)
	}
	if err = env.Events.DeleteMemory(ctx, other, ev.ID, m.ID); !core.IsKind(err, core.KindNotOwner) {
		t.Errorf("DeleteMemory() by other admin error = %v, want kind %v", err, core.KindNotOwner)
	}
	if err = env.Events.DeleteMemory(ctx, owner, ev.ID, m.ID); err != nil {
		t.Errorf("DeleteMemory() error = %v", err)
	}
	if _, err = env.Files.Get(ctx, m.FileKey); err == nil {
		t.Errorf("DeleteMemory() left the file behind")
	}
}

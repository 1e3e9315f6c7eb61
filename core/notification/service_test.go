package notification_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/notification"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/tests"
)

type audience struct {
	env   *testutil.Env
	owner user.Principal
	ev    event.Event
	// confirmed subjects, by name
	subjects map[string]user.User
}

// newAudience sets up an event with two confirmed participants, a confirmed evaluator,
// a confirmed assistant and a pending participant.
func newAudience(t *testing.T) *audience {
	env := testutil.NewEnv(t)
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	ev := env.CreateEvent(t, owner, 10, func(ne *event.NewEvent) { ne.Name = "Seminario X" })

	a := &audience{env: env, owner: owner, ev: ev, subjects: make(map[string]user.User)}
	for _, s := range []struct {
		track event.Track
		name  string
	}{
		{event.TrackParticipant, "ana"},
		{event.TrackParticipant, "beto"},
		{event.TrackEvaluator, "ciro"},
		{event.TrackAssistant, "dora"},
	} {
		enr, _ := env.Admit(t, owner, ev.ID, s.track, s.name)
		usr, err := env.Users.GetByID(context.Background(), enr.UserID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		a.subjects[s.name] = usr
	}
	env.Enroll(t, ev.ID, event.TrackParticipant, "pendiente")
	env.Mail.Reset()
	return a
}

func request(aud notification.Audience, ch notification.Channel) notification.Request {
	return notification.Request{
		Audience: aud,
		Message:  notification.Message{Title: "Cambio de sala", Content: "La sesión inaugural será en el aula 204", Channel: ch},
	}
}

func TestService_NotifyChannels(t *testing.T) {
	tests := []struct {
		name    string
		channel notification.Channel
		check   func(t *testing.T, a *audience)
	}{
		{
			name:    "email",
			channel: notification.ChannelEmail,
			check: func(t *testing.T, a *audience) {
				for _, usr := range a.subjects {
					if n := len(a.env.Mail.SentTo(usr.Email, "notification")); n != 1 {
						t.Errorf("%s received %d emails, want 1", usr.Username, n)
					}
				}
			},
		},
		{
			name:    "sms",
			channel: notification.ChannelSMS,
			check: func(t *testing.T, a *audience) {
				if len(a.env.SMS.Sent) != len(a.subjects) {
					t.Errorf("sent %d text messages, want %d", len(a.env.SMS.Sent), len(a.subjects))
				}
			},
		},
		{
			name:    "push",
			channel: notification.ChannelPush,
			check: func(t *testing.T, a *audience) {
				msgs := a.env.Push.Messages()
				if len(msgs) != len(a.subjects) {
					t.Fatalf("published %d messages, want %d", len(msgs), len(a.subjects))
				}
				var payload map[string]string
				if err := json.Unmarshal(msgs[0].Data, &payload); err != nil {
					t.Fatalf("push payload: %v", err)
				}
				if payload["title"] != "Cambio de sala" || payload["event"] != "Seminario X" {
					t.Errorf("push payload = %v", payload)
				}
			},
		},
		{
			name:    "in-app",
			channel: notification.ChannelInApp,
			check: func(t *testing.T, a *audience) {
				p := a.env.PrincipalOf(t, a.subjects["ana"].ID)
				items, err := a.env.Notifications.Inbox(context.Background(), p)
				if err != nil || len(items) != 1 || items[0].Read {
					t.Fatalf("Inbox() = %v, %v; want one unread item", items, err)
				}
				if err = a.env.Notifications.MarkRead(context.Background(), p, items[0].ID); err != nil {
					t.Fatalf("MarkRead() error = %v", err)
				}
				items, _ = a.env.Notifications.Inbox(context.Background(), p)
				if !items[0].Read {
					t.Errorf("MarkRead() left the item unread")
				}
				other := a.env.PrincipalOf(t, a.subjects["beto"].ID)
				if err = a.env.Notifications.MarkRead(context.Background(), other, items[0].ID); errors.Cause(err) != notification.ErrInboxNotFound {
					t.Errorf("MarkRead() by another user error = %v, want %v", err, notification.ErrInboxNotFound)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAudience(t)
			report, err := a.env.Notifications.Notify(context.Background(), a.owner, a.ev.ID, request(notification.AllConfirmed, tt.channel))
			if err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			if report.Targets != 4 || report.Succeeded != 4 || report.Failed != 0 || report.Coverage != 100 {
				t.Errorf("Notify() report = %+v", report)
			}
			tt.check(t, a)
		})
	}
}

func TestService_NotifyAudience(t *testing.T) {
	a := newAudience(t)
	ctx := context.Background()

	tests := []struct {
		aud  notification.Audience
		want int
	}{
		{notification.AllConfirmed, 4},
		{notification.ParticipantsConfirmed, 2},
		{notification.EvaluatorsConfirmed, 1},
		{notification.AssistantsConfirmed, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.aud), func(t *testing.T) {
			report, err := a.env.Notifications.Notify(ctx, a.owner, a.ev.ID, request(tt.aud, notification.ChannelInApp))
			if err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			if report.Targets != tt.want {
				t.Errorf("Notify() targets = %d, want %d", report.Targets, tt.want)
			}
		})
	}
}

func TestService_NotifyPartialFailure(t *testing.T) {
	a := newAudience(t)
	ctx := context.Background()

	failing := a.subjects["beto"].Email
	a.env.Mail.FailFor = map[string]bool{failing: true}

	req := request(notification.AllConfirmed, notification.ChannelEmail)
	req.DispatchID = "aviso-sala-204"
	report, err := a.env.Notifications.Notify(ctx, a.owner, a.ev.ID, req)
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if report.Succeeded != 3 || report.Failed != 1 || report.Coverage != 75 {
		t.Errorf("Notify() report = %+v, want 3 sent and 1 failed", report)
	}
	for _, out := range report.Outcomes {
		if (out.UserID == a.subjects["beto"].ID) != (out.Status == notification.StatusFailed) {
			t.Errorf("outcome of %s = %v", out.Name, out.Status)
		}
	}

	d, err := a.env.NotificationRepo.GetDispatch(ctx, "aviso-sala-204")
	if err != nil {
		t.Fatalf("GetDispatch() error = %v", err)
	}
	if d.Succeeded != 3 || d.Failed != 1 || d.TargetCount != 4 {
		t.Errorf("dispatch = %+v", d)
	}

	// retrying the dispatch only serves the recipient that failed
	a.env.Mail.FailFor = nil
	report, err = a.env.Notifications.Notify(ctx, a.owner, a.ev.ID, req)
	if err != nil {
		t.Fatalf("Notify() retry error = %v", err)
	}
	if report.DispatchID != "aviso-sala-204" || report.Succeeded != 4 || report.Coverage != 100 {
		t.Errorf("Notify() retry report = %+v", report)
	}
	var repeated int
	for _, out := range report.Outcomes {
		if out.Repeated {
			repeated++
		}
	}
	if repeated != 3 {
		t.Errorf("Notify() retry repeated %d deliveries, want 3", repeated)
	}
	for name, usr := range a.subjects {
		if n := len(a.env.Mail.SentTo(usr.Email, "notification")); n != 1 {
			t.Errorf("%s received %d copies, want 1", name, n)
		}
	}
	dispatches, _ := a.env.Notifications.Dispatches(ctx, a.owner, a.ev.ID)
	if len(dispatches) != 1 {
		t.Errorf("Dispatches() = %d, want 1", len(dispatches))
	}

	// a retry must ask for the same delivery
	otherChannel := req
	otherChannel.Channel = notification.ChannelInApp
	otherAudience := req
	otherAudience.Audience = notification.ParticipantsConfirmed
	otherContent := req
	otherContent.Content = "Cambio de sala: auditorio 3"
	for name, retry := range map[string]notification.Request{
		"channel": otherChannel, "audience": otherAudience, "content": otherContent,
	} {
		t.Run("retry with other "+name, func(t *testing.T) {
			_, err := a.env.Notifications.Notify(ctx, a.owner, a.ev.ID, retry)
			if errors.Cause(err) != notification.ErrDispatchMismatch {
				t.Errorf("Notify() error = %v, want %v", err, notification.ErrDispatchMismatch)
			}
		})
	}
	for name, usr := range a.subjects {
		if items, _ := a.env.Notifications.Inbox(ctx, a.env.PrincipalOf(t, usr.ID)); len(items) != 0 {
			t.Errorf("%s got %d in-app items from a mismatched retry", name, len(items))
		}
	}
	if d, _ = a.env.NotificationRepo.GetDispatch(ctx, "aviso-sala-204"); d.Channel != notification.ChannelEmail || d.Succeeded != 4 {
		t.Errorf("dispatch after mismatched retries = %+v", d)
	}
}

func TestService_NotifyDeduplicatesSubjects(t *testing.T) {
	a := newAudience(t)
	ctx := context.Background()

	// ana also assists the event
	ana := a.subjects["ana"]
	enr, err := a.env.Enrollments.Enroll(ctx, enrollment.EnrollRequest{
		EventID: a.ev.ID,
		Track:   event.TrackAssistant,
		Subject: user.SubjectData{
			NationalID: ana.NationalID, Username: ana.Username, Email: ana.Email, GivenName: ana.GivenName, FamilyName: ana.FamilyName,
		},
	})
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if _, err = a.env.Enrollments.Confirm(ctx, a.owner, enr.ID); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	a.env.Mail.Reset()

	report, err := a.env.Notifications.Notify(ctx, a.owner, a.ev.ID, request(notification.AllConfirmed, notification.ChannelEmail))
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if report.Targets != 4 {
		t.Errorf("Notify() targets = %d, want 4", report.Targets)
	}
	if n := len(a.env.Mail.SentTo(ana.Email, "notification")); n != 1 {
		t.Errorf("ana received %d copies, want 1", n)
	}
}

// cancellingSender cancels the dispatch once it has delivered n messages.
type cancellingSender struct {
	notification.Sender
	n      int
	cancel context.CancelFunc
}

func (s *cancellingSender) Deliver(ctx context.Context, ev event.Event, d notification.Dispatch, r enrollment.Recipient) (core.DeliveryReceipt, error) {
	rec, err := s.Sender.Deliver(ctx, ev, d, r)
	if s.n--; s.n == 0 {
		s.cancel()
	}
	return rec, err
}

func TestService_NotifyCancellation(t *testing.T) {
	a := newAudience(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.env.Notifications.Notify(ctx, a.owner, a.ev.ID, request(notification.AllConfirmed, notification.ChannelInApp)); !errors.Is(err, context.Canceled) {
		t.Errorf("Notify() with cancelled context error = %v, want %v", err, context.Canceled)
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	sender := &cancellingSender{Sender: notification.NewInAppSender(a.env.NotificationRepo), n: 2, cancel: cancel}
	svc := notification.NewService(a.env.NotificationRepo, a.env.EventRepo, a.env.Enrollments, []notification.Sender{sender}, a.env.Logger)

	report, err := svc.Notify(ctx, a.owner, a.ev.ID, request(notification.AllConfirmed, notification.ChannelInApp))
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if !report.Cancelled || report.Succeeded != 2 || report.Failed != 2 {
		t.Errorf("Notify() report = %+v, want 2 sent and 2 cancelled", report)
	}
	deliveries, _ := a.env.NotificationRepo.ListDeliveries(context.Background(), report.DispatchID)
	var cancelled int
	for _, dl := range deliveries {
		if dl.Status == notification.StatusCancelled {
			cancelled++
		}
	}
	if cancelled != 2 {
		t.Errorf("recorded %d cancelled deliveries, want 2", cancelled)
	}
}

func TestService_NotifyRequest(t *testing.T) {
	a := newAudience(t)
	ctx := context.Background()
	_, other := a.env.CreateUser(t, user.RoleEventAdmin, "other")

	blank := request(notification.AllConfirmed, notification.ChannelEmail)
	blank.Title = "   "
	badAudience := request("EVERYONE", notification.ChannelEmail)
	badChannel := request(notification.AllConfirmed, "Fax")

	tests := []struct {
		name     string
		p        user.Principal
		req      notification.Request
		wantKind core.Kind
	}{
		{"blank title", a.owner, blank, core.KindFieldRequired},
		{"unknown audience", a.owner, badAudience, core.KindFieldInvalid},
		{"unknown channel", a.owner, badChannel, core.KindFieldInvalid},
		{"other admin", other, request(notification.AllConfirmed, notification.ChannelEmail), core.KindNotOwner},
		{"anonymous", user.Principal{}, request(notification.AllConfirmed, notification.ChannelEmail), core.KindNotAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.env.Notifications.Notify(ctx, tt.p, a.ev.ID, tt.req)
			if kind := core.KindOf(err); kind != tt.wantKind {
				t.Errorf("Notify() error = %v, want kind %v", err, tt.wantKind)
			}
		})
	}
	if len(a.env.Mail.Sent()) != 0 {
		t.Errorf("refused requests sent %d messages", len(a.env.Mail.Sent()))
	}
}

package invitation_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/tests"
)

func newcomer(code string) invitation.Redemption {
	return invitation.Redemption{
		Code: code,
		NewUser: user.NewUser{
			Username:        "nuevoadmin",
			Email:           "nuevo.admin@example.com",
			NationalID:      "10203040",
			Role:            user.RoleParticipant, // overridden by the code's role
			GivenName:       "Nuevo",
			FamilyName:      "Admin",
			Password:        testutil.Password,
			PasswordConfirm: testutil.Password,
		},
	}
}

func TestService_IssueAndRedeem(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, super := env.CreateUser(t, user.RoleSuperAdmin, "root")
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")

	if _, err := env.Invitations.Issue(ctx, owner, time.Hour); !core.IsKind(err, core.KindForbidden) {
		t.Errorf("Issue() by event admin error = %v, want kind %v", err, core.KindForbidden)
	}

	c, err := env.Invitations.Issue(ctx, super, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if c.State != invitation.StateActive || c.TargetRole != user.RoleEventAdmin || !c.ExpiresAt.After(core.Now()) {
		t.Errorf("Issue() = %+v", c)
	}

	usr, err := env.Invitations.Redeem(ctx, newcomer(c.Code))
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if usr.Role != user.RoleEventAdmin {
		t.Errorf("Redeem() role = %v, want %v", usr.Role, user.RoleEventAdmin)
	}
	got, _ := env.InvitationRepo.GetCode(ctx, c.Code)
	if got.State != invitation.StateConsumed || got.ConsumedBy != usr.ID {
		t.Errorf("code after Redeem() = %v consumed by %q", got.State, got.ConsumedBy)
	}

	second := newcomer(c.Code)
	second.Username, second.Email, second.NationalID = "otroadmin", "otro@example.com", "50607080"
	if _, err = env.Invitations.Redeem(ctx, second); errors.Cause(err) != invitation.ErrCodeConsumed {
		t.Errorf("Redeem() again error = %v, want %v", err, invitation.ErrCodeConsumed)
	}
	if _, err = env.Invitations.Dispatch(ctx, super, c.Code, "alguien@example.com"); errors.Cause(err) != invitation.ErrCodeConsumed {
		t.Errorf("Dispatch() consumed code error = %v, want %v", err, invitation.ErrCodeConsumed)
	}
}

func TestService_Redeem(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, super := env.CreateUser(t, user.RoleSuperAdmin, "root")

	expired, err := env.Invitations.Issue(ctx, super, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	expired.ExpiresAt = core.Now().Add(-time.Minute)
	if _, err = env.InvitationRepo.UpdateCode(ctx, expired); err != nil {
		t.Fatalf("UpdateCode() error = %v", err)
	}

	active, err := env.Invitations.Issue(ctx, super, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	badPassword := newcomer(active.Code)
	badPassword.PasswordConfirm = "otra"

	tests := []struct {
		name     string
		r        invitation.Redemption
		wantKind core.Kind
	}{
		{"unknown", newcomer("no-existe"), core.KindCodeUnknown},
		{"blank", newcomer("  "), core.KindCodeUnknown},
		{"expired", newcomer(expired.Code), core.KindCodeExpired},
		{"expired again", newcomer(expired.Code), core.KindCodeExpired},
		{"invalid newcomer", badPassword, core.KindFieldInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Invitations.Redeem(ctx, tt.r)
			if kind := core.KindOf(err); kind != tt.wantKind {
				t.Errorf("Redeem() error = %v, want kind %v", err, tt.wantKind)
			}
		})
	}

	got, _ := env.InvitationRepo.GetCode(ctx, expired.Code)
	if got.State != invitation.StateExpired {
		t.Errorf("expired code state = %v, want %v", got.State, invitation.StateExpired)
	}
	// a failed registration leaves the code usable
	if got, _ = env.InvitationRepo.GetCode(ctx, active.Code); got.State != invitation.StateActive {
		t.Errorf("code state after failed redemption = %v, want %v", got.State, invitation.StateActive)
	}
}

func TestService_Dispatch(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, super := env.CreateUser(t, user.RoleSuperAdmin, "root")

	c, err := env.Invitations.Issue(ctx, super, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err = env.Invitations.Dispatch(ctx, super, c.Code, "no es un correo"); !core.IsKind(err, core.KindFieldInvalid) {
		t.Errorf("Dispatch() invalid email error = %v, want kind %v", err, core.KindFieldInvalid)
	}
	if got, _ := env.InvitationRepo.GetCode(ctx, c.Code); len(got.DispatchLog) != 0 {
		t.Errorf("invalid Dispatch() logged %d entries", len(got.DispatchLog))
	}

	for _, addr := range []string{"Maria.Lopez@Example.com", "jp@example.com"} {
		if _, err = env.Invitations.Dispatch(ctx, super, c.Code, addr); err != nil {
			t.Fatalf("Dispatch(%s) error = %v", addr, err)
		}
	}
	got, _ := env.InvitationRepo.GetCode(ctx, c.Code)
	if got.State != invitation.StateActive {
		t.Errorf("Dispatch() changed the state to %v", got.State)
	}
	if len(got.DispatchLog) != 2 || got.DispatchLog[0].RecipientEmail != "m***@example.com" {
		t.Errorf("dispatch log = %+v", got.DispatchLog)
	}
	msgs := env.Mail.SentTo("maria.lopez@example.com", "invitation")
	if len(msgs) != 1 || !strings.Contains(msgs[0].TextContent, c.Code) {
		t.Errorf("Dispatch() did not mail the code")
	}

	if _, err = env.Invitations.Dispatch(ctx, super, "no-existe", "jp@example.com"); errors.Cause(err) != invitation.ErrCodeUnknown {
		t.Errorf("Dispatch() unknown code error = %v, want %v", err, invitation.ErrCodeUnknown)
	}

	env.Mail.FailFor = map[string]bool{"caido@example.com": true}
	if _, err = env.Invitations.Dispatch(ctx, super, c.Code, "caido@example.com"); !core.IsKind(err, core.KindUnavailable) {
		t.Errorf("Dispatch() failing mailbox error = %v, want kind %v", err, core.KindUnavailable)
	}
	if got, _ = env.InvitationRepo.GetCode(ctx, c.Code); len(got.DispatchLog) != 2 {
		t.Errorf("failed Dispatch() was logged")
	}

	codes, err := env.Invitations.List(ctx, super)
	if err != nil || len(codes) != 1 {
		t.Errorf("List() = %d codes, %v", len(codes), err)
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"maria@example.com", "m***@example.com"},
		{"a@b.co", "a***@b.co"},
		{"@example.com", "***"},
		{"sin-arroba", "***"},
	}
	for _, tt := range tests {
		if got := invitation.Redact(tt.in); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// staleRepository answers reads with the code as it was when the snapshot was taken,
// the view a concurrent transaction has before the first redemption commits.
type staleRepository struct {
	invitation.Repository
	snapshot    invitation.Code
	staleLocked bool
}

func (repo *staleRepository) GetCode(_ context.Context, _ string) (invitation.Code, error) {
	return repo.snapshot, nil
}

func (repo *staleRepository) LockCode(ctx context.Context, code string) (invitation.Code, error) {
	if repo.staleLocked {
		return repo.snapshot, nil
	}
	return repo.Repository.LockCode(ctx, code)
}

func TestService_Redeem_concurrent(t *testing.T) {
	tests := []struct {
		name        string
		staleLocked bool
	}{
		{name: "stale plain read", staleLocked: false},
		{name: "stale locked read", staleLocked: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			ctx := context.Background()
			_, super := env.CreateUser(t, user.RoleSuperAdmin, "root")

			c, err := env.Invitations.Issue(ctx, super, time.Hour)
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}
			repo := &staleRepository{Repository: env.InvitationRepo, snapshot: c, staleLocked: tt.staleLocked}
			svc := invitation.NewService(env.DB, repo, env.Users, env.Mail, env.Audit)

			first, err := svc.Redeem(ctx, newcomer(c.Code))
			if err != nil {
				t.Fatalf("Redeem() error = %v", err)
			}

			second := newcomer(c.Code)
			second.Username, second.Email, second.NationalID = "otroadmin", "otro@example.com", "50607080"
			if _, err = svc.Redeem(ctx, second); errors.Cause(err) != invitation.ErrCodeConsumed {
				t.Errorf("Redeem() again error = %v, want %v", err, invitation.ErrCodeConsumed)
			}
			if _, err = env.Users.GetByUsernameOrEmail(ctx, second.Username); errors.Cause(err) != user.ErrNotFound {
				t.Errorf("second redemption registered an account: err = %v", err)
			}
			if got, _ := env.InvitationRepo.GetCode(ctx, c.Code); got.ConsumedBy != first.ID {
				t.Errorf("code consumed by %q, want %q", got.ConsumedBy, first.ID)
			}
		})
	}
}

// Package invitation manages the codes through which new event administrators join the platform.
// Issuing, mailing and redeeming a code are separate operations; only redemption changes its state.
package invitation

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/user"
)

type State string

const (
	StateActive   State = "Active"
	StateConsumed State = "Consumed"
	StateExpired  State = "Expired"
)

var (
	// errors
	ErrCodeUnknown  = core.NewFieldError(core.KindCodeUnknown, "code", "unknown invitation code")
	ErrCodeExpired  = core.NewFieldError(core.KindCodeExpired, "code", "the invitation code has expired")
	ErrCodeConsumed = core.NewFieldError(core.KindStateFinal, "code", "the invitation code has already been used")

	codeLen = 24
)

// DispatchEntry records one mailing of a code. The recipient address is stored redacted.
type DispatchEntry struct {
	RecipientEmail string    `json:"recipient_email"`
	SentAt         time.Time `json:"sent_at"`
	IssuerID       string    `json:"issuer_id"`
}

type Code struct {
	Code        string          `json:"code"`
	TargetRole  user.Role       `json:"target_role"`
	State       State           `json:"state"`
	ExpiresAt   time.Time       `json:"expires_at"`
	IssuedBy    string          `json:"issued_by"`
	CreatedAt   time.Time       `json:"created_at"`
	ConsumedBy  string          `json:"consumed_by,omitempty"`
	ConsumedAt  time.Time       `json:"consumed_at,omitempty"`
	DispatchLog []DispatchEntry `json:"dispatch_log"`
}

// Expired reports whether the code is past its expiry at now.
func (c Code) Expired(now time.Time) bool {
	return c.State == StateExpired || !now.Before(c.ExpiresAt)
}

// Redemption is what a newcomer provides to redeem a code.
type Redemption struct {
	Code string `json:"code" validate:"required"`
	user.NewUser
}

type (
	Repository interface {
		CreateCode(ctx context.Context, c Code) (Code, error)
		GetCode(ctx context.Context, code string) (Code, error)
		// LockCode reads a code and holds it until the surrounding transaction ends.
		LockCode(ctx context.Context, code string) (Code, error)
		UpdateCode(ctx context.Context, c Code) (Code, error)
		// ConsumeCode moves an Active code to Consumed; ErrCodeConsumed when it is no longer Active.
		ConsumeCode(ctx context.Context, code, userID string, at time.Time) (Code, error)
		AppendDispatch(ctx context.Context, code string, e DispatchEntry) error
		ListCodes(ctx context.Context) ([]Code, error)
	}

	Service struct {
		tx      core.Transactor
		repo    Repository
		users   *user.Service
		mailSvc core.EmailService
		audit   *audit.Log
	}
)

func NewService(tx core.Transactor, repo Repository, users *user.Service, mailSvc core.EmailService, auditLog *audit.Log) *Service {
	return &Service{tx: tx, repo: repo, users: users, mailSvc: mailSvc, audit: auditLog}
}

// Redact masks the local part of an email address, keeping its first character.
func Redact(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// Issue creates a new Active code valid for ttl; a non-positive ttl uses the configured default.
func (svc *Service) Issue(ctx context.Context, p user.Principal, ttl time.Duration) (Code, error) {
	if err := access.Can(p, access.PlatformAdmin, access.Target{}); err != nil {
		return Code{}, err
	}
	if ttl <= 0 {
		ttl = core.Conf.InvitationTTL
	}
	token, err := core.RandomString(codeLen)
	if err != nil {
		return Code{}, errors.Wrap(err, "generating code")
	}
	now := core.Now()
	c, err := svc.repo.CreateCode(ctx, Code{
		Code:        token,
		TargetRole:  user.RoleEventAdmin,
		State:       StateActive,
		ExpiresAt:   now.Add(ttl),
		IssuedBy:    p.UserID,
		CreatedAt:   now,
		DispatchLog: []DispatchEntry{},
	})
	if err != nil {
		return Code{}, errors.Wrap(err, "creating code")
	}
	err = svc.audit.Record(ctx, audit.Entry{
		ActorID: p.UserID, Action: "invitation.issue", TargetType: "invitation", TargetID: c.Code[:6], To: string(c.State),
	})
	return c, err
}

// Dispatch mails a code to email and appends a redacted entry to its dispatch log.
// The code's state is left unchanged.
func (svc *Service) Dispatch(ctx context.Context, p user.Principal, code, email string) (Code, error) {
	if err := access.Can(p, access.PlatformAdmin, access.Target{}); err != nil {
		return Code{}, err
	}
	email = core.CleanString(email, true /* lower */)
	if err := core.CheckVar("email", email, "required,email"); err != nil {
		return Code{}, err
	}
	c, err := svc.get(ctx, code)
	if err != nil {
		return Code{}, err
	}
	switch {
	case c.State == StateConsumed:
		return Code{}, ErrCodeConsumed
	case c.Expired(core.Now()):
		return Code{}, ErrCodeExpired
	}

	_, err = svc.mailSvc.Send(ctx, &core.EmailMessage{
		To:           []mail.Address{{Address: email}},
		Subject:      "Invitación para administrar eventos",
		TemplateName: "invitation",
		TemplateData: map[string]interface{}{"Code": c.Code, "ExpiresAt": c.ExpiresAt.Format("2006-01-02 15:04 MST")},
	})
	if err != nil {
		return Code{}, core.Unavailable(errors.Wrap(err, "sending invitation"))
	}

	entry := DispatchEntry{RecipientEmail: Redact(email), SentAt: core.Now(), IssuerID: p.UserID}
	if err = svc.repo.AppendDispatch(ctx, c.Code, entry); err != nil {
		return Code{}, errors.Wrap(err, "appending dispatch log")
	}
	c.DispatchLog = append(c.DispatchLog, entry)
	return c, nil
}

func (svc *Service) get(ctx context.Context, code string) (Code, error) {
	return svc.read(ctx, code, svc.repo.GetCode)
}

func (svc *Service) lock(ctx context.Context, code string) (Code, error) {
	return svc.read(ctx, code, svc.repo.LockCode)
}

func (svc *Service) read(ctx context.Context, code string, fetch func(context.Context, string) (Code, error)) (Code, error) {
	code = core.CleanString(code)
	if code == "" {
		return Code{}, ErrCodeUnknown
	}
	c, err := fetch(ctx, code)
	if errors.Cause(err) == ErrCodeUnknown {
		return Code{}, ErrCodeUnknown
	}
	return c, err
}

// Redeem consumes an Active code and creates the newcomer's ADMIN_EVENTO account.
// An expired code is marked Expired and refused.
func (svc *Service) Redeem(ctx context.Context, r Redemption) (user.User, error) {
	c, err := svc.get(ctx, r.Code)
	if err != nil {
		return user.User{}, err
	}
	if c.State == StateActive && c.Expired(core.Now()) {
		c.State = StateExpired
		if _, err = svc.repo.UpdateCode(ctx, c); err != nil {
			return user.User{}, errors.Wrap(err, "marking code expired")
		}
		return user.User{}, ErrCodeExpired
	}

	var usr user.User
	err = svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := svc.lock(ctx, r.Code)
		if err != nil {
			return err
		}
		switch c.State {
		case StateConsumed:
			return ErrCodeConsumed
		case StateExpired:
			return ErrCodeExpired
		}

		nu := r.NewUser
		nu.Role = c.TargetRole
		if usr, err = svc.users.Register(ctx, nu); err != nil {
			return err
		}
		if c, err = svc.repo.ConsumeCode(ctx, c.Code, usr.ID, core.Now()); err != nil {
			if errors.Cause(err) == ErrCodeConsumed {
				return ErrCodeConsumed
			}
			return errors.Wrap(err, "consuming code")
		}
		return svc.audit.Record(ctx, audit.Entry{
			ActorID: usr.ID, Action: "invitation.redeem", TargetType: "invitation", TargetID: c.Code[:6],
			From: string(StateActive), To: string(StateConsumed),
		})
	})
	return usr, err
}

func (svc *Service) List(ctx context.Context, p user.Principal) ([]Code, error) {
	if err := access.Can(p, access.PlatformAdmin, access.Target{}); err != nil {
		return nil, err
	}
	return svc.repo.ListCodes(ctx)
}

// Package testutil wires the domain services on top of the in-memory store for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/certificate"
	"github.com/eventsoft/eventsoft/core/criterion"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/instrument"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/notification"
	"github.com/eventsoft/eventsoft/core/site"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/services/email"
	"github.com/eventsoft/eventsoft/services/filestore"
	"github.com/eventsoft/eventsoft/services/push"
	"github.com/eventsoft/eventsoft/services/render"
	"github.com/eventsoft/eventsoft/storage/database/dummy"
)

// Password satisfies the password policy for any fixture user.
const Password = "Zq8#Lm2$Wv"

var seq int64

func init() {
	core.Conf.TestMode = true
}

// Env holds a fully wired set of services sharing one in-memory store.
type Env struct {
	DB     *dummydb.DB
	Mail   *emailsvc.ConsoleServiceMock
	SMS    *SMSMock
	Push   *pushsvc.MemoryPublisher
	Files  *filestore.MemoryStore
	Logger *LoggerMock

	UserRepo         user.Repository
	EventRepo        event.Repository
	EnrollmentRepo   enrollment.Repository
	CriterionRepo    criterion.Repository
	NotificationRepo notification.Repository
	CertificateRepo  certificate.Repository
	InstrumentRepo   instrument.Repository
	InvitationRepo   invitation.Repository
	AuditRepo        audit.Repository

	Audit         *audit.Log
	Users         *user.Service
	Roster        *enrollment.Roster
	Events        *event.Service
	Enrollments   *enrollment.Service
	Criteria      *criterion.Service
	Notifications *notification.Service
	Certificates  *certificate.Service
	Instruments   *instrument.Service
	Invitations   *invitation.Service
	Site          *site.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}

	env := &Env{
		DB:               db,
		Mail:             emailsvc.NewConsoleServiceMock(),
		SMS:              &SMSMock{},
		Push:             pushsvc.NewMemoryPublisher(),
		Files:            filestore.NewMemoryStore("http://media.test"),
		Logger:           &LoggerMock{},
		UserRepo:         dummydb.NewUserRepository(db),
		EventRepo:        dummydb.NewEventRepository(db),
		EnrollmentRepo:   dummydb.NewEnrollmentRepository(db),
		CriterionRepo:    dummydb.NewCriterionRepository(db),
		NotificationRepo: dummydb.NewNotificationRepository(db),
		CertificateRepo:  dummydb.NewCertificateRepository(db),
		InstrumentRepo:   dummydb.NewInstrumentRepository(db),
		InvitationRepo:   dummydb.NewInvitationRepository(db),
		AuditRepo:        dummydb.NewAuditRepository(db),
	}
	renderer := rendersvc.New()

	env.Audit = audit.NewLog(env.AuditRepo)
	env.Users = user.NewService(env.UserRepo, env.Mail)
	env.Roster = enrollment.NewRoster(env.EnrollmentRepo)
	env.Events = event.NewService(db, env.EventRepo, env.Roster, env.Users, env.Files, env.Mail, env.Audit, env.Logger)
	env.Enrollments = enrollment.NewService(
		db, env.EnrollmentRepo, env.EventRepo, env.Users, env.Files, renderer, env.Mail, env.Audit, env.Logger,
	)
	env.Criteria = criterion.NewService(db, env.CriterionRepo, env.EventRepo, env.Roster, env.EnrollmentRepo, env.Users, env.Audit)
	env.Notifications = notification.NewService(
		env.NotificationRepo, env.EventRepo, env.Enrollments,
		[]notification.Sender{
			notification.NewEmailSender(env.Mail),
			notification.NewSMSSender(env.SMS),
			notification.NewPushSender(env.Push),
			notification.NewInAppSender(env.NotificationRepo),
		},
		env.Logger,
	)
	env.Certificates = certificate.NewService(
		env.CertificateRepo, env.EventRepo, env.Enrollments, renderer, env.Files, env.Mail, env.Audit, env.Logger,
	)
	env.Instruments = instrument.NewService(db, env.InstrumentRepo, env.EventRepo, env.Roster, env.Criteria, renderer, env.Files, env.Audit, env.Logger)
	env.Invitations = invitation.NewService(db, env.InvitationRepo, env.Users, env.Mail, env.Audit)
	env.Site = site.NewService(db, dummydb.NewSiteRepository(db), env.Audit)
	return env
}

// CreateUser stores a user of the given role, with its role profile, and returns it with its principal.
func (env *Env) CreateUser(t *testing.T, role user.Role, name string) (user.User, user.Principal) {
	t.Helper()
	ctx := context.Background()
	n := atomic.AddInt64(&seq, 1)
	now := core.Now()
	usr := user.User{
		Username:     fmt.Sprintf("%s%d", name, n),
		Email:        fmt.Sprintf("%s%d@example.com", name, n),
		NationalID:   fmt.Sprintf("%08d", 10000000+n),
		Role:         role,
		GivenName:    name,
		FamilyName:   fmt.Sprintf("Test%d", n),
		Phone:        fmt.Sprintf("300%07d", n),
		IsSuperAdmin: role == user.RoleSuperAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	usr, err := env.UserRepo.CreateUser(ctx, usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	if kind, ok := user.ProfileKindOf(role); ok {
		if _, err = env.Users.EnsureProfile(ctx, usr, kind, ""); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	p, err := env.Users.PrincipalOf(ctx, usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr, p
}

// Subject returns enrollment data for a new person; its natural key is unique per call.
func Subject(name string) user.SubjectData {
	n := atomic.AddInt64(&seq, 1)
	return user.SubjectData{
		NationalID: fmt.Sprintf("%08d", 20000000+n),
		Username:   fmt.Sprintf("%s%d", name, n),
		Email:      fmt.Sprintf("%s%d@example.com", name, n),
		GivenName:  name,
		FamilyName: fmt.Sprintf("Subject%d", n),
		Phone:      fmt.Sprintf("310%07d", n),
	}
}

// NewEvent returns a valid, open event running from tomorrow for three days.
func NewEvent(capacity int) event.NewEvent {
	start := core.Today().AddDate(0, 0, 1)
	return event.NewEvent{
		Name:                   "Congreso de Ingeniería",
		Description:            "Ponencias y talleres",
		City:                   "Manizales",
		Venue:                  "Auditorio central",
		StartDate:              start,
		EndDate:                start.AddDate(0, 0, 2),
		Capacity:               capacity,
		EnrollOpenParticipants: true,
		EnrollOpenEvaluators:   true,
		EnrollOpenAssistants:   true,
	}
}

// CreateEvent creates an event owned by owner; mutate may adjust the request first.
func (env *Env) CreateEvent(t *testing.T, owner user.Principal, capacity int, mutate ...func(*event.NewEvent)) event.Event {
	t.Helper()
	ne := NewEvent(capacity)
	for _, m := range mutate {
		m(&ne)
	}
	e, err := env.Events.Create(context.Background(), owner, ne)
	if err != nil {
		t.Fatalf("createEvent() failed: %v", err)
	}
	return e
}

// SetEventDates moves an existing event in time, bypassing validation.
func (env *Env) SetEventDates(t *testing.T, id string, start, end time.Time) event.Event {
	t.Helper()
	ctx := context.Background()
	e, err := env.EventRepo.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("setEventDates() failed: %v", err)
	}
	e.StartDate, e.EndDate = core.DateOf(start), core.DateOf(end)
	if e, err = env.EventRepo.UpdateEvent(ctx, e); err != nil {
		t.Fatalf("setEventDates() failed: %v", err)
	}
	return e
}

// SetEventState forces the state of an existing event.
func (env *Env) SetEventState(t *testing.T, id string, st event.State) event.Event {
	t.Helper()
	ctx := context.Background()
	e, err := env.EventRepo.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("setEventState() failed: %v", err)
	}
	e.State = st
	if e, err = env.EventRepo.UpdateEvent(ctx, e); err != nil {
		t.Fatalf("setEventState() failed: %v", err)
	}
	return e
}

// Enroll enrolls a new subject in the given track and returns the enrollment with the subject's principal.
func (env *Env) Enroll(t *testing.T, eventID string, track event.Track, name string, proof ...*core.Upload) (enrollment.Enrollment, user.Principal) {
	t.Helper()
	req := enrollment.EnrollRequest{EventID: eventID, Track: track, Subject: Subject(name)}
	if len(proof) > 0 {
		req.PaymentProof = proof[0]
	}
	enr, err := env.Enrollments.Enroll(context.Background(), req)
	if err != nil {
		t.Fatalf("enroll() failed: %v", err)
	}
	return enr, env.PrincipalOf(t, enr.UserID)
}

// Admit enrolls a new subject and drives the enrollment to the confirmed state of its track.
func (env *Env) Admit(t *testing.T, reviewer user.Principal, eventID string, track event.Track, name string) (enrollment.Enrollment, user.Principal) {
	t.Helper()
	ctx := context.Background()
	enr, p := env.Enroll(t, eventID, track, name, Proof())
	var err error
	switch enr.State {
	case enrollment.StatePreinscrito, enrollment.StatePendiente:
		if enr, err = env.Enrollments.Approve(ctx, reviewer, enr.ID); err != nil {
			t.Fatalf("admit() failed: %v", err)
		}
	case enrollment.StateAprobado:
		if track == event.TrackAssistant {
			if enr, err = env.Enrollments.Confirm(ctx, reviewer, enr.ID); err != nil {
				t.Fatalf("admit() failed: %v", err)
			}
		}
	}
	return enr, p
}

func (env *Env) PrincipalOf(t *testing.T, userID string) user.Principal {
	t.Helper()
	ctx := context.Background()
	usr, err := env.Users.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("principalOf() failed: %v", err)
	}
	p, err := env.Users.PrincipalOf(ctx, usr)
	if err != nil {
		t.Fatalf("principalOf() failed: %v", err)
	}
	return p
}

// Proof is a minimal payment proof upload.
func Proof() *core.Upload {
	return &core.Upload{Filename: "comprobante.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4 proof")}
}

// SMSMock records text messages and fails for the numbers in FailFor.
type SMSMock struct {
	mu      sync.Mutex
	Sent    []string
	FailFor map[string]bool
}

var _ core.SMSService = (*SMSMock)(nil)

func (m *SMSMock) SendSMS(ctx context.Context, to, _ string) (core.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return core.DeliveryReceipt{}, err
	}
	if m.FailFor[to] {
		return core.DeliveryReceipt{}, fmt.Errorf("carrier rejected %s", to)
	}
	m.mu.Lock()
	m.Sent = append(m.Sent, to)
	m.mu.Unlock()
	return core.DeliveryReceipt{ID: core.NewID(), AcceptedAt: core.Now()}, nil
}

// LoggerMock discards logs, counting warnings and errors.
type LoggerMock struct {
	errors   int64
	warnings int64
}

var _ core.Logger = (*LoggerMock)(nil)

func (l *LoggerMock) Debug(string, ...interface{}) {}
func (l *LoggerMock) Info(string, ...interface{})  {}
func (l *LoggerMock) Warn(string, ...interface{})  { atomic.AddInt64(&l.warnings, 1) }
func (l *LoggerMock) Error(string, ...interface{}) { atomic.AddInt64(&l.errors, 1) }
func (l *LoggerMock) Fatal(string, ...interface{}) { atomic.AddInt64(&l.errors, 1) }

func (l *LoggerMock) Errors() int   { return int(atomic.LoadInt64(&l.errors)) }
func (l *LoggerMock) Warnings() int { return int(atomic.LoadInt64(&l.warnings)) }

package enrollment

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewError(core.KindNotFound, "enrollment not found")
	ErrEventClosed         = core.NewError(core.KindEventClosed, "the event is not open")
	ErrFeatureDisabled     = core.NewError(core.KindFeatureDisabled, "enrollment is closed for this track")
	ErrCapacityExhausted   = core.NewError(core.KindCapacityExhausted, "the event is full")
	ErrPaymentProofMissing = core.NewFieldError(core.KindPaymentProofMissing, "payment_proof", "a payment proof is required for paid events")
	ErrAlreadyEnrolled     = core.NewError(core.KindAlreadyEnrolled, "already enrolled in this event")
	ErrReasonRequired      = core.NewFieldError(core.KindReasonRequired, "reason", "a rejection reason is required")
	ErrStateFrozen         = core.NewError(core.KindStateFrozen, "the enrollment can no longer be edited")
	ErrKeyFrozen           = core.NewFieldError(core.KindStateFrozen, "access_key", "the access key cannot change once approved")

	AccessKeyLen = 10
)

type (
	Repository interface {
		// CreateEnrollment fails with ErrAlreadyEnrolled when (event, subject, track) is taken.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)
		FindEnrollment(ctx context.Context, eventID string, track event.Track, subjectID string) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		ListEnrollments(ctx context.Context, filter QueryFilter) ([]Enrollment, error)
		CountEnrollments(ctx context.Context, eventID string) (Counts, error)
	}

	// QRRenderer encodes a payload as a PNG QR code.
	QRRenderer interface {
		RenderQR(payload string) ([]byte, error)
	}

	Service struct {
		tx      core.Transactor
		repo    Repository
		events  event.Repository
		users   *user.Service
		files   core.FileStore
		qr      QRRenderer
		mailSvc core.EmailService
		audit   *audit.Log
		logger  core.Logger
	}
)

func NewService(
	tx core.Transactor,
	repo Repository,
	events event.Repository,
	users *user.Service,
	files core.FileStore,
	qr QRRenderer,
	mailSvc core.EmailService,
	auditLog *audit.Log,
	logger core.Logger,
) *Service {
	return &Service{
		tx:      tx,
		repo:    repo,
		events:  events,
		users:   users,
		files:   files,
		qr:      qr,
		mailSvc: mailSvc,
		audit:   auditLog,
		logger:  logger,
	}
}

func profileKind(t event.Track) user.ProfileKind {
	switch t {
	case event.TrackEvaluator:
		return user.ProfileEvaluator
	case event.TrackAssistant:
		return user.ProfileAssistant
	default:
		return user.ProfileParticipant
	}
}

func occupying(byState map[State]int) int {
	var n int
	for st, c := range byState {
		if st.Occupying() {
			n += c
		}
	}
	return n
}

func admitted(byState map[State]int) int {
	return byState[StateAprobado] + byState[StateConfirmado]
}

// Enroll registers a subject in one of the event's tracks.
// The subject's User is reused when its natural key matches, created otherwise.
func (svc *Service) Enroll(ctx context.Context, req EnrollRequest) (Enrollment, error) {
	track, err := event.ParseTrack(string(req.Track))
	if err != nil {
		return Enrollment{}, err
	}
	if err = req.Subject.Validate(); err != nil {
		return Enrollment{}, err
	}

	var (
		enr Enrollment
		msg *core.EmailMessage
	)
	staged := core.StageFiles(svc.files, svc.logger)
	err = svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		ev, err := svc.events.LockEvent(ctx, req.EventID)
		if err != nil {
			return err
		}
		if !ev.AcceptsEnrollments(core.Today()) {
			return ErrEventClosed
		}
		if !ev.EnrollOpen(track) {
			return ErrFeatureDisabled
		}
		if track == event.TrackAssistant && ev.HasCost && req.PaymentProof.Empty() {
			return ErrPaymentProofMissing
		}

		res, err := svc.users.Resolve(ctx, req.Subject, profileKind(track))
		if err != nil {
			return err
		}
		if _, err = svc.repo.FindEnrollment(ctx, ev.ID, track, res.Profile.ID); err == nil {
			return ErrAlreadyEnrolled
		} else if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "finding enrollment")
		}

		counts, err := svc.repo.CountEnrollments(ctx, ev.ID)
		if err != nil {
			return errors.Wrap(err, "counting enrollments")
		}
		if occupying(counts[track]) >= ev.Capacity {
			return ErrCapacityExhausted
		}

		key, err := core.RandomString(AccessKeyLen)
		if err != nil {
			return errors.Wrap(err, "generating access key")
		}
		now := core.Now()
		enr = Enrollment{
			ID:        core.NewID(),
			EventID:   ev.ID,
			Track:     track,
			SubjectID: res.Profile.ID,
			UserID:    res.User.ID,
			State:     InitialState(track, ev.HasCost),
			AccessKey: key,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if !req.PaymentProof.Empty() {
			if enr.PaymentProof, err = svc.store(ctx, staged, enr, "payment", req.PaymentProof); err != nil {
				return err
			}
		}
		if !req.Attachment.Empty() {
			if enr.Attachment, err = svc.store(ctx, staged, enr, "attachment", req.Attachment); err != nil {
				return err
			}
		}

		var qr []byte
		if enr.State == StateAprobado {
			if qr, err = svc.mintQR(ctx, staged, &enr); err != nil {
				return err
			}
		}

		if enr, err = svc.repo.CreateEnrollment(ctx, enr); err != nil {
			return errors.Wrap(err, "creating enrollment")
		}
		err = svc.audit.Record(ctx, audit.Entry{
			ActorID: res.User.ID, Action: "enrollment.create", TargetType: "enrollment", TargetID: enr.ID, To: string(enr.State),
		})
		if err != nil {
			return err
		}
		msg = issuedMessage(ev, res, enr, qr)
		return nil
	})
	if err = staged.Settle(ctx, err); err != nil {
		return Enrollment{}, err
	}

	svc.mailSvc.SendMessages(msg)
	return enr, nil
}

func (svc *Service) store(ctx context.Context, staged *core.StagedFiles, enr Enrollment, field string, up *core.Upload) (string, error) {
	key := core.MediaKey(fmt.Sprintf("events/%s/enrollments/%s/%s", enr.EventID, enr.ID, field), up.Filename)
	if err := staged.Put(ctx, key, up.Content, up.ContentType); err != nil {
		return "", core.Unavailable(errors.Wrap(err, "storing "+field))
	}
	return key, nil
}

// mintQR renders the QR code of the enrollment's access key, storing it once.
func (svc *Service) mintQR(ctx context.Context, staged *core.StagedFiles, enr *Enrollment) ([]byte, error) {
	png, err := svc.qr.RenderQR(enr.AccessKey)
	if err != nil {
		return nil, errors.Wrap(err, "rendering QR")
	}
	if enr.QRImage != "" {
		return png, nil
	}
	key := core.MediaKey(fmt.Sprintf("events/%s/enrollments/%s/qr", enr.EventID, enr.ID), "qr.png")
	if err = staged.Put(ctx, key, png, "image/png"); err != nil {
		return nil, core.Unavailable(errors.Wrap(err, "storing QR"))
	}
	enr.QRImage = key
	return png, nil
}

// review loads an enrollment and its locked event, checking that p may review it.
func (svc *Service) review(ctx context.Context, p user.Principal, id string) (Enrollment, event.Event, error) {
	enr, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return Enrollment{}, event.Event{}, err
	}
	ev, err := svc.events.LockEvent(ctx, enr.EventID)
	if err != nil {
		return Enrollment{}, event.Event{}, err
	}
	// re-read under the event lock
	if enr, err = svc.repo.GetEnrollment(ctx, id); err != nil {
		return Enrollment{}, event.Event{}, err
	}
	if err = access.Can(p, access.ReviewEnrollment, enr.Target(ev)); err != nil {
		return Enrollment{}, event.Event{}, err
	}
	return enr, ev, nil
}

func (svc *Service) subject(ctx context.Context, enr Enrollment) (user.User, error) {
	usr, err := svc.users.GetByID(ctx, enr.UserID)
	return usr, errors.Wrap(err, "getting subject")
}

func (svc *Service) save(ctx context.Context, p user.Principal, enr Enrollment, from State, action string) (Enrollment, error) {
	enr.UpdatedAt = core.Now()
	enr, err := svc.repo.UpdateEnrollment(ctx, enr)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	err = svc.audit.Record(ctx, audit.Entry{
		ActorID: p.UserID, Action: action, TargetType: "enrollment", TargetID: enr.ID, From: string(from), To: string(enr.State),
	})
	return enr, err
}

// Approve admits an enrollment. Approvals are serialised per event and refused beyond capacity.
// The access key minted at enrollment is kept; the QR code is minted if missing.
func (svc *Service) Approve(ctx context.Context, p user.Principal, id string) (Enrollment, error) {
	var (
		enr Enrollment
		msg *core.EmailMessage
	)
	staged := core.StageFiles(svc.files, svc.logger)
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var (
			ev  event.Event
			err error
		)
		if enr, ev, err = svc.review(ctx, p, id); err != nil {
			return err
		}
		to, err := next(enr.Track, enr.State, opApprove)
		if err != nil {
			return err
		}
		counts, err := svc.repo.CountEnrollments(ctx, ev.ID)
		if err != nil {
			return errors.Wrap(err, "counting enrollments")
		}
		if admitted(counts[enr.Track])+1 > ev.Capacity {
			return ErrCapacityExhausted
		}

		from := enr.State
		enr.State = to
		enr.ReviewerID = p.UserID
		enr.RejectionReason = ""
		qr, err := svc.mintQR(ctx, staged, &enr)
		if err != nil {
			return err
		}
		if enr, err = svc.save(ctx, p, enr, from, "enrollment.approve"); err != nil {
			return err
		}
		usr, err := svc.subject(ctx, enr)
		if err != nil {
			return err
		}
		msg = approvedMessage(ev, usr, enr, qr)
		return nil
	})
	if err = staged.Settle(ctx, err); err != nil {
		return Enrollment{}, err
	}

	svc.mailSvc.SendMessages(msg)
	return enr, nil
}

// Reject refuses an enrollment for the given reason; the seat returns to the pool.
func (svc *Service) Reject(ctx context.Context, p user.Principal, id, reason string) (Enrollment, error) {
	reason = core.CleanString(reason)
	var (
		enr Enrollment
		msg *core.EmailMessage
	)
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var (
			ev  event.Event
			err error
		)
		if enr, ev, err = svc.review(ctx, p, id); err != nil {
			return err
		}
		if reason == "" {
			return ErrReasonRequired
		}
		to, err := next(enr.Track, enr.State, opReject)
		if err != nil {
			return err
		}

		from := enr.State
		enr.State = to
		enr.ReviewerID = p.UserID
		enr.RejectionReason = reason
		if enr, err = svc.save(ctx, p, enr, from, "enrollment.reject"); err != nil {
			return err
		}
		usr, err := svc.subject(ctx, enr)
		if err != nil {
			return err
		}
		msg = rejectedMessage(ev, usr, enr)
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}

	svc.mailSvc.SendMessages(msg)
	return enr, nil
}

// Confirm is the final admission step of approved participants and assistants.
func (svc *Service) Confirm(ctx context.Context, p user.Principal, id string) (Enrollment, error) {
	var (
		enr Enrollment
		msg *core.EmailMessage
	)
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var (
			ev  event.Event
			err error
		)
		if enr, ev, err = svc.review(ctx, p, id); err != nil {
			return err
		}
		to, err := next(enr.Track, enr.State, opConfirm)
		if err != nil {
			return err
		}
		from := enr.State
		enr.State = to
		enr.ReviewerID = p.UserID
		if enr, err = svc.save(ctx, p, enr, from, "enrollment.confirm"); err != nil {
			return err
		}
		usr, err := svc.subject(ctx, enr)
		if err != nil {
			return err
		}
		msg = confirmedMessage(ev, usr, enr)
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}

	svc.mailSvc.SendMessages(msg)
	return enr, nil
}

// Cancel withdraws an assistant enrollment, at the subject's or the organiser's request.
func (svc *Service) Cancel(ctx context.Context, p user.Principal, id string) (Enrollment, error) {
	var (
		enr Enrollment
		msg *core.EmailMessage
	)
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if enr, err = svc.repo.GetEnrollment(ctx, id); err != nil {
			return err
		}
		ev, err := svc.events.LockEvent(ctx, enr.EventID)
		if err != nil {
			return err
		}
		if err = access.Can(p, access.EditOwnEnrollment, enr.Target(ev)); err != nil {
			if rErr := access.Can(p, access.ReviewEnrollment, enr.Target(ev)); rErr != nil {
				return err
			}
		}
		to, err := next(enr.Track, enr.State, opCancel)
		if err != nil {
			return err
		}
		from := enr.State
		enr.State = to
		if enr, err = svc.save(ctx, p, enr, from, "enrollment.cancel"); err != nil {
			return err
		}
		usr, err := svc.subject(ctx, enr)
		if err != nil {
			return err
		}
		msg = cancelledMessage(ev, usr, enr)
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}

	svc.mailSvc.SendMessages(msg)
	return enr, nil
}

// EditOwn applies a subject's edit to their own enrollment.
// Edits are refused on terminal enrollments and past events; an edit changing nothing is a no-op.
func (svc *Service) EditOwn(ctx context.Context, p user.Principal, id string, se SelfEdit) (Enrollment, error) {
	if se.AccessKey != nil {
		key := core.CleanString(*se.AccessKey)
		se.AccessKey = &key
	}
	if err := core.Validate.Struct(se); err != nil {
		return Enrollment{}, err
	}

	var (
		enr Enrollment
		msg *core.EmailMessage
	)
	staged := core.StageFiles(svc.files, svc.logger)
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if enr, err = svc.repo.GetEnrollment(ctx, id); err != nil {
			return err
		}
		ev, err := svc.events.LockEvent(ctx, enr.EventID)
		if err != nil {
			return err
		}
		if err = access.Can(p, access.EditOwnEnrollment, enr.Target(ev)); err != nil {
			return err
		}
		if enr.State.Terminal() {
			return ErrStateFrozen
		}
		if ev.Ended(core.Today()) {
			return ErrEventClosed
		}

		var changed bool
		if se.AccessKey != nil && *se.AccessKey != enr.AccessKey {
			if enr.State.Admitted() {
				return ErrKeyFrozen
			}
			enr.AccessKey = *se.AccessKey
			changed = true
		}
		if !se.PaymentProof.Empty() {
			if enr.PaymentProof, err = svc.store(ctx, staged, enr, "payment", se.PaymentProof); err != nil {
				return err
			}
			changed = true
		}
		if !se.Attachment.Empty() {
			if enr.Attachment, err = svc.store(ctx, staged, enr, "attachment", se.Attachment); err != nil {
				return err
			}
			changed = true
		}
		if !changed {
			return nil
		}

		if enr, err = svc.save(ctx, p, enr, enr.State, "enrollment.edit"); err != nil {
			return err
		}
		usr, err := svc.subject(ctx, enr)
		if err != nil {
			return err
		}
		msg = updatedMessage(ev, usr, enr)
		return nil
	})
	if err = staged.Settle(ctx, err); err != nil {
		return Enrollment{}, err
	}

	if msg != nil {
		svc.mailSvc.SendMessages(msg)
	}
	return enr, nil
}

// Get returns an enrollment to its subject or to a reviewer of its event.
func (svc *Service) Get(ctx context.Context, p user.Principal, id string) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	ev, err := svc.events.GetEvent(ctx, enr.EventID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "getting event")
	}
	if err = access.Can(p, access.EditOwnEnrollment, enr.Target(ev)); err != nil {
		if rErr := access.Can(p, access.ReviewEnrollment, enr.Target(ev)); rErr != nil {
			return Enrollment{}, err
		}
	}
	return enr, nil
}

// List returns the enrollments of an event to its reviewers.
func (svc *Service) List(ctx context.Context, p user.Principal, eventID string, filter QueryFilter) ([]Enrollment, error) {
	ev, err := svc.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err = access.Can(p, access.ReviewEnrollment, ev.Target()); err != nil {
		return nil, err
	}
	filter.EventID = ev.ID
	filter.UserID = ""
	var enrs []Enrollment
	err = core.RetryRead(ctx, func(ctx context.Context) (err error) {
		enrs, err = svc.repo.ListEnrollments(ctx, filter)
		return err
	})
	return enrs, err
}

// Mine returns every enrollment of the principal.
func (svc *Service) Mine(ctx context.Context, p user.Principal) ([]Enrollment, error) {
	if !p.IsAuthenticated() {
		return nil, core.NewError(core.KindNotAuthenticated, "authentication required")
	}
	return svc.repo.ListEnrollments(ctx, QueryFilter{UserID: p.UserID})
}

// Statistics returns head-counts per track and state.
func (svc *Service) Statistics(ctx context.Context, p user.Principal, eventID string) (Stats, error) {
	ev, err := svc.events.GetEvent(ctx, eventID)
	if err != nil {
		return Stats{}, err
	}
	if err = access.Can(p, access.ReviewEnrollment, ev.Target()); err != nil {
		return Stats{}, err
	}
	counts, err := svc.repo.CountEnrollments(ctx, ev.ID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting enrollments")
	}

	stats := Stats{
		EventID:   ev.ID,
		Capacity:  ev.Capacity,
		Tracks:    make(map[event.Track]TrackStats, len(event.Tracks)),
		Occupied:  make(map[event.Track]int, len(event.Tracks)),
		Occupancy: make(map[event.Track]float64, len(event.Tracks)),
	}
	for _, t := range event.Tracks {
		ts := TrackStats{ByState: make(map[State]int)}
		for st, n := range counts[t] {
			ts.ByState[st] = n
			ts.Total += n
			switch {
			case st.Admitted():
				ts.Admitted += n
			case st == StateRechazado:
				ts.Rejected += n
			case st != StateCancelado:
				ts.Pending += n
			}
		}
		stats.Tracks[t] = ts
		stats.Occupied[t] = occupying(counts[t])
		if ev.Capacity > 0 {
			stats.Occupancy[t] = float64(stats.Occupied[t]) * 100 / float64(ev.Capacity)
		}
	}
	return stats, nil
}

// Recipients returns, once per user, the subjects of the given tracks whose enrollment is in the
// confirmed state of its track. A non-empty specialty keeps only subjects whose profile carries it.
func (svc *Service) Recipients(ctx context.Context, eventID string, tracks []event.Track, specialty string) ([]Recipient, error) {
	enrs, err := svc.repo.ListEnrollments(ctx, QueryFilter{EventID: eventID, Tracks: tracks})
	if err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}
	specialty = core.CleanString(specialty, true /* lower */)

	seen := make(map[string]bool, len(enrs))
	recipients := make([]Recipient, 0, len(enrs))
	for _, enr := range enrs {
		if !enr.Confirmed() || seen[enr.UserID] {
			continue
		}
		var spec string
		if enr.Track == event.TrackEvaluator {
			prof, err := svc.users.GetProfile(ctx, enr.SubjectID)
			if err != nil {
				return nil, errors.Wrap(err, "getting profile")
			}
			spec = prof.Specialty
		}
		if specialty != "" && spec != specialty {
			continue
		}
		usr, err := svc.subject(ctx, enr)
		if err != nil {
			return nil, err
		}
		seen[enr.UserID] = true
		recipients = append(recipients, Recipient{
			UserID:       usr.ID,
			EnrollmentID: enr.ID,
			Track:        enr.Track,
			Name:         usr.FullName(),
			Email:        usr.Email,
			Phone:        usr.Phone,
			Specialty:    spec,
		})
	}
	sort.Slice(recipients, func(i, j int) bool {
		if recipients[i].Name != recipients[j].Name {
			return recipients[i].Name < recipients[j].Name
		}
		return recipients[i].UserID < recipients[j].UserID
	})
	return recipients, nil
}

package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
)

const enrollmentColumns = `id, event_id, track, subject_id, user_id, state, access_key, reviewer_id,
	rejection_reason, qr_image, payment_proof, attachment, created_at, updated_at`

type enrollmentRow struct {
	ID              string      `db:"id"`
	EventID         string      `db:"event_id"`
	Track           string      `db:"track"`
	SubjectID       string      `db:"subject_id"`
	UserID          string      `db:"user_id"`
	State           string      `db:"state"`
	AccessKey       string      `db:"access_key"`
	ReviewerID      null.String `db:"reviewer_id"`
	RejectionReason string      `db:"rejection_reason"`
	QRImage         string      `db:"qr_image"`
	PaymentProof    string      `db:"payment_proof"`
	Attachment      string      `db:"attachment"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) toRow(e enrollment.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:              e.ID,
		EventID:         e.EventID,
		Track:           string(e.Track),
		SubjectID:       e.SubjectID,
		UserID:          e.UserID,
		State:           string(e.State),
		AccessKey:       e.AccessKey,
		ReviewerID:      null.NewString(e.ReviewerID, e.ReviewerID != ""),
		RejectionReason: e.RejectionReason,
		QRImage:         e.QRImage,
		PaymentProof:    e.PaymentProof,
		Attachment:      e.Attachment,
		CreatedAt:       e.CreatedAt.UTC(),
		UpdatedAt:       e.UpdatedAt.UTC(),
	}
}

func (repo *enrollmentRepository) fromRow(r enrollmentRow) enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:              r.ID,
		EventID:         r.EventID,
		Track:           event.Track(r.Track),
		SubjectID:       r.SubjectID,
		UserID:          r.UserID,
		State:           enrollment.State(r.State),
		AccessKey:       r.AccessKey,
		ReviewerID:      r.ReviewerID.String,
		RejectionReason: r.RejectionReason,
		QRImage:         r.QRImage,
		PaymentProof:    r.PaymentProof,
		Attachment:      r.Attachment,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	if e.ID == "" {
		e.ID = core.NewID()
	}
	_, err := repo.db.namedExec(ctx, `INSERT INTO enrollments (`+enrollmentColumns+`) VALUES (
		:id, :event_id, :track, :subject_id, :user_id, :state, :access_key, :reviewer_id,
		:rejection_reason, :qr_image, :payment_proof, :attachment, :created_at, :updated_at)`, repo.toRow(e))
	if isUniqueViolation(err, "enrollments_event_subject_track_key") {
		return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
	}
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, id string) (enrollment.Enrollment, error) {
	var r enrollmentRow
	if err := repo.db.get(ctx, &r, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = ?`, id); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "getting enrollment")
	}
	return repo.fromRow(r), nil
}

func (repo *enrollmentRepository) FindEnrollment(ctx context.Context, eventID string, track event.Track, subjectID string) (enrollment.Enrollment, error) {
	var r enrollmentRow
	err := repo.db.get(ctx, &r, `SELECT `+enrollmentColumns+` FROM enrollments
		WHERE event_id = ? AND track = ? AND subject_id = ?`, eventID, string(track), subjectID)
	if err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return repo.fromRow(r), nil
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	ok, err := repo.db.namedExec(ctx, `UPDATE enrollments SET
		state = :state, access_key = :access_key, reviewer_id = :reviewer_id, rejection_reason = :rejection_reason,
		qr_image = :qr_image, payment_proof = :payment_proof, attachment = :attachment, updated_at = :updated_at
		WHERE id = :id`, repo.toRow(e))
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return e, nil
}

func (repo *enrollmentRepository) ListEnrollments(ctx context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	var w where
	if filter.EventID != "" {
		w.add(`event_id = ?`, filter.EventID)
	}
	if filter.UserID != "" {
		w.add(`user_id = ?`, filter.UserID)
	}
	if filter.Track != "" {
		w.add(`track = ?`, string(filter.Track))
	}
	if len(filter.Tracks) > 0 {
		tracks := make([]string, 0, len(filter.Tracks))
		for _, t := range filter.Tracks {
			tracks = append(tracks, string(t))
		}
		w.add(`track = ANY(?)`, pq.Array(tracks))
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, st := range filter.States {
			states = append(states, string(st))
		}
		w.add(`state = ANY(?)`, pq.Array(states))
	}

	var rows []enrollmentRow
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments` + w.String() + ` ORDER BY created_at, id`
	if err := repo.db.selectAll(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}
	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrs = append(enrs, repo.fromRow(r))
	}
	return enrs, nil
}

func (repo *enrollmentRepository) CountEnrollments(ctx context.Context, eventID string) (enrollment.Counts, error) {
	var rows []struct {
		Track string `db:"track"`
		State string `db:"state"`
		N     int    `db:"n"`
	}
	err := repo.db.selectAll(ctx, &rows, `SELECT track, state, count(*) AS n FROM enrollments
		WHERE event_id = ? GROUP BY track, state`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "counting enrollments")
	}

	counts := make(enrollment.Counts, len(event.Tracks))
	for _, t := range event.Tracks {
		counts[t] = make(map[enrollment.State]int)
	}
	for _, r := range rows {
		t := event.Track(r.Track)
		if counts[t] == nil {
			counts[t] = make(map[enrollment.State]int)
		}
		counts[t][enrollment.State(r.State)] = r.N
	}
	return counts, nil
}

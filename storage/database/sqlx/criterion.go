package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/criterion"
)

const gradeColumns = `id, event_id, criterion_id, evaluator_id, participant_id, value, created_at, updated_at`

type criterionRow struct {
	ID          string    `db:"id"`
	EventID     string    `db:"event_id"`
	Description string    `db:"description"`
	Weight      float64   `db:"weight"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type gradeRow struct {
	ID            string    `db:"id"`
	EventID       string    `db:"event_id"`
	CriterionID   string    `db:"criterion_id"`
	EvaluatorID   string    `db:"evaluator_id"`
	ParticipantID string    `db:"participant_id"`
	Value         int       `db:"value"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r criterionRow) criterion() criterion.Criterion {
	return criterion.Criterion{
		ID: r.ID, EventID: r.EventID, Description: r.Description, Weight: r.Weight,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r gradeRow) grade() criterion.Grade {
	return criterion.Grade{
		ID: r.ID, EventID: r.EventID, CriterionID: r.CriterionID, EvaluatorID: r.EvaluatorID,
		ParticipantID: r.ParticipantID, Value: r.Value, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type criterionRepository struct {
	db *DB
}

var _ criterion.Repository = (*criterionRepository)(nil) // interface compliance check

func NewCriterionRepository(db *DB) criterion.Repository {
	return &criterionRepository{db: db}
}

func (repo *criterionRepository) CreateCriterion(ctx context.Context, c criterion.Criterion) (criterion.Criterion, error) {
	if c.ID == "" {
		c.ID = core.NewID()
	}
	_, err := repo.db.namedExec(ctx, `INSERT INTO criteria (id, event_id, description, weight, created_at, updated_at)
		VALUES (:id, :event_id, :description, :weight, :created_at, :updated_at)`, criterionRow{
		ID: c.ID, EventID: c.EventID, Description: c.Description, Weight: c.Weight,
		CreatedAt: c.CreatedAt.UTC(), UpdatedAt: c.UpdatedAt.UTC(),
	})
	if err != nil {
		return criterion.Criterion{}, errors.Wrap(err, "inserting criterion")
	}
	return c, nil
}

func (repo *criterionRepository) GetCriterion(ctx context.Context, id string) (criterion.Criterion, error) {
	var r criterionRow
	err := repo.db.get(ctx, &r, `SELECT id, event_id, description, weight, created_at, updated_at FROM criteria WHERE id = ?`, id)
	if err != nil {
		return criterion.Criterion{}, trapNoRowsErr(err, criterion.ErrNotFound, "getting criterion")
	}
	return r.criterion(), nil
}

func (repo *criterionRepository) UpdateCriterion(ctx context.Context, c criterion.Criterion) (criterion.Criterion, error) {
	ok, err := repo.db.execOne(ctx, `UPDATE criteria SET description = ?, weight = ?, updated_at = ? WHERE id = ?`,
		c.Description, c.Weight, c.UpdatedAt.UTC(), c.ID)
	if err != nil {
		return criterion.Criterion{}, errors.Wrap(err, "updating criterion")
	}
	if !ok {
		return criterion.Criterion{}, criterion.ErrNotFound
	}
	return c, nil
}

func (repo *criterionRepository) DeleteCriterion(ctx context.Context, id string) error {
	ok, err := repo.db.execOne(ctx, `DELETE FROM criteria WHERE id = ?`, id)
	if isFKViolation(err, "grades_criterion_id_fkey") {
		return criterion.ErrInUse
	}
	if err != nil {
		return errors.Wrap(err, "deleting criterion")
	}
	if !ok {
		return criterion.ErrNotFound
	}
	return nil
}

func (repo *criterionRepository) ListCriteria(ctx context.Context, eventID string) ([]criterion.Criterion, error) {
	var rows []criterionRow
	err := repo.db.selectAll(ctx, &rows, `SELECT id, event_id, description, weight, created_at, updated_at
		FROM criteria WHERE event_id = ? ORDER BY created_at`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "listing criteria")
	}
	cs := make([]criterion.Criterion, 0, len(rows))
	for _, r := range rows {
		cs = append(cs, r.criterion())
	}
	return cs, nil
}

func (repo *criterionRepository) UpsertGrade(ctx context.Context, g criterion.Grade) (criterion.Grade, error) {
	if g.ID == "" {
		g.ID = core.NewID()
	}
	var r gradeRow
	err := repo.db.get(ctx, &r, `INSERT INTO grades (`+gradeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT ON CONSTRAINT grades_evaluator_criterion_participant_key
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		RETURNING `+gradeColumns,
		g.ID, g.EventID, g.CriterionID, g.EvaluatorID, g.ParticipantID, g.Value, g.CreatedAt.UTC(), g.UpdatedAt.UTC())
	if isFKViolation(err, "grades_criterion_id_fkey") {
		return criterion.Grade{}, criterion.ErrNotFound
	}
	if err != nil {
		return criterion.Grade{}, errors.Wrap(err, "upserting grade")
	}
	return r.grade(), nil
}

func (repo *criterionRepository) ListGrades(ctx context.Context, filter criterion.GradeFilter) ([]criterion.Grade, error) {
	var w where
	if filter.EventID != "" {
		w.add(`event_id = ?`, filter.EventID)
	}
	if filter.CriterionID != "" {
		w.add(`criterion_id = ?`, filter.CriterionID)
	}
	if filter.EvaluatorID != "" {
		w.add(`evaluator_id = ?`, filter.EvaluatorID)
	}
	if filter.ParticipantID != "" {
		w.add(`participant_id = ?`, filter.ParticipantID)
	}

	var rows []gradeRow
	if err := repo.db.selectAll(ctx, &rows, `SELECT `+gradeColumns+` FROM grades`+w.String()+` ORDER BY created_at`, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing grades")
	}
	grades := make([]criterion.Grade, 0, len(rows))
	for _, r := range rows {
		grades = append(grades, r.grade())
	}
	return grades, nil
}

func (repo *criterionRepository) CountGrades(ctx context.Context, criterionID string) (int, error) {
	var n int
	err := repo.db.get(ctx, &n, `SELECT count(*) FROM grades WHERE criterion_id = ?`, criterionID)
	return n, errors.Wrap(err, "counting grades")
}

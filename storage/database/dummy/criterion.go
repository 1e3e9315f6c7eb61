package dummydb

import (
	"context"
	"sort"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/criterion"
)

type criterionRepository struct {
	criteria *table[string, criterion.Criterion]
	grades   *table[string, criterion.Grade]
}

var _ criterion.Repository = (*criterionRepository)(nil) // interface compliance check

func NewCriterionRepository(db *DB) criterion.Repository {
	return &criterionRepository{criteria: db.criteria, grades: db.grades}
}

func (repo *criterionRepository) CreateCriterion(_ context.Context, c criterion.Criterion) (criterion.Criterion, error) {
	if c.ID == "" {
		c.ID = core.NewID()
	}
	repo.criteria.put(c.ID, c)
	return c, nil
}

func (repo *criterionRepository) GetCriterion(_ context.Context, id string) (criterion.Criterion, error) {
	if c, ok := repo.criteria.get(id); ok {
		return c, nil
	}
	return criterion.Criterion{}, criterion.ErrNotFound
}

func (repo *criterionRepository) UpdateCriterion(_ context.Context, c criterion.Criterion) (criterion.Criterion, error) {
	if _, ok := repo.criteria.get(c.ID); !ok {
		return criterion.Criterion{}, criterion.ErrNotFound
	}
	repo.criteria.put(c.ID, c)
	return c, nil
}

func (repo *criterionRepository) DeleteCriterion(ctx context.Context, id string) error {
	if _, ok := repo.criteria.get(id); !ok {
		return criterion.ErrNotFound
	}
	// same guarantee as the foreign key of the SQL store
	if n, _ := repo.CountGrades(ctx, id); n > 0 {
		return criterion.ErrInUse
	}
	repo.criteria.del(id)
	return nil
}

func (repo *criterionRepository) ListCriteria(_ context.Context, eventID string) ([]criterion.Criterion, error) {
	cs := repo.criteria.filter(func(c criterion.Criterion) bool { return c.EventID == eventID })
	sort.Slice(cs, func(i, j int) bool { return cs[i].CreatedAt.Before(cs[j].CreatedAt) })
	return cs, nil
}

func (repo *criterionRepository) UpsertGrade(_ context.Context, g criterion.Grade) (criterion.Grade, error) {
	if _, ok := repo.criteria.get(g.CriterionID); !ok {
		return criterion.Grade{}, criterion.ErrNotFound
	}

	repo.grades.Lock()
	defer repo.grades.Unlock()
	for id, prev := range repo.grades.rows {
		if prev.EvaluatorID == g.EvaluatorID && prev.CriterionID == g.CriterionID && prev.ParticipantID == g.ParticipantID {
			prev.Value = g.Value
			prev.UpdatedAt = g.UpdatedAt
			repo.grades.rows[id] = prev
			return prev, nil
		}
	}
	if g.ID == "" {
		g.ID = core.NewID()
	}
	repo.grades.rows[g.ID] = g
	return g, nil
}

func (repo *criterionRepository) ListGrades(_ context.Context, filter criterion.GradeFilter) ([]criterion.Grade, error) {
	grades := repo.grades.filter(func(g criterion.Grade) bool {
		return (filter.EventID == "" || g.EventID == filter.EventID) &&
			(filter.CriterionID == "" || g.CriterionID == filter.CriterionID) &&
			(filter.EvaluatorID == "" || g.EvaluatorID == filter.EvaluatorID) &&
			(filter.ParticipantID == "" || g.ParticipantID == filter.ParticipantID)
	})
	sort.Slice(grades, func(i, j int) bool { return grades[i].CreatedAt.Before(grades[j].CreatedAt) })
	return grades, nil
}

func (repo *criterionRepository) CountGrades(_ context.Context, criterionID string) (int, error) {
	return len(repo.grades.filter(func(g criterion.Grade) bool { return g.CriterionID == criterionID })), nil
}

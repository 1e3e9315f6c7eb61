package dummydb

import (
	"context"
	"sort"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
)

type enrollmentRepository struct {
	enrollments *table[string, enrollment.Enrollment]
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{enrollments: db.enrollments}
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.enrollments.Lock()
	defer repo.enrollments.Unlock()

	// unique (event, subject, track)
	for _, other := range repo.enrollments.rows {
		if other.EventID == e.EventID && other.SubjectID == e.SubjectID && other.Track == e.Track {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
	}
	if e.ID == "" {
		e.ID = core.NewID()
	}
	repo.enrollments.rows[e.ID] = e
	return e, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id string) (enrollment.Enrollment, error) {
	if e, ok := repo.enrollments.get(id); ok {
		return e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) FindEnrollment(_ context.Context, eventID string, track event.Track, subjectID string) (enrollment.Enrollment, error) {
	enrs := repo.enrollments.filter(func(e enrollment.Enrollment) bool {
		return e.EventID == eventID && e.Track == track && e.SubjectID == subjectID
	})
	if len(enrs) == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return enrs[0], nil
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	if _, ok := repo.enrollments.get(e.ID); !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	repo.enrollments.put(e.ID, e)
	return e, nil
}

func (repo *enrollmentRepository) ListEnrollments(_ context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	enrs := repo.enrollments.filter(func(e enrollment.Enrollment) bool {
		if filter.EventID != "" && e.EventID != filter.EventID {
			return false
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			return false
		}
		if filter.Track != "" && e.Track != filter.Track {
			return false
		}
		if len(filter.Tracks) > 0 && !containsTrack(filter.Tracks, e.Track) {
			return false
		}
		if len(filter.States) > 0 {
			for _, st := range filter.States {
				if e.State == st {
					return true
				}
			}
			return false
		}
		return true
	})
	sort.Slice(enrs, func(i, j int) bool {
		if !enrs[i].CreatedAt.Equal(enrs[j].CreatedAt) {
			return enrs[i].CreatedAt.Before(enrs[j].CreatedAt)
		}
		return enrs[i].ID < enrs[j].ID
	})
	return enrs, nil
}

func (repo *enrollmentRepository) CountEnrollments(_ context.Context, eventID string) (enrollment.Counts, error) {
	counts := make(enrollment.Counts, len(event.Tracks))
	for _, t := range event.Tracks {
		counts[t] = make(map[enrollment.State]int)
	}
	for _, e := range repo.enrollments.filter(func(e enrollment.Enrollment) bool { return e.EventID == eventID }) {
		counts[e.Track][e.State]++
	}
	return counts, nil
}

func containsTrack(tracks []event.Track, t event.Track) bool {
	for _, tr := range tracks {
		if tr == t {
			return true
		}
	}
	return false
}

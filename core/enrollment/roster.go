package enrollment

import (
	"context"

	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/event"
)

// Roster answers the event service's questions about an event's audience.
type Roster struct {
	repo Repository
}

var _ event.Roster = (*Roster)(nil)

func NewRoster(repo Repository) *Roster {
	return &Roster{repo: repo}
}

func (r *Roster) Occupancy(ctx context.Context, eventID string) (map[event.Track]int, error) {
	counts, err := r.repo.CountEnrollments(ctx, eventID)
	if err != nil {
		return nil, err
	}
	occ := make(map[event.Track]int, len(event.Tracks))
	for _, t := range event.Tracks {
		occ[t] = occupying(counts[t])
	}
	return occ, nil
}

func (r *Roster) Membership(ctx context.Context, eventID, userID string) (access.Membership, error) {
	enrs, err := r.repo.ListEnrollments(ctx, QueryFilter{EventID: eventID, UserID: userID})
	if err != nil {
		return access.NotEnrolled, err
	}
	m := access.NotEnrolled
	for _, enr := range enrs {
		switch {
		case enr.Confirmed():
			return access.Confirmed, nil
		case enr.State.Occupying():
			m = access.Enrolled
		}
	}
	return m, nil
}

func (r *Roster) Attendees(ctx context.Context, eventID string) ([]string, error) {
	enrs, err := r.repo.ListEnrollments(ctx, QueryFilter{EventID: eventID})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(enrs))
	ids := make([]string, 0, len(enrs))
	for _, enr := range enrs {
		if enr.State.Occupying() && !seen[enr.UserID] {
			seen[enr.UserID] = true
			ids = append(ids, enr.UserID)
		}
	}
	return ids, nil
}

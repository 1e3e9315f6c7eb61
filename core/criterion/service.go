package criterion

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewError(core.KindNotFound, "criterion not found")
	ErrWeightNonPositive = core.NewFieldError(core.KindWeightNonPositive, "weight", "weight must be greater than zero")
	ErrInUse             = core.NewError(core.KindCriterionInUse, "the criterion has grades and cannot be deleted")
	ErrNotEvaluator      = core.NewError(core.KindForbidden, "only an approved evaluator of the event may grade")
	ErrNotGradable       = core.NewFieldError(core.KindFieldInvalid, "participant_id", "the participant is not admitted to the event")

	PodiumSize = 3
)

type (
	Repository interface {
		CreateCriterion(ctx context.Context, c Criterion) (Criterion, error)
		GetCriterion(ctx context.Context, id string) (Criterion, error)
		UpdateCriterion(ctx context.Context, c Criterion) (Criterion, error)
		// DeleteCriterion fails with ErrInUse when a grade references the criterion.
		DeleteCriterion(ctx context.Context, id string) error
		ListCriteria(ctx context.Context, eventID string) ([]Criterion, error)

		// UpsertGrade creates the grade or overwrites the value of the existing
		// (evaluator, criterion, participant) grade.
		UpsertGrade(ctx context.Context, g Grade) (Grade, error)
		ListGrades(ctx context.Context, filter GradeFilter) ([]Grade, error)
		CountGrades(ctx context.Context, criterionID string) (int, error)
	}

	Service struct {
		tx          core.Transactor
		repo        Repository
		events      event.Repository
		roster      event.Roster
		enrollments enrollment.Repository
		users       *user.Service
		audit       *audit.Log
	}
)

func NewService(
	tx core.Transactor,
	repo Repository,
	events event.Repository,
	roster event.Roster,
	enrollments enrollment.Repository,
	users *user.Service,
	auditLog *audit.Log,
) *Service {
	return &Service{
		tx:          tx,
		repo:        repo,
		events:      events,
		roster:      roster,
		enrollments: enrollments,
		users:       users,
		audit:       auditLog,
	}
}

func (svc *Service) manage(ctx context.Context, p user.Principal, eventID string) (event.Event, error) {
	ev, err := svc.events.GetEvent(ctx, eventID)
	if err != nil {
		return event.Event{}, err
	}
	return ev, access.Can(p, access.ManageCriteria, ev.Target())
}

func (svc *Service) Create(ctx context.Context, p user.Principal, eventID string, nc NewCriterion) (Criterion, error) {
	if err := nc.Validate(); err != nil {
		return Criterion{}, err
	}
	ev, err := svc.manage(ctx, p, eventID)
	if err != nil {
		return Criterion{}, err
	}
	now := core.Now()
	c, err := svc.repo.CreateCriterion(ctx, Criterion{
		EventID:     ev.ID,
		Description: nc.Description,
		Weight:      nc.Weight,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return c, errors.Wrap(err, "creating criterion")
}

// get returns the criterion id of eventID.
func (svc *Service) get(ctx context.Context, eventID, id string) (Criterion, error) {
	c, err := svc.repo.GetCriterion(ctx, id)
	if err != nil {
		return Criterion{}, err
	}
	if c.EventID != eventID {
		return Criterion{}, ErrNotFound
	}
	return c, nil
}

func (svc *Service) Update(ctx context.Context, p user.Principal, eventID, id string, uc UpdateCriterion) (Criterion, error) {
	if _, err := svc.manage(ctx, p, eventID); err != nil {
		return Criterion{}, err
	}
	c, err := svc.get(ctx, eventID, id)
	if err != nil {
		return Criterion{}, err
	}
	if c, err = uc.apply(c); err != nil {
		return Criterion{}, err
	}
	c.UpdatedAt = core.Now()
	c, err = svc.repo.UpdateCriterion(ctx, c)
	return c, errors.Wrap(err, "updating criterion")
}

// Delete removes a criterion no grade references yet.
func (svc *Service) Delete(ctx context.Context, p user.Principal, eventID, id string) error {
	if _, err := svc.manage(ctx, p, eventID); err != nil {
		return err
	}
	return svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := svc.get(ctx, eventID, id)
		if err != nil {
			return err
		}
		n, err := svc.repo.CountGrades(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "counting grades")
		}
		if n > 0 {
			return ErrInUse
		}
		if err = svc.repo.DeleteCriterion(ctx, c.ID); err != nil {
			return errors.Wrap(err, "deleting criterion")
		}
		return svc.audit.Record(ctx, audit.Entry{
			ActorID: p.UserID, Action: "criterion.delete", TargetType: "criterion", TargetID: c.ID, Detail: c.Description,
		})
	})
}

// InUse reports whether any grade references the criterion.
func (svc *Service) InUse(ctx context.Context, id string) (bool, error) {
	n, err := svc.repo.CountGrades(ctx, id)
	return n > 0, err
}

// Criteria returns the criteria of an event by weight, heaviest first, with their running sum.
func (svc *Service) Criteria(ctx context.Context, eventID string) ([]Listed, error) {
	var cs []Criterion
	err := core.RetryRead(ctx, func(ctx context.Context) (err error) {
		cs, err = svc.repo.ListCriteria(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing criteria")
	}
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Weight != cs[j].Weight {
			return cs[i].Weight > cs[j].Weight
		}
		return cs[i].Description < cs[j].Description
	})
	listed := make([]Listed, len(cs))
	var sum float64
	for i, c := range cs {
		sum += c.Weight
		listed[i] = Listed{Criterion: c, RunningSum: sum}
	}
	return listed, nil
}

// List returns the criteria of an event to its managers and confirmed subjects.
func (svc *Service) List(ctx context.Context, p user.Principal, eventID string) ([]Listed, error) {
	ev, err := svc.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err = access.Can(p, access.ManageCriteria, ev.Target()); err != nil {
		m, mErr := svc.roster.Membership(ctx, ev.ID, p.UserID)
		if mErr != nil {
			return nil, errors.Wrap(mErr, "resolving membership")
		}
		if vErr := access.Can(p, access.ViewInstrument, ev.Target(m)); vErr != nil {
			return nil, err
		}
	}
	return svc.Criteria(ctx, ev.ID)
}

// evaluatorOf returns the approved evaluator enrollment of p in eventID.
func (svc *Service) evaluatorOf(ctx context.Context, p user.Principal, eventID string) (enrollment.Enrollment, error) {
	if !p.IsAuthenticated() {
		return enrollment.Enrollment{}, core.NewError(core.KindNotAuthenticated, "authentication required")
	}
	enrs, err := svc.enrollments.ListEnrollments(ctx, enrollment.QueryFilter{
		EventID: eventID, UserID: p.UserID, Tracks: []event.Track{event.TrackEvaluator},
	})
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "finding evaluator enrollment")
	}
	for _, enr := range enrs {
		if enr.Confirmed() {
			return enr, nil
		}
	}
	return enrollment.Enrollment{}, ErrNotEvaluator
}

// Grade records the value an approved evaluator gives an admitted participant on a criterion.
// Grading again overwrites the previous value.
func (svc *Service) Grade(ctx context.Context, p user.Principal, eventID string, gr GradeRequest) (Grade, error) {
	if err := core.Validate.Struct(gr); err != nil {
		return Grade{}, err
	}
	var g Grade
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		ev, err := svc.events.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.State != event.StateActive {
			return core.NewError(core.KindEventClosed, "grades are only accepted while the event is active")
		}
		evaluator, err := svc.evaluatorOf(ctx, p, ev.ID)
		if err != nil {
			return err
		}
		c, err := svc.get(ctx, ev.ID, gr.CriterionID)
		if err != nil {
			return err
		}
		part, err := svc.enrollments.FindEnrollment(ctx, ev.ID, event.TrackParticipant, gr.ParticipantID)
		switch {
		case errors.Cause(err) == enrollment.ErrNotFound:
			return ErrNotGradable
		case err != nil:
			return errors.Wrap(err, "finding participant enrollment")
		case !part.Confirmed():
			return ErrNotGradable
		}

		now := core.Now()
		g, err = svc.repo.UpsertGrade(ctx, Grade{
			EventID:       ev.ID,
			CriterionID:   c.ID,
			EvaluatorID:   evaluator.SubjectID,
			ParticipantID: part.SubjectID,
			Value:         gr.Value,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		return errors.Wrap(err, "saving grade")
	})
	return g, err
}

// Grades returns the grades of an event: all of them to its managers, their own to evaluators.
func (svc *Service) Grades(ctx context.Context, p user.Principal, eventID string) ([]Grade, error) {
	ev, err := svc.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	filter := GradeFilter{EventID: ev.ID}
	if err = access.Can(p, access.ManageCriteria, ev.Target()); err != nil {
		evaluator, eErr := svc.evaluatorOf(ctx, p, ev.ID)
		if eErr != nil {
			return nil, err
		}
		filter.EvaluatorID = evaluator.SubjectID
	}
	return svc.repo.ListGrades(ctx, filter)
}

// Ranking orders the admitted participants of an event by weighted score, best first.
// A participant's score is the sum over criteria of the mean value given by the evaluators times the
// criterion's weight, divided by 100.
func (svc *Service) Ranking(ctx context.Context, p user.Principal, eventID string) ([]Standing, error) {
	ev, err := svc.manage(ctx, p, eventID)
	if err != nil {
		return nil, err
	}
	cs, err := svc.repo.ListCriteria(ctx, ev.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing criteria")
	}
	weights := make(map[string]float64, len(cs))
	for _, c := range cs {
		weights[c.ID] = c.Weight
	}
	grades, err := svc.repo.ListGrades(ctx, GradeFilter{EventID: ev.ID})
	if err != nil {
		return nil, errors.Wrap(err, "listing grades")
	}
	parts, err := svc.enrollments.ListEnrollments(ctx, enrollment.QueryFilter{
		EventID: ev.ID, Tracks: []event.Track{event.TrackParticipant},
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing participants")
	}

	type acc struct{ sum, n float64 }
	values := make(map[string]map[string]*acc) // participant -> criterion -> values
	counts := make(map[string]int)
	for _, g := range grades {
		if _, ok := weights[g.CriterionID]; !ok {
			continue
		}
		byCrit, ok := values[g.ParticipantID]
		if !ok {
			byCrit = make(map[string]*acc)
			values[g.ParticipantID] = byCrit
		}
		a, ok := byCrit[g.CriterionID]
		if !ok {
			a = &acc{}
			byCrit[g.CriterionID] = a
		}
		a.sum += float64(g.Value)
		a.n++
		counts[g.ParticipantID]++
	}

	standings := make([]Standing, 0, len(parts))
	for _, enr := range parts {
		if !enr.Confirmed() {
			continue
		}
		usr, err := svc.users.GetByID(ctx, enr.UserID)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("getting participant %s", enr.UserID))
		}
		var score float64
		for critID, a := range values[enr.SubjectID] {
			score += a.sum / a.n * weights[critID] / 100
		}
		standings = append(standings, Standing{
			ParticipantID: enr.SubjectID,
			UserID:        usr.ID,
			Name:          usr.FullName(),
			Score:         math.Round(score*100) / 100,
			Grades:        counts[enr.SubjectID],
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].Name < standings[j].Name
	})
	for i := range standings {
		standings[i].Position = i + 1
	}
	return standings, nil
}

// Podium returns the first places of the ranking.
func (svc *Service) Podium(ctx context.Context, p user.Principal, eventID string) ([]Standing, error) {
	standings, err := svc.Ranking(ctx, p, eventID)
	if err != nil {
		return nil, err
	}
	if len(standings) > PodiumSize {
		standings = standings[:PodiumSize]
	}
	return standings, nil
}

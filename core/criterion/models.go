package criterion

import (
	"time"

	"github.com/eventsoft/eventsoft/core"
)

// Criterion is a weighted evaluation criterion of an event.
type Criterion struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Description string    `json:"description"`
	Weight      float64   `json:"weight"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Listed is a criterion as displayed in the event's list, with the sum of the weights up to it.
type Listed struct {
	Criterion
	RunningSum float64 `json:"running_sum"`
}

type NewCriterion struct {
	Description string  `json:"description" validate:"required,notblank,max=500"`
	Weight      float64 `json:"weight"`
}

func (nc *NewCriterion) Validate() error {
	nc.Description = core.CleanString(nc.Description)
	if nc.Weight <= 0 {
		return ErrWeightNonPositive
	}
	return core.Validate.Struct(nc)
}

type UpdateCriterion struct {
	Description *string  `json:"description" validate:"omitempty,notblank,max=500"`
	Weight      *float64 `json:"weight"`
}

func (uc UpdateCriterion) apply(c Criterion) (Criterion, error) {
	if uc.Weight != nil && *uc.Weight <= 0 {
		return Criterion{}, ErrWeightNonPositive
	}
	if err := core.Validate.Struct(uc); err != nil {
		return Criterion{}, err
	}
	if uc.Description != nil {
		c.Description = core.CleanString(*uc.Description)
	}
	if uc.Weight != nil {
		c.Weight = *uc.Weight
	}
	return c, nil
}

// Grade is the value an evaluator gives a participant on one criterion.
// Evaluator and participant are profile IDs.
type Grade struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	CriterionID   string    `json:"criterion_id"`
	EvaluatorID   string    `json:"evaluator_id"`
	ParticipantID string    `json:"participant_id"`
	Value         int       `json:"value"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type GradeRequest struct {
	CriterionID   string `json:"criterion_id" validate:"required"`
	ParticipantID string `json:"participant_id" validate:"required"`
	Value         int    `json:"value" validate:"min=0,max=100"`
}

type GradeFilter struct {
	EventID       string
	CriterionID   string
	EvaluatorID   string
	ParticipantID string
}

// Standing is a participant's place in the event's ranking.
type Standing struct {
	Position      int     `json:"position"`
	ParticipantID string  `json:"participant_id"`
	UserID        string  `json:"user_id"`
	Name          string  `json:"name"`
	Score         float64 `json:"score"`
	Grades        int     `json:"grades"`
}

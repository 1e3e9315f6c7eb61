package criterion_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/criterion"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/tests"
)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	_, other := env.CreateUser(t, user.RoleEventAdmin, "other")
	ev := env.CreateEvent(t, owner, 10)

	tests := []struct {
		name     string
		p        user.Principal
		nc       criterion.NewCriterion
		wantKind core.Kind
	}{
		{"valid", owner, criterion.NewCriterion{Description: "Originalidad", Weight: 30}, core.KindUnknown},
		{"zero weight", owner, criterion.NewCriterion{Description: "Claridad", Weight: 0}, core.KindWeightNonPositive},
		{"negative weight", owner, criterion.NewCriterion{Description: "Claridad", Weight: -5}, core.KindWeightNonPositive},
		{"blank description", owner, criterion.NewCriterion{Description: "  ", Weight: 10}, core.KindFieldRequired},
		{"other admin", other, criterion.NewCriterion{Description: "Impacto", Weight: 10}, core.KindNotOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Criteria.Create(ctx, tt.p, ev.ID, tt.nc)
			if got := core.KindOf(err); got != tt.wantKind {
				t.Errorf("Create() error = %v, want kind %v", err, tt.wantKind)
			}
		})
	}
}

func TestService_DeleteInUse(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	ev := env.CreateEvent(t, owner, 10)

	orig, err := env.Criteria.Create(ctx, owner, ev.ID, criterion.NewCriterion{Description: "Originalidad", Weight: 30})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	viab, err := env.Criteria.Create(ctx, owner, ev.ID, criterion.NewCriterion{Description: "Viabilidad", Weight: 40})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, evalP := env.Admit(t, owner, ev.ID, event.TrackEvaluator, "eva")
	part, _ := env.Admit(t, owner, ev.ID, event.TrackParticipant, "pablo")
	if _, err = env.Criteria.Grade(ctx, evalP, ev.ID, criterion.GradeRequest{
		CriterionID: orig.ID, ParticipantID: part.SubjectID, Value: 80,
	}); err != nil {
		t.Fatalf("Grade() error = %v", err)
	}

	if err = env.Criteria.Delete(ctx, owner, ev.ID, orig.ID); errors.Cause(err) != criterion.ErrInUse {
		t.Errorf("Delete() error = %v, want %v", err, criterion.ErrInUse)
	}
	if _, err = env.CriterionRepo.GetCriterion(ctx, orig.ID); err != nil {
		t.Errorf("criterion in use was removed: %v", err)
	}
	if err = env.Criteria.Delete(ctx, owner, ev.ID, viab.ID); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	listed, err := env.Criteria.Criteria(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Criteria() error = %v", err)
	}
	if len(listed) != 1 || listed[0].ID != orig.ID {
		t.Errorf("Criteria() = %v, want only %v", listed, orig.Description)
	}
}

func TestService_CriteriaRunningSum(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	ev := env.CreateEvent(t, owner, 10)

	for _, nc := range []criterion.NewCriterion{
		{Description: "Claridad", Weight: 10},
		{Description: "Viabilidad", Weight: 40},
		{Description: "Originalidad", Weight: 30},
	} {
		if _, err := env.Criteria.Create(ctx, owner, ev.ID, nc); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	listed, err := env.Criteria.Criteria(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Criteria() error = %v", err)
	}
	want := []struct {
		desc string
		sum  float64
	}{{"Viabilidad", 40}, {"Originalidad", 70}, {"Claridad", 80}}
	if len(listed) != len(want) {
		t.Fatalf("Criteria() = %d criteria, want %d", len(listed), len(want))
	}
	for i, w := range want {
		if listed[i].Description != w.desc || listed[i].RunningSum != w.sum {
			t.Errorf("Criteria()[%d] = %v/%v, want %v/%v", i, listed[i].Description, listed[i].RunningSum, w.desc, w.sum)
		}
	}

	// weights can be updated but never to a non-positive value
	zero := 0.0
	if _, err = env.Criteria.Update(ctx, owner, ev.ID, listed[0].ID, criterion.UpdateCriterion{Weight: &zero}); errors.Cause(err) != criterion.ErrWeightNonPositive {
		t.Errorf("Update() error = %v, want %v", err, criterion.ErrWeightNonPositive)
	}
	five := 5.0
	c, err := env.Criteria.Update(ctx, owner, ev.ID, listed[0].ID, criterion.UpdateCriterion{Weight: &five})
	if err != nil || c.Weight != 5 {
		t.Errorf("Update() = %v, %v; want weight 5", c.Weight, err)
	}
}

func TestService_Grade(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	ev := env.CreateEvent(t, owner, 10)

	c, err := env.Criteria.Create(ctx, owner, ev.ID, criterion.NewCriterion{Description: "Originalidad", Weight: 30})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, evalP := env.Admit(t, owner, ev.ID, event.TrackEvaluator, "eva")
	_, pendingEvalP := env.Enroll(t, ev.ID, event.TrackEvaluator, "pend")
	part, partP := env.Admit(t, owner, ev.ID, event.TrackParticipant, "pablo")
	pendingPart, _ := env.Enroll(t, ev.ID, event.TrackParticipant, "pedro")

	tests := []struct {
		name     string
		p        user.Principal
		gr       criterion.GradeRequest
		wantKind core.Kind
	}{
		{"approved evaluator", evalP, criterion.GradeRequest{CriterionID: c.ID, ParticipantID: part.SubjectID, Value: 70}, core.KindUnknown},
		{"regrade overwrites", evalP, criterion.GradeRequest{CriterionID: c.ID, ParticipantID: part.SubjectID, Value: 90}, core.KindUnknown},
		{"value out of range", evalP, criterion.GradeRequest{CriterionID: c.ID, ParticipantID: part.SubjectID, Value: 101}, core.KindFieldInvalid},
		{"pending evaluator", pendingEvalP, criterion.GradeRequest{CriterionID: c.ID, ParticipantID: part.SubjectID, Value: 50}, core.KindForbidden},
		{"participant", partP, criterion.GradeRequest{CriterionID: c.ID, ParticipantID: part.SubjectID, Value: 50}, core.KindForbidden},
		{"pending participant", evalP, criterion.GradeRequest{CriterionID: c.ID, ParticipantID: pendingPart.SubjectID, Value: 50}, core.KindFieldInvalid},
		{"unknown criterion", evalP, criterion.GradeRequest{CriterionID: "nope", ParticipantID: part.SubjectID, Value: 50}, core.KindNotFound},
		{"anonymous", user.Principal{}, criterion.GradeRequest{CriterionID: c.ID, ParticipantID: part.SubjectID, Value: 50}, core.KindNotAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Criteria.Grade(ctx, tt.p, ev.ID, tt.gr)
			if got := core.KindOf(err); got != tt.wantKind {
				t.Errorf("Grade() error = %v, want kind %v", err, tt.wantKind)
			}
		})
	}

	grades, err := env.Criteria.Grades(ctx, owner, ev.ID)
	if err != nil {
		t.Fatalf("Grades() error = %v", err)
	}
	if len(grades) != 1 || grades[0].Value != 90 {
		t.Errorf("Grades() = %+v, want a single grade of 90", grades)
	}
	own, err := env.Criteria.Grades(ctx, evalP, ev.ID)
	if err != nil || len(own) != 1 {
		t.Errorf("Grades() by evaluator = %d, %v; want 1", len(own), err)
	}
	if _, err = env.Criteria.Grades(ctx, partP, ev.ID); !core.IsKind(err, core.KindForbidden) {
		t.Errorf("Grades() by participant error = %v, want kind %v", err, core.KindForbidden)
	}

	// grading closes with the event
	env.SetEventState(t, ev.ID, event.StateFinalized)
	_, err = env.Criteria.Grade(ctx, evalP, ev.ID, criterion.GradeRequest{CriterionID: c.ID, ParticipantID: part.SubjectID, Value: 10})
	if !core.IsKind(err, core.KindEventClosed) {
		t.Errorf("Grade() on finalized event error = %v, want kind %v", err, core.KindEventClosed)
	}
}

func TestService_Ranking(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	ev := env.CreateEvent(t, owner, 10)

	orig, _ := env.Criteria.Create(ctx, owner, ev.ID, criterion.NewCriterion{Description: "Originalidad", Weight: 30})
	viab, _ := env.Criteria.Create(ctx, owner, ev.ID, criterion.NewCriterion{Description: "Viabilidad", Weight: 40})

	_, eval1 := env.Admit(t, owner, ev.ID, event.TrackEvaluator, "eva")
	_, eval2 := env.Admit(t, owner, ev.ID, event.TrackEvaluator, "ema")
	ana, _ := env.Admit(t, owner, ev.ID, event.TrackParticipant, "ana")
	beto, _ := env.Admit(t, owner, ev.ID, event.TrackParticipant, "beto")
	ciro, _ := env.Admit(t, owner, ev.ID, event.TrackParticipant, "ciro")
	dora, _ := env.Admit(t, owner, ev.ID, event.TrackParticipant, "dora")
	env.Enroll(t, ev.ID, event.TrackParticipant, "ausente")

	grade := func(p user.Principal, c criterion.Criterion, enrSubject string, v int) {
		t.Helper()
		if _, err := env.Criteria.Grade(ctx, p, ev.ID, criterion.GradeRequest{CriterionID: c.ID, ParticipantID: enrSubject, Value: v}); err != nil {
			t.Fatalf("Grade() error = %v", err)
		}
	}
	grade(eval1, orig, ana.SubjectID, 80) // mean 70 * 0.3 = 21
	grade(eval2, orig, ana.SubjectID, 60)
	grade(eval1, viab, ana.SubjectID, 90) // 36
	grade(eval1, orig, beto.SubjectID, 100) // 30
	grade(eval1, viab, ciro.SubjectID, 100) // 40

	standings, err := env.Criteria.Ranking(ctx, owner, ev.ID)
	if err != nil {
		t.Fatalf("Ranking() error = %v", err)
	}
	want := []struct {
		id    string
		score float64
	}{{ana.SubjectID, 57}, {ciro.SubjectID, 40}, {beto.SubjectID, 30}, {dora.SubjectID, 0}}
	if len(standings) != len(want) {
		t.Fatalf("Ranking() = %d standings, want %d", len(standings), len(want))
	}
	for i, w := range want {
		if standings[i].ParticipantID != w.id || standings[i].Score != w.score || standings[i].Position != i+1 {
			t.Errorf("Ranking()[%d] = %+v, want %v with %v", i, standings[i], w.id, w.score)
		}
	}

	podium, err := env.Criteria.Podium(ctx, owner, ev.ID)
	if err != nil {
		t.Fatalf("Podium() error = %v", err)
	}
	if len(podium) != criterion.PodiumSize || podium[0].ParticipantID != ana.SubjectID {
		t.Errorf("Podium() = %+v", podium)
	}
	if _, err = env.Criteria.Ranking(ctx, eval1, ev.ID); !core.IsKind(err, core.KindForbidden) {
		t.Errorf("Ranking() by evaluator error = %v, want kind %v", err, core.KindForbidden)
	}
}

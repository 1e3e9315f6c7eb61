package enrollment

import (
	"testing"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/event"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		in      string
		want    State
		wantErr bool
	}{
		{in: "Aprobado", want: StateAprobado},
		{in: "aceptado", want: StateAprobado},
		{in: " Aceptado ", want: StateAprobado},
		{in: "pendiente de revisión", want: StatePendienteRevision},
		{in: "Confirmado", want: StateConfirmado},
		{in: "Borrador", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseState(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseState() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name     string
		track    event.Track
		from     State
		op       op
		want     State
		wantKind core.Kind
	}{
		{"participant approve", event.TrackParticipant, StatePreinscrito, opApprove, StateAprobado, core.KindUnknown},
		{"participant confirm", event.TrackParticipant, StateAprobado, opConfirm, StateConfirmado, core.KindUnknown},
		{"participant cancel", event.TrackParticipant, StatePreinscrito, opCancel, "", core.KindInvalidTransition},
		{"participant reject approved", event.TrackParticipant, StateAprobado, opReject, "", core.KindStateFinal},
		{"evaluator approve under review", event.TrackEvaluator, StatePendienteRevision, opApprove, StateAprobado, core.KindUnknown},
		{"evaluator confirm", event.TrackEvaluator, StateAprobado, opConfirm, "", core.KindInvalidTransition},
		{"assistant validate payment", event.TrackAssistant, StatePendiente, opApprove, StateConfirmado, core.KindUnknown},
		{"assistant cancel", event.TrackAssistant, StateAprobado, opCancel, StateCancelado, core.KindUnknown},
		{"rejected is final", event.TrackAssistant, StateRechazado, opApprove, "", core.KindStateFinal},
		{"cancelled is final", event.TrackAssistant, StateCancelado, opCancel, "", core.KindStateFinal},
		{"confirmed is final", event.TrackParticipant, StateConfirmado, opConfirm, "", core.KindStateFinal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := next(tt.track, tt.from, tt.op)
			if kind := core.KindOf(err); kind != tt.wantKind {
				t.Fatalf("next() error = %v, want kind %v", err, tt.wantKind)
			}
			if got != tt.want {
				t.Errorf("next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInitialState(t *testing.T) {
	tests := []struct {
		track   event.Track
		hasCost bool
		want    State
	}{
		{event.TrackParticipant, true, StatePreinscrito},
		{event.TrackEvaluator, false, StatePreinscrito},
		{event.TrackAssistant, false, StateAprobado},
		{event.TrackAssistant, true, StatePendiente},
	}
	for _, tt := range tests {
		if got := InitialState(tt.track, tt.hasCost); got != tt.want {
			t.Errorf("InitialState(%v, %v) = %v, want %v", tt.track, tt.hasCost, got, tt.want)
		}
	}
}

func TestConfirmedState(t *testing.T) {
	tests := []struct {
		track event.Track
		state State
		want  bool
	}{
		{event.TrackParticipant, StateAprobado, true},
		{event.TrackParticipant, StateConfirmado, true},
		{event.TrackParticipant, StatePreinscrito, false},
		{event.TrackEvaluator, StateAprobado, true},
		{event.TrackAssistant, StateAprobado, false},
		{event.TrackAssistant, StateConfirmado, true},
	}
	for _, tt := range tests {
		if got := ConfirmedState(tt.track, tt.state); got != tt.want {
			t.Errorf("ConfirmedState(%v, %v) = %v, want %v", tt.track, tt.state, got, tt.want)
		}
	}
}

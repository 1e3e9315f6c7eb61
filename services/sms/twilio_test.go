package smssvc

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{name: "formatted local", phone: "(300) 123-4567", want: "+573001234567"},
		{name: "leading zero", phone: "03001234567", want: "+573001234567"},
		{name: "international", phone: "+1 555 010 9999", want: "+15550109999"},
		{name: "empty", phone: " - ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.phone, "+57"); got != tt.want {
				t.Errorf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

package assessment

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusInReview, true},
		{StatusPending, StatusValidated, true},
		{StatusInReview, StatusRequiresReferral, true},
		{StatusInReview, StatusRejected, true},
		{StatusInReview, StatusPending, false},
		{StatusValidated, StatusRejected, false},
		{StatusRejected, StatusValidated, false},
		{StatusRequiresReferral, StatusInReview, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestLevelLabel(t *testing.T) {
	for in, want := range map[string]string{"high": "High", "low": "Low", "": "Unknown"} {
		if got := levelLabel(in); got != want {
			t.Errorf("levelLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

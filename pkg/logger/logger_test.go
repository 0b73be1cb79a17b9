package logger

import "testing"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"info", INFO},
		{"warn", WARN},
		{"error", ERROR},
		{"", INFO},
		{"verbose", INFO},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRateLimiterGuardsOutput(t *testing.T) {
	l := New("error")
	// Burst is bounded; hammering the logger must not panic or block.
	for i := 0; i < 1000; i++ {
		l.Error("endpoint unreachable", nil, "attempt", i)
	}
}

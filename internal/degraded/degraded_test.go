package degraded

import (
	"testing"
	"time"
)

func TestErrorRate_Empty(t *testing.T) {
	Reset()
	errors, total := ErrorRate(time.Minute)
	if errors != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", errors, total)
	}
}

func TestErrorRate_CountsPrimaryOutcomes(t *testing.T) {
	Reset()
	defer Reset()
	RecordSuccess()
	RecordSuccess()
	RecordError()
	errors, total := ErrorRate(time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
}

func TestBreached(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		errors    int
		window    time.Duration
		pct       int
		want      bool
	}{
		{name: "no outcomes", window: time.Minute, pct: 50, want: false},
		{name: "exactly at threshold", successes: 1, errors: 1, window: time.Minute, pct: 50, want: true},
		{name: "below threshold", successes: 2, errors: 1, window: time.Minute, pct: 50, want: false},
		{name: "all errors", errors: 3, window: time.Minute, pct: 100, want: true},
		{name: "disabled by pct", errors: 3, window: time.Minute, pct: 0, want: false},
		{name: "disabled by window", errors: 3, pct: 50, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Reset()
			defer Reset()
			for i := 0; i < tt.successes; i++ {
				RecordSuccess()
			}
			for i := 0; i < tt.errors; i++ {
				RecordError()
			}
			if got := Breached(tt.window, tt.pct); got != tt.want {
				t.Errorf("Breached(%v, %d) = %v, want %v", tt.window, tt.pct, got, tt.want)
			}
		})
	}
}

func TestReset(t *testing.T) {
	RecordError()
	RecordSuccess()
	Reset()
	errors, total := ErrorRate(time.Minute)
	if errors != 0 || total != 0 {
		t.Errorf("After Reset, ErrorRate() = (%d, %d), want (0, 0)", errors, total)
	}
}

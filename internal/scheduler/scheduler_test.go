package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

type fakeRefresher struct {
	active bool
	calls  atomic.Int32
}

func (f *fakeRefresher) Refresh(context.Context) (uint64, bool) {
	n := f.calls.Add(1)
	if !f.active {
		return 0, false
	}
	return uint64(n), true
}

func TestScheduler_RefreshCountsOnlyIssuedGenerations(t *testing.T) {
	tests := []struct {
		name      string
		active    bool
		wantDelta float64
	}{
		{"active location", true, 1},
		{"no active location", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRefresher{active: tt.active}
			s := New(f, time.Minute, nil)

			before := testutil.ToFloat64(observability.ScheduledRefreshesTotal)
			s.refresh()
			got := testutil.ToFloat64(observability.ScheduledRefreshesTotal) - before

			if f.calls.Load() != 1 {
				t.Errorf("Refresh calls = %d, want 1", f.calls.Load())
			}
			if got != tt.wantDelta {
				t.Errorf("scheduled refreshes delta = %v, want %v", got, tt.wantDelta)
			}
		})
	}
}

func TestScheduler_StartRunsPeriodically(t *testing.T) {
	f := &fakeRefresher{active: true}
	s := New(f, 20*time.Millisecond, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.calls.Load() < 2 {
		t.Errorf("Refresh calls = %d, want at least 2", f.calls.Load())
	}
}

func TestScheduler_DisabledWithoutInterval(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := &fakeRefresher{active: true}
	s := New(f, 0, zap.New(core))
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	time.Sleep(30 * time.Millisecond)
	if f.calls.Load() != 0 {
		t.Errorf("Refresh calls = %d, want 0", f.calls.Load())
	}
	if s.scheduler.Len() != 0 {
		t.Errorf("jobs = %d, want 0", s.scheduler.Len())
	}
	if logs.FilterMessageSnippet("periodic refresh disabled").Len() != 1 {
		t.Error("expected a log entry noting refresh is disabled")
	}
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSessions struct {
	maxIdle time.Duration
	closed  int
}

func (f *fakeSessions) CleanupIdle(maxIdle time.Duration) int {
	f.maxIdle = maxIdle
	return f.closed
}

type fakeEditor struct {
	before  time.Time
	removed int64
	err     error
}

func (f *fakeEditor) DeleteInactive(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.removed, f.err
}

type fakeExecutions struct {
	maxAge time.Duration
	pruned int
}

func (f *fakeExecutions) Prune(maxAge time.Duration) int {
	f.maxAge = maxAge
	return f.pruned
}

// --- Cron Tests ---

func TestValidateCronExpr(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 3 * * 1", false},
		{"@hourly", false},
		{"* * *", true},
		{"not a cron", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpr(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2025, 1, 1, 10, 2, 30, 0, time.UTC)
	next, err := NextRun(DefaultSpec, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

// --- Janitor Tests ---

func TestJanitor_Tick(t *testing.T) {
	sessions := &fakeSessions{closed: 2}
	editor := &fakeEditor{removed: 3}
	execs := &fakeExecutions{pruned: 4}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	j := New(Config{
		Sessions:        sessions,
		Editor:          editor,
		Executions:      execs,
		SessionIdle:     10 * time.Minute,
		EditorRetention: 2 * time.Hour,
	})
	j.now = func() time.Time { return now }

	sw := j.Tick(context.Background())

	if sw.BrowserSessions != 2 || sw.EditorSessions != 3 || sw.Executions != 4 {
		t.Errorf("unexpected sweep: %+v", sw)
	}
	if len(sw.Errors) != 0 {
		t.Errorf("unexpected errors: %v", sw.Errors)
	}
	if sessions.maxIdle != 10*time.Minute {
		t.Errorf("expected idle 10m, got %v", sessions.maxIdle)
	}
	if !editor.before.Equal(now.Add(-2 * time.Hour)) {
		t.Errorf("expected cutoff %v, got %v", now.Add(-2*time.Hour), editor.before)
	}
	if execs.maxAge != DefaultRecordRetention {
		t.Errorf("expected default retention, got %v", execs.maxAge)
	}
}

func TestJanitor_TickContinuesAfterError(t *testing.T) {
	execs := &fakeExecutions{pruned: 1}
	j := New(Config{
		Editor:     &fakeEditor{err: errors.New("connection refused")},
		Executions: execs,
	})

	sw := j.Tick(context.Background())

	if len(sw.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(sw.Errors))
	}
	if sw.Executions != 1 {
		t.Errorf("expected executions job to run, got %d", sw.Executions)
	}
}

func TestJanitor_TickSkipsMissingSweepers(t *testing.T) {
	j := New(Config{})
	sw := j.Tick(context.Background())
	if sw.BrowserSessions != 0 || sw.EditorSessions != 0 || sw.Executions != 0 {
		t.Errorf("expected empty sweep, got %+v", sw)
	}
}

func TestJanitor_RunInvalidSpec(t *testing.T) {
	j := New(Config{Spec: "bad"})
	if err := j.Run(context.Background()); err == nil {
		t.Error("expected error for invalid spec")
	}
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	j := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

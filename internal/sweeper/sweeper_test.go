package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSession(t *testing.T, store *storage.Store, userID, token string, expires time.Time) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.UserByID(ctx, userID); errors.Is(err, auth.ErrNoUser) {
		now := time.Now().UTC()
		if err := store.CreateUser(ctx, auth.User{
			ID: userID, Email: userID + "@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}
	if err := store.CreateSession(ctx, auth.Session{
		Token: token, UserID: userID, CreatedAt: expires.Add(-time.Hour), ExpiresAt: expires,
	}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedSession(t, store, "u1", "old", now.Add(-time.Minute))
	seedSession(t, store, "u1", "live", now.Add(time.Hour))

	w := NewWorker(store, time.Minute)
	w.now = func() time.Time { return now }

	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}

	ctx := context.Background()
	if _, err := store.SessionByToken(ctx, "old"); !errors.Is(err, auth.ErrInvalidSession) {
		t.Errorf("expired session still present: %v", err)
	}
	if _, err := store.SessionByToken(ctx, "live"); err != nil {
		t.Errorf("live session removed: %v", err)
	}

	n, err = w.RunOnce(ctx)
	if err != nil || n != 0 {
		t.Errorf("second sweep = %d, %v; want 0, nil", n, err)
	}
}

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (c *countingPurger) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	c.calls.Add(1)
	return 0, c.err
}

func TestRunOnce_Error(t *testing.T) {
	w := NewWorker(&countingPurger{err: errors.New("db locked")}, time.Minute)
	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRun_SweepsUntilCancelled(t *testing.T) {
	p := &countingPurger{}
	w := NewWorker(p, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d sweeps before deadline", p.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_KeepsGoingAfterError(t *testing.T) {
	p := &countingPurger{err: errors.New("boom")}
	w := NewWorker(p, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if p.calls.Load() < 2 {
		t.Errorf("expected repeated sweeps despite errors, got %d", p.calls.Load())
	}
}

func TestNewWorker_DefaultInterval(t *testing.T) {
	w := NewWorker(&countingPurger{}, 0)
	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := w.next(from); !got.Equal(from.Add(time.Hour)) {
		t.Errorf("next = %v, want %v", got, from.Add(time.Hour))
	}
}

func TestNewScheduledWorker(t *testing.T) {
	from := time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"@hourly", time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)},
		{"@every 30m", from.Add(30 * time.Minute)},
		{"0 3 * * *", time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		w, err := NewScheduledWorker(&countingPurger{}, tt.expr)
		if err != nil {
			t.Fatalf("NewScheduledWorker(%q): %v", tt.expr, err)
		}
		if got := w.next(from); !got.Equal(tt.want) {
			t.Errorf("%q: next = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestNewScheduledWorker_Invalid(t *testing.T) {
	if _, err := NewScheduledWorker(&countingPurger{}, "every now and then"); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}

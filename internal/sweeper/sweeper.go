// Package sweeper removes expired sign-in sessions in the background.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SessionPurger deletes sessions that expired before cutoff.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Worker periodically purges expired sessions.
type Worker struct {
	store  SessionPurger
	next   func(from time.Time) time.Time
	now    func() time.Time
	logger *slog.Logger
}

// NewWorker creates a Worker that sweeps every interval. If interval is <= 0,
// it defaults to one hour.
func NewWorker(store SessionPurger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Worker{
		store:  store,
		next:   func(from time.Time) time.Time { return from.Add(interval) },
		now:    time.Now,
		logger: slog.Default(),
	}
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduledWorker creates a Worker driven by a five-field cron expression
// or a descriptor such as "@hourly" or "@every 30m".
func NewScheduledWorker(store SessionPurger, expr string) (*Worker, error) {
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing sweep schedule %q: %w", expr, err)
	}
	w := NewWorker(store, 0)
	w.next = schedule.Next
	return w, nil
}

// Run sweeps once immediately, then on schedule until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("session sweep failed", "error", err)
		}

		now := w.now()
		timer := time.NewTimer(w.next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce deletes every session expired as of now and returns how many went.
func (w *Worker) RunOnce(ctx context.Context) (int64, error) {
	n, err := w.store.DeleteExpiredSessions(ctx, w.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	if n > 0 {
		w.logger.Info("expired sessions removed", "count", n)
	}
	return n, nil
}

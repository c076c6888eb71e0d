// Package tracker holds the signed-in owner's job records in memory together
// with the loading and error flags the CLI and MCP surfaces display.
package tracker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/gateway"
	"github.com/kalambet/jobtrack/internal/jobs"
)

// User-facing messages stored in Err after a failed operation.
const (
	MsgLoadFailed   = "Failed to load jobs"
	MsgAddFailed    = "Failed to add job"
	MsgUpdateFailed = "Failed to update job"
	MsgDeleteFailed = "Failed to delete job"
)

// State is a point-in-time copy of the store.
type State struct {
	Jobs    []jobs.Job `json:"jobs"`
	Loading bool       `json:"loading"`
	Error   string     `json:"error,omitempty"`
}

// Store caches one owner's records. Each operation makes a single gateway
// round-trip and applies the response when it lands; there is no queueing,
// so of two overlapping calls the later response wins. The mutex only keeps
// the fields consistent for concurrent readers.
type Store struct {
	gw     gateway.Gateway
	owners gateway.OwnerSource
	logger *slog.Logger

	mu      sync.Mutex
	jobs    []jobs.Job
	loading bool
	err     string
}

// New creates an empty store for the session that owners describes.
func New(gw gateway.Gateway, owners gateway.OwnerSource) *Store {
	return &Store{
		gw:     gw,
		owners: owners,
		logger: slog.Default(),
		jobs:   []jobs.Job{},
	}
}

func (s *Store) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()
}

func (s *Store) fail(msg string, err error) {
	s.mu.Lock()
	s.loading = false
	s.err = msg
	s.mu.Unlock()
	s.logger.Warn(msg, "error", err)
}

// Load replaces the cache with the owner's records. Without a signed-in
// owner it empties the cache and reports no error. A failed load keeps the
// previous records and sets Err.
func (s *Store) Load(ctx context.Context) {
	s.begin()

	owner := s.owners.OwnerID(ctx)
	if owner == "" {
		s.mu.Lock()
		s.jobs = []jobs.Job{}
		s.loading = false
		s.mu.Unlock()
		return
	}

	list, err := s.gw.ListByOwner(ctx, owner)
	if err != nil {
		s.fail(MsgLoadFailed, err)
		return
	}

	s.mu.Lock()
	s.jobs = list
	s.loading = false
	s.mu.Unlock()
	s.logger.Debug("jobs loaded", "owner", owner, "count", len(list))
}

// Add creates a record and puts it first in the cache without re-sorting.
func (s *Store) Add(ctx context.Context, f jobs.FormData) (jobs.Job, error) {
	s.begin()

	owner := s.owners.OwnerID(ctx)
	if owner == "" {
		s.fail(MsgAddFailed, gateway.ErrNotAuthenticated)
		return jobs.Job{}, gateway.ErrNotAuthenticated
	}

	created, err := s.gw.Create(ctx, owner, f)
	if err != nil {
		s.fail(MsgAddFailed, err)
		return jobs.Job{}, err
	}

	s.mu.Lock()
	next := make([]jobs.Job, 0, len(s.jobs)+1)
	next = append(next, created)
	s.jobs = append(next, s.jobs...)
	s.loading = false
	s.mu.Unlock()
	return created, nil
}

// Update replaces the cached record with the backend's copy, keeping its
// position.
func (s *Store) Update(ctx context.Context, id string, f jobs.FormData) (jobs.Job, error) {
	s.begin()

	updated, err := s.gw.Update(ctx, id, f)
	if err != nil {
		s.fail(MsgUpdateFailed, err)
		return jobs.Job{}, err
	}

	s.mu.Lock()
	next := make([]jobs.Job, len(s.jobs))
	for i, j := range s.jobs {
		if j.ID == id {
			next[i] = updated
		} else {
			next[i] = j
		}
	}
	s.jobs = next
	s.loading = false
	s.mu.Unlock()
	return updated, nil
}

// Delete removes the record from the backend and the cache.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.begin()

	if err := s.gw.Delete(ctx, id); err != nil {
		s.fail(MsgDeleteFailed, err)
		return err
	}

	s.mu.Lock()
	next := make([]jobs.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.ID != id {
			next = append(next, j)
		}
	}
	s.jobs = next
	s.loading = false
	s.mu.Unlock()
	return nil
}

// Clear resets the store to its initial state.
func (s *Store) Clear() {
	s.mu.Lock()
	s.jobs = []jobs.Job{}
	s.loading = false
	s.err = ""
	s.mu.Unlock()
}

// HandleAuthEvent loads on sign-in and clears on sign-out.
func (s *Store) HandleAuthEvent(ctx context.Context, e auth.Event) {
	switch e {
	case auth.SignedIn:
		s.Load(ctx)
	case auth.SignedOut:
		s.Clear()
	}
}

// Jobs returns a copy of the cached records in cache order.
func (s *Store) Jobs() []jobs.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jobs.Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Find returns the cached record with id.
func (s *Store) Find(id string) (jobs.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return jobs.Job{}, false
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err is the message of the last failed operation, or "".
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jobs.Job, len(s.jobs))
	copy(out, s.jobs)
	return State{Jobs: out, Loading: s.loading, Error: s.err}
}

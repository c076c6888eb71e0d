package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned by a ProfileStore for an unknown user.
	ErrNotFound  = errors.New("profile not found")
	ErrEmptyName = errors.New("full name cannot be empty")
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store and postgres.Store.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	UpdateProfile(ctx context.Context, userID string, u Update) (Profile, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type entry struct {
	p        Profile
	cachedAt time.Time
}

// Manager caches profiles for ttl. Concurrent misses for one user share a
// single store read.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	loads singleflight.Group

	mu    sync.RWMutex
	cache map[string]entry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, time.Minute)
}

func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{store: store, clock: clock, ttl: ttl, cache: map[string]entry{}}
}

func (m *Manager) cached(userID string) (Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cache[userID]
	if !ok || !m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		return Profile{}, false
	}
	return e.p, true
}

func (m *Manager) remember(userID string, p Profile) {
	m.mu.Lock()
	m.cache[userID] = entry{p: p, cachedAt: m.clock.Now()}
	m.mu.Unlock()
}

// Get returns the profile of userID from cache or storage.
func (m *Manager) Get(ctx context.Context, userID string) (Profile, error) {
	if p, ok := m.cached(userID); ok {
		return p, nil
	}
	v, err, _ := m.loads.Do(userID, func() (any, error) {
		if p, ok := m.cached(userID); ok {
			return p, nil
		}
		p, err := m.store.GetProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		m.remember(userID, p)
		return p, nil
	})
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile %s: %w", userID, err)
	}
	return v.(Profile), nil
}

// Update trims and persists the change, then caches the stored result. A
// failed update evicts the user so the next Get rereads storage.
func (m *Manager) Update(ctx context.Context, userID string, u Update) (Profile, error) {
	if u.FullName != nil {
		name := strings.TrimSpace(*u.FullName)
		if name == "" {
			return Profile{}, ErrEmptyName
		}
		u.FullName = &name
	}

	p, err := m.store.UpdateProfile(ctx, userID, u)
	if err != nil {
		m.Forget(userID)
		return Profile{}, fmt.Errorf("updating profile %s: %w", userID, err)
	}
	m.remember(userID, p)
	return p, nil
}

// Forget drops userID from the cache, e.g. on sign-out.
func (m *Manager) Forget(userID string) {
	m.mu.Lock()
	delete(m.cache, userID)
	m.mu.Unlock()
}

// Initials returns the upper-cased first letters of the first two words of
// fullName, or "U" when there are none.
func Initials(fullName string) string {
	var b strings.Builder
	for i, word := range strings.Fields(fullName) {
		if i == 2 {
			break
		}
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
	}
	if b.Len() == 0 {
		return "U"
	}
	return b.String()
}

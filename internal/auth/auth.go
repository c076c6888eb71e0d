// Package auth implements email/password accounts and bearer sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const minPasswordLen = 6

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrRateLimited        = errors.New("too many sign-in attempts")
	// ErrNoUser is returned by a Store when no user matches.
	ErrNoUser = errors.New("user not found")
)

// InputError reports an unusable sign-up field.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string { return e.Field + " " + e.Message }

// User is an account. PasswordHash never leaves the backend.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	AvatarURL    string    `json:"avatarUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session binds a bearer token to a user until ExpiresAt.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists users and sessions. CreateUser returns ErrEmailTaken for a
// duplicate email; lookups return ErrNoUser or ErrInvalidSession when absent.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	CreateSession(ctx context.Context, s Session) error
	SessionByToken(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// Service authenticates users against a Store.
type Service struct {
	store      Store
	sessionTTL time.Duration
	limiter    *emailLimiter
	now        func() time.Time
	logger     *slog.Logger
}

// NewService creates a Service. signInPerMinute bounds sign-in attempts per
// email; zero disables the limit.
func NewService(store Store, sessionTTL time.Duration, signInPerMinute int) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &Service{
		store:      store,
		sessionTTL: sessionTTL,
		limiter:    newEmailLimiter(signInPerMinute),
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a user and opens a session for them.
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (User, Session, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, Session{}, &InputError{Field: "email", Message: "is not a valid address"}
	}
	if len(password) < minPasswordLen {
		return User{}, Session{}, &InputError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return User{}, Session{}, &InputError{Field: "fullName", Message: "is required"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, Session{}, fmt.Errorf("hashing password: %w", err)
	}
	now := s.now().UTC()
	u := User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, Session{}, ErrEmailTaken
		}
		return User{}, Session{}, fmt.Errorf("creating user: %w", err)
	}

	sess, err := s.openSession(ctx, u.ID)
	if err != nil {
		return User{}, Session{}, err
	}
	s.logger.Info("user signed up", "user_id", u.ID)
	return u, sess, nil
}

// SignIn checks credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (User, Session, error) {
	email = NormalizeEmail(email)
	if !s.limiter.allow(email) {
		return User{}, Session{}, ErrRateLimited
	}

	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNoUser) {
		return User{}, Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, Session{}, fmt.Errorf("looking up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, Session{}, ErrInvalidCredentials
	}

	sess, err := s.openSession(ctx, u.ID)
	if err != nil {
		return User{}, Session{}, err
	}
	return u, sess, nil
}

// SignOut ends the session. Unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if err := s.store.DeleteSession(ctx, token); err != nil && !errors.Is(err, ErrInvalidSession) {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidSession
	}
	sess, err := s.store.SessionByToken(ctx, token)
	if errors.Is(err, ErrInvalidSession) {
		return User{}, ErrInvalidSession
	}
	if err != nil {
		return User{}, fmt.Errorf("looking up session: %w", err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		return User{}, ErrInvalidSession
	}
	u, err := s.store.UserByID(ctx, sess.UserID)
	if errors.Is(err, ErrNoUser) {
		return User{}, ErrInvalidSession
	}
	if err != nil {
		return User{}, fmt.Errorf("looking up user: %w", err)
	}
	return u, nil
}

func (s *Service) openSession(ctx context.Context, userID string) (Session, error) {
	now := s.now().UTC()
	sess := Session{
		Token:     uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// emailLimiter keeps one token bucket per email address.
type emailLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

func newEmailLimiter(perMinute int) *emailLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &emailLimiter{
		m: make(map[string]*rate.Limiter),
		r: rate.Limit(float64(perMinute) / 60),
		b: perMinute,
	}
}

func (l *emailLimiter) allow(email string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.m[email]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.m[email] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

package client

import (
	"context"
	"errors"
	"sync"

	"github.com/kalambet/jobtrack/internal/auth"
)

// Session tracks who is signed in on this client and announces changes.
// It implements gateway.OwnerSource.
type Session struct {
	client *Client
	events auth.Notifier

	mu   sync.RWMutex
	user *auth.User
}

func NewSession(c *Client) *Session {
	return &Session{client: c}
}

// Subscribe registers fn for SignedIn and SignedOut events.
func (s *Session) Subscribe(fn func(context.Context, auth.Event)) {
	s.events.Subscribe(fn)
}

// OwnerID returns the signed-in user's id, or "".
func (s *Session) OwnerID(context.Context) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

func (s *Session) User() (auth.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return auth.User{}, false
	}
	return *s.user, true
}

func (s *Session) signedIn(ctx context.Context, u auth.User, token string) {
	s.client.SetToken(token)
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	s.events.Publish(ctx, auth.SignedIn)
}

func (s *Session) signedOut(ctx context.Context) {
	s.client.SetToken("")
	s.mu.Lock()
	wasIn := s.user != nil
	s.user = nil
	s.mu.Unlock()
	if wasIn {
		s.events.Publish(ctx, auth.SignedOut)
	}
}

// SignUp creates an account and signs in with it.
func (s *Session) SignUp(ctx context.Context, email, password, fullName string) (AuthResult, error) {
	res, err := s.client.SignUp(ctx, email, password, fullName)
	if err != nil {
		return AuthResult{}, err
	}
	s.signedIn(ctx, res.User, res.Session.Token)
	return res, nil
}

func (s *Session) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	res, err := s.client.SignIn(ctx, email, password)
	if err != nil {
		return AuthResult{}, err
	}
	s.signedIn(ctx, res.User, res.Session.Token)
	return res, nil
}

// Resume restores a session from a saved token. A token the server no
// longer accepts returns auth.ErrInvalidSession and leaves the session
// signed out.
func (s *Session) Resume(ctx context.Context, token string) (auth.User, error) {
	if token == "" {
		return auth.User{}, auth.ErrInvalidSession
	}
	s.client.SetToken(token)
	u, err := s.client.CurrentUser(ctx)
	if err != nil {
		s.client.SetToken("")
		return auth.User{}, err
	}
	s.signedIn(ctx, u, token)
	return u, nil
}

// SignOut ends the session locally even when the server call fails; the
// server error is still returned. An already expired session is not an
// error.
func (s *Session) SignOut(ctx context.Context) error {
	err := s.client.SignOut(ctx)
	s.signedOut(ctx)
	if errors.Is(err, auth.ErrInvalidSession) {
		return nil
	}
	return err
}

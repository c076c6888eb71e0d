package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/client"
	"github.com/kalambet/jobtrack/internal/config"
	"github.com/kalambet/jobtrack/internal/tracker"
)

var errSignedOut = errors.New("not signed in, run `jobtrack auth signin` first")

// app is the client side of jobtrack: an HTTP gateway, the session that
// owns its token, and the job store fed by session events.
type app struct {
	client  *client.Client
	session *client.Session
	jobs    *tracker.Store
	secrets config.SecretStore
}

// newApp is replaced in tests.
var newApp = func() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return buildApp(cfg.ServerURL(), config.NewKeychain()), nil
}

func buildApp(serverURL string, secrets config.SecretStore, opts ...client.Option) *app {
	c := client.New(serverURL, opts...)
	sess := client.NewSession(c)
	store := tracker.New(c, sess)
	sess.Subscribe(store.HandleAuthEvent)
	return &app{client: c, session: sess, jobs: store, secrets: secrets}
}

// resume signs in with the saved token. The resulting SignedIn event loads
// the job list.
func (a *app) resume(ctx context.Context) (auth.User, error) {
	tok, err := config.GetSessionToken(a.secrets)
	if err != nil {
		return auth.User{}, fmt.Errorf("reading session token: %w", err)
	}
	if tok == "" {
		return auth.User{}, errSignedOut
	}
	u, err := a.session.Resume(ctx, tok)
	if errors.Is(err, auth.ErrInvalidSession) {
		if delErr := config.DeleteSessionToken(a.secrets); delErr != nil {
			printWarning("could not forget session token: %v", delErr)
		}
		return auth.User{}, errors.New("session expired, run `jobtrack auth signin` again")
	}
	return u, err
}

// loaded resumes the session and fails if the initial load did.
func (a *app) loaded(ctx context.Context) error {
	if _, err := a.resume(ctx); err != nil {
		return err
	}
	if msg := a.jobs.Err(); msg != "" {
		return errors.New(msg)
	}
	return nil
}

func (a *app) remember(token string) {
	if err := config.SetSessionToken(a.secrets, token); err != nil {
		printWarning("could not save session token: %v", err)
	}
}

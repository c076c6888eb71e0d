package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kalambet/jobtrack/internal/auth"
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.User, error)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// BearerAuth rejects requests without a live session and stores the user in
// the request context for auth.OwnerID.
func BearerAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r)
			if tok == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			u, err := a.Authenticate(r.Context(), tok)
			if err != nil {
				writeErr(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
		})
	}
}

// AuthResponse is returned by sign-up and sign-in.
type AuthResponse struct {
	User    auth.User    `json:"user"`
	Session auth.Session `json:"session"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func handleSignUp(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req signUpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		u, s, err := deps.Auth.SignUp(r.Context(), req.Email, req.Password, req.FullName)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, AuthResponse{User: u, Session: s})
	}
}

func handleSignIn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req signUpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		u, s, err := deps.Auth.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AuthResponse{User: u, Session: s})
	}
}

func handleSignOut(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Auth.SignOut(r.Context(), bearerToken(r)); err != nil {
			writeErr(w, err)
			return
		}
		if u, ok := auth.UserFrom(r.Context()); ok && deps.Profiles != nil {
			deps.Profiles.Forget(u.ID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "authentication_error", "not signed in")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

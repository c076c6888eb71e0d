package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/gateway"
	"github.com/kalambet/jobtrack/internal/jobs"
	"github.com/kalambet/jobtrack/internal/profile"
	"github.com/kalambet/jobtrack/internal/tracker"
)

func writeError(w http.ResponseWriter, code int, typ, param, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": typ, "param": param},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sampleJob(id string) jobs.Job {
	return jobs.Job{
		ID:            id,
		OwnerID:       "u1",
		CompanyName:   "Acme",
		PositionTitle: "Engineer",
		Status:        jobs.StatusApplied,
		DateApplied:   jobs.NewDate(2025, time.March, 1),
	}
}

func TestListByOwner(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/jobs", r.URL.Path)
		writeJSON(w, http.StatusOK, []jobs.Job{sampleJob("j1")})
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok"))
	list, err := c.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "j1", list[0].ID)
	assert.Equal(t, "2025-03-01", list[0].DateApplied.String())
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestListByOwner_EmptyAndSignedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, "null")
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok"))
	list, err := c.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = c.ListByOwner(context.Background(), "")
	assert.ErrorIs(t, err, gateway.ErrNotAuthenticated)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		param string
		check func(t *testing.T, err error)
	}{
		{"validation", http.StatusBadRequest, "companyName", func(t *testing.T, err error) {
			var ve *jobs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "companyName", ve.Field)
			assert.Equal(t, "is required", ve.Message)
		}},
		{"unauthenticated", http.StatusUnauthorized, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, gateway.ErrNotAuthenticated)
		}},
		{"not found", http.StatusNotFound, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, gateway.ErrNotFound)
		}},
		{"server", http.StatusBadGateway, "", func(t *testing.T, err error) {
			var se *gateway.StorageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "update job", se.Op)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				msg := "boom"
				if tt.param != "" {
					msg = tt.param + " is required"
				}
				writeError(w, tt.code, "x", tt.param, msg)
			}))
			defer srv.Close()

			_, err := New(srv.URL).Update(context.Background(), "j1", jobs.FormData{})
			tt.check(t, err)
		})
	}
}

func TestUnreachableServerIsStorageError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).Delete(context.Background(), "j1")
	var se *gateway.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "delete job", se.Op)
}

func TestCreateAndDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			var f jobs.FormData
			require.NoError(t, json.NewDecoder(r.Body).Decode(&f))
			j := jobs.FromRow(jobs.ToRow("u1", f))
			j.ID = "new"
			writeJSON(w, http.StatusCreated, j)
		case r.Method == http.MethodDelete && r.URL.Path == "/jobs/new":
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusNotFound, "not_found", "", "no route")
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok"))
	ctx := context.Background()
	f := sampleJob("").Form()
	f.FollowUpDate = jobs.NewDate(2025, time.March, 8).Ptr()

	j, err := c.Create(ctx, "u1", f)
	require.NoError(t, err)
	assert.Equal(t, "new", j.ID)
	require.NotNil(t, j.FollowUpDate)
	assert.Equal(t, "2025-03-08", j.FollowUpDate.String())

	require.NoError(t, c.Delete(ctx, "new"))
	assert.ErrorIs(t, c.Delete(ctx, "other"), gateway.ErrNotFound)
}

func TestUploadAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "cv", r.FormValue("kind"))
		assert.Equal(t, "scope-1", r.FormValue("scope"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "cv.pdf", hdr.Filename)
		assert.Equal(t, "application/pdf", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.4", string(data))
		writeJSON(w, http.StatusCreated, map[string]string{"url": "http://files/x"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok"))
	got, err := c.UploadAttachment(context.Background(), "u1", "scope-1",
		gateway.Attachment{Filename: "cv.pdf", Data: []byte("%PDF-1.4")}, gateway.KindCV)
	require.NoError(t, err)
	assert.Equal(t, "http://files/x", got)
}

func TestAuthErrors(t *testing.T) {
	tests := []struct {
		code int
		typ  string
		want error
	}{
		{http.StatusUnauthorized, "invalid_credentials", auth.ErrInvalidCredentials},
		{http.StatusUnauthorized, "authentication_error", auth.ErrInvalidSession},
		{http.StatusConflict, "conflict", auth.ErrEmailTaken},
		{http.StatusTooManyRequests, "rate_limited", auth.ErrRateLimited},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, tt.code, tt.typ, "", "nope")
		}))
		_, err := New(srv.URL).SignIn(context.Background(), "a@b.c", "secret")
		assert.ErrorIs(t, err, tt.want, "status %d type %s", tt.code, tt.typ)
		srv.Close()
	}
}

func TestSignUpInputError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "password", "password must be at least 6 characters")
	}))
	defer srv.Close()

	_, err := New(srv.URL).SignUp(context.Background(), "a@b.c", "123", "A")
	var ie *auth.InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "password", ie.Field)
}

func TestProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := profile.Profile{ID: "u1", Email: "ada@example.com", FullName: "Ada Lovelace"}
		if r.Method == http.MethodPatch {
			var u profile.Update
			require.NoError(t, json.NewDecoder(r.Body).Decode(&u))
			require.NotNil(t, u.FullName)
			assert.Nil(t, u.AvatarURL)
			p.FullName = *u.FullName
		}
		writeJSON(w, http.StatusOK, p)
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok"))
	p, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.FullName)

	name := "Ada King"
	p, err = c.UpdateProfile(context.Background(), profile.Update{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", p.FullName)
}

// fakeBackend serves just enough of the API for a session round trip.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	user := auth.User{ID: "u1", Email: "ada@example.com", FullName: "Ada"}
	mux := http.NewServeMux()
	authed := func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer tok-1" }

	mux.HandleFunc("/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, AuthResult{User: user, Session: auth.Session{Token: "tok-1", UserID: "u1"}})
	})
	mux.HandleFunc("/auth/user", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			writeError(w, http.StatusUnauthorized, "authentication_error", "", "invalid session")
			return
		}
		writeJSON(w, http.StatusOK, user)
	})
	mux.HandleFunc("/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			writeError(w, http.StatusUnauthorized, "authentication_error", "", "invalid session")
			return
		}
		writeJSON(w, http.StatusOK, []jobs.Job{sampleJob("j1")})
	})
	return httptest.NewServer(mux)
}

func TestSessionDrivesTracker(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()

	c := New(srv.URL)
	sess := NewSession(c)
	store := tracker.New(c, sess)
	sess.Subscribe(store.HandleAuthEvent)
	ctx := context.Background()

	_, err := sess.SignIn(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.OwnerID(ctx))
	assert.Equal(t, "tok-1", c.Token())
	assert.Len(t, store.Jobs(), 1)

	require.NoError(t, sess.SignOut(ctx))
	assert.Empty(t, sess.OwnerID(ctx))
	assert.Empty(t, c.Token())
	assert.Empty(t, store.Jobs())
}

func TestSessionResume(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()
	ctx := context.Background()

	sess := NewSession(New(srv.URL))
	var events []auth.Event
	sess.Subscribe(func(_ context.Context, e auth.Event) { events = append(events, e) })

	u, err := sess.Resume(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, []auth.Event{auth.SignedIn}, events)

	stale := NewSession(New(srv.URL))
	_, err = stale.Resume(ctx, "expired")
	assert.True(t, errors.Is(err, auth.ErrInvalidSession))
	assert.Empty(t, stale.OwnerID(ctx))

	_, err = stale.Resume(ctx, "")
	assert.ErrorIs(t, err, auth.ErrInvalidSession)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Health{Status: "ok", Version: "dev", Storage: "sqlite"})
	}))
	defer srv.Close()

	h, err := New(srv.URL + "/").Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "sqlite", h.Storage)
}

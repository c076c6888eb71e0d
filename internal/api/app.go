package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/blob"
	"github.com/kalambet/jobtrack/internal/gateway"
	"github.com/kalambet/jobtrack/internal/jobs"
	"github.com/kalambet/jobtrack/internal/profile"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadSize      = 10 << 20 // 10MB
)

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type AppDeps struct {
	Auth     *auth.Service
	Gateway  gateway.Gateway
	Profiles *profile.Manager
	Files    *blob.FSStore // optional; /files is not served when nil
	DB       Pinger        // optional; health skips the storage check when nil
	Driver   string
	Version  string
	Logger   *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(deps.Logger))

	r.Get("/health", handleHealth(deps))
	r.Post("/auth/signup", handleSignUp(deps))
	r.Post("/auth/signin", handleSignIn(deps))
	if deps.Files != nil {
		r.Get("/files/*", handleFile(deps))
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Auth))

		r.Post("/auth/signout", handleSignOut(deps))
		r.Get("/auth/user", handleCurrentUser)
		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
		r.Get("/jobs", handleListJobs(deps))
		r.Post("/jobs", handleCreateJob(deps))
		r.Put("/jobs/{id}", handleUpdateJob(deps))
		r.Delete("/jobs/{id}", handleDeleteJob(deps))
		r.Post("/attachments", handleUpload(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.DB.Ping(ctx); err != nil {
				httpError(w, http.StatusServiceUnavailable, "api_error", "storage unavailable: %v", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": deps.Version,
			"storage": deps.Driver,
		})
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profiles.Get(r.Context(), auth.OwnerID(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var u profile.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p, err := deps.Profiles.Update(r.Context(), auth.OwnerID(r.Context()), u)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Gateway.ListByOwner(r.Context(), auth.OwnerID(r.Context()))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func decodeForm(w http.ResponseWriter, r *http.Request) (jobs.FormData, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var f jobs.FormData
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return jobs.FormData{}, false
	}
	return f, true
}

func handleCreateJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := decodeForm(w, r)
		if !ok {
			return
		}
		j, err := deps.Gateway.Create(r.Context(), auth.OwnerID(r.Context()), f)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, j)
	}
}

func handleUpdateJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := decodeForm(w, r)
		if !ok {
			return
		}
		j, err := deps.Gateway.Update(r.Context(), chi.URLParam(r, "id"), f)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

func handleDeleteJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Gateway.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, hdr, err := r.FormFile("file")
		if err != nil {
			writeErrorBody(w, http.StatusBadRequest, "invalid_request_error", "file", "file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading file: %v", err)
			return
		}

		a := gateway.Attachment{
			Filename:    hdr.Filename,
			ContentType: hdr.Header.Get("Content-Type"),
			Data:        data,
		}
		fileURL, err := deps.Gateway.UploadAttachment(r.Context(), auth.OwnerID(r.Context()),
			r.FormValue("scope"), a, gateway.Kind(r.FormValue("kind")))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"url": fileURL})
	}
}

func handleFile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := chi.URLParam(r, "*")
		// chi matches on RawPath when the request used a non-canonical escape.
		if r.URL.RawPath != "" {
			unescaped, err := url.PathUnescape(p)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid path")
				return
			}
			p = unescaped
		}
		f, err := deps.Files.Open(p)
		switch {
		case errors.Is(err, blob.ErrInvalidPath):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid path")
			return
		case errors.Is(err, fs.ErrNotExist):
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "opening file: %v", err)
			return
		}
		defer f.Close()

		st, err := f.Stat()
		if err != nil || st.IsDir() {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		if path.Ext(p) == ".pdf" {
			w.Header().Set("Content-Type", "application/pdf")
		}
		http.ServeContent(w, r, st.Name(), st.ModTime(), f)
	}
}

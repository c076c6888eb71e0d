// Package client talks to the jobtrack backend over HTTP. Client implements
// gateway.Gateway so the collection store runs unchanged against a remote
// server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/gateway"
	"github.com/kalambet/jobtrack/internal/jobs"
	"github.com/kalambet/jobtrack/internal/profile"
)

const defaultTimeout = 30 * time.Second

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// apiError is the backend's error envelope.
type apiError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable, is jobtrack running? (%w)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func decodeError(resp *http.Response) error {
	e := &apiError{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return e
	}
	var env struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		env.Error.Status = resp.StatusCode
		return env.Error
	}
	e.Message = strings.TrimSpace(string(body))
	return e
}

// recordErr maps an HTTP failure on a record operation onto the gateway
// error taxonomy.
func recordErr(op string, err error) error {
	var ae *apiError
	if !errors.As(err, &ae) {
		return &gateway.StorageError{Op: op, Err: err}
	}
	switch ae.Status {
	case http.StatusBadRequest:
		return &jobs.ValidationError{Field: ae.Param, Message: strings.TrimPrefix(ae.Message, ae.Param+" ")}
	case http.StatusUnauthorized:
		return gateway.ErrNotAuthenticated
	case http.StatusNotFound:
		return gateway.ErrNotFound
	}
	return &gateway.StorageError{Op: op, Err: err}
}

// authErr maps an HTTP failure on an account operation onto auth errors.
func authErr(err error) error {
	var ae *apiError
	if !errors.As(err, &ae) {
		return err
	}
	switch ae.Status {
	case http.StatusBadRequest:
		return &auth.InputError{Field: ae.Param, Message: strings.TrimPrefix(ae.Message, ae.Param+" ")}
	case http.StatusUnauthorized:
		if ae.Type == "invalid_credentials" {
			return auth.ErrInvalidCredentials
		}
		return auth.ErrInvalidSession
	case http.StatusConflict:
		return auth.ErrEmailTaken
	case http.StatusTooManyRequests:
		return auth.ErrRateLimited
	}
	return err
}

// ListByOwner returns the signed-in owner's records. The server derives the
// owner from the token; ownerID only guards against calling while signed out.
func (c *Client) ListByOwner(ctx context.Context, ownerID string) ([]jobs.Job, error) {
	if ownerID == "" {
		return nil, gateway.ErrNotAuthenticated
	}
	var list []jobs.Job
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &list); err != nil {
		return nil, recordErr("list jobs", err)
	}
	if list == nil {
		list = []jobs.Job{}
	}
	return list, nil
}

func (c *Client) Create(ctx context.Context, ownerID string, f jobs.FormData) (jobs.Job, error) {
	if ownerID == "" {
		return jobs.Job{}, gateway.ErrNotAuthenticated
	}
	var j jobs.Job
	if err := c.do(ctx, http.MethodPost, "/jobs", f, &j); err != nil {
		return jobs.Job{}, recordErr("create job", err)
	}
	return j, nil
}

func (c *Client) Update(ctx context.Context, id string, f jobs.FormData) (jobs.Job, error) {
	var j jobs.Job
	if err := c.do(ctx, http.MethodPut, "/jobs/"+url.PathEscape(id), f, &j); err != nil {
		return jobs.Job{}, recordErr("update job", err)
	}
	return j, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil, nil); err != nil {
		return recordErr("delete job", err)
	}
	return nil
}

// UploadAttachment posts a multipart form with file, kind and scope fields.
// The server stores the file under the token's owner; ownerID must be set.
func (c *Client) UploadAttachment(ctx context.Context, ownerID, scopeID string, a gateway.Attachment, kind gateway.Kind) (string, error) {
	if ownerID == "" {
		return "", gateway.ErrNotAuthenticated
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", string(kind)); err != nil {
		return "", err
	}
	if err := mw.WriteField("scope", scopeID); err != nil {
		return "", err
	}
	ct := a.ContentType
	if ct == "" {
		ct = "application/pdf"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, a.Filename))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(a.Data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/attachments", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &out); err != nil {
		return "", recordErr("upload attachment", err)
	}
	return out.URL, nil
}

// AuthResult is returned by SignUp and SignIn.
type AuthResult struct {
	User    auth.User    `json:"user"`
	Session auth.Session `json:"session"`
}

func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (AuthResult, error) {
	body := map[string]string{"email": email, "password": password, "fullName": fullName}
	var res AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/signup", body, &res); err != nil {
		return AuthResult{}, authErr(err)
	}
	return res, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var res AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/signin", body, &res); err != nil {
		return AuthResult{}, authErr(err)
	}
	return res, nil
}

// SignOut ends the session the client's token belongs to.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/signout", nil, nil); err != nil {
		return authErr(err)
	}
	return nil
}

func (c *Client) CurrentUser(ctx context.Context) (auth.User, error) {
	var u auth.User
	if err := c.do(ctx, http.MethodGet, "/auth/user", nil, &u); err != nil {
		return auth.User{}, authErr(err)
	}
	return u, nil
}

func (c *Client) Profile(ctx context.Context) (profile.Profile, error) {
	var p profile.Profile
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &p); err != nil {
		return profile.Profile{}, recordErr("get profile", err)
	}
	return p, nil
}

func (c *Client) UpdateProfile(ctx context.Context, u profile.Update) (profile.Profile, error) {
	var p profile.Profile
	if err := c.do(ctx, http.MethodPatch, "/profile", u, &p); err != nil {
		return profile.Profile{}, recordErr("update profile", err)
	}
	return p, nil
}

// Health is the backend's /health payload.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return Health{}, err
	}
	return h, nil
}

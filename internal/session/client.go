package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftden/craftden/internal/api"
	"github.com/craftden/craftden/internal/bus"
	"github.com/craftden/craftden/internal/store"
)

const (
	loginPath   = "/api/auth/login"
	logoutPath  = "/api/auth/logout"
	currentPath = "/api/auth/me"
	refreshPath = "/api/auth/refresh"

	defaultTimeout = 30 * time.Second
)

// Client issues authenticated requests against the backend. Credentials
// travel in an opaque secure cookie managed by the transport's jar; on a
// credential rejection the client silently refreshes once and re-issues the
// original request once, never more.
type Client struct {
	baseURL string
	http    *http.Client
	store   store.Handle
	bus     *bus.Bus
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout   time.Duration
	jarPath   string
	transport http.RoundTripper
}

// WithTimeout overrides the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithCookieFile persists session cookies at path so sibling processes
// share the credential.
func WithCookieFile(path string) Option {
	return func(o *clientOptions) { o.jarPath = path }
}

// WithTransport sets a custom round tripper (request logging, tests).
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// NewClient creates a session client writing its mirror through h and
// broadcasting auth events on b.
func NewClient(baseURL string, h store.Handle, b *bus.Bus, opts ...Option) (*Client, error) {
	o := clientOptions{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	origin, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	jar, err := newPersistentJar(o.jarPath, origin)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   o.timeout,
			Jar:       jar,
			Transport: o.transport,
		},
		store: h,
		bus:   b,
	}, nil
}

// userPayload is the identity shape returned by login and current-user
// responses.
type userPayload struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	IsAdmin     bool   `json:"is_admin"`
}

func (u *userPayload) mirror() *Mirror {
	return &Mirror{DisplayName: u.DisplayName, Email: u.Email, Admin: u.IsAdmin}
}

// Login authenticates with the backend. The credential arrives as a secure
// cookie the transport keeps; only the public profile fields are mirrored.
func (c *Client) Login(ctx context.Context, email, password string) (*Mirror, error) {
	body := map[string]string{"email": email, "password": password}

	var user userPayload
	if err := c.roundTrip(ctx, http.MethodPost, loginPath, body, &user); err != nil {
		return nil, err
	}

	m := user.mirror()
	c.adoptMirror(m)

	log.Info().Str("email", m.Email).Msg("logged in")

	return m, nil
}

// Logout ends the session. The backend call is best-effort: the local
// mirror is cleared and LoggedOut broadcast regardless of its outcome.
func (c *Client) Logout(ctx context.Context) error {
	err := c.roundTrip(ctx, http.MethodPost, logoutPath, nil, nil)
	c.ForgetSession()
	if err != nil && api.KindOf(err) != api.KindUnauthenticated {
		return err
	}
	return nil
}

// CurrentUser verifies the session against the backend and refreshes the
// mirror from the response.
func (c *Client) CurrentUser(ctx context.Context) (*Mirror, error) {
	var user userPayload
	if err := c.Do(ctx, http.MethodGet, currentPath, nil, &user); err != nil {
		return nil, err
	}

	m := user.mirror()
	c.adoptMirror(m)
	return m, nil
}

// ForgetSession clears the mirror and broadcasts LoggedOut. Used on logout
// and when a verification failure must end the local belief in a session.
func (c *Client) ForgetSession() {
	if err := ClearMirror(c.store); err != nil {
		log.Warn().Err(err).Msg("failed to clear session mirror")
	}
	c.bus.Publish(bus.LoggedOut{})
}

// Do issues an authenticated request. On a 401/403 it performs exactly one
// silent refresh and, if that succeeds, re-issues the original request once.
// A failed refresh ends the session: the mirror is cleared, LoggedOut is
// broadcast, and the caller gets an Unauthenticated error carrying the
// original status.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	err := c.roundTrip(ctx, method, path, body, out)
	var apiErr *api.Error
	if err == nil || !errors.As(err, &apiErr) || apiErr.Kind != api.KindUnauthenticated {
		return err
	}

	log.Debug().Str("path", path).Int("status", apiErr.Status).Msg("credential rejected, attempting refresh")

	if rerr := c.roundTrip(ctx, http.MethodPost, refreshPath, nil, nil); rerr != nil {
		log.Debug().Err(rerr).Msg("credential refresh failed")
		c.ForgetSession()
		return api.NewUnauthenticated(apiErr.Status, "session expired", rerr)
	}

	return c.roundTrip(ctx, method, path, body, out)
}

// roundTrip performs a single request/response cycle with no recovery.
func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return api.NewTransportError(err)
	}
	defer resp.Body.Close()

	if api.IsAuthStatus(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return api.NewUnauthenticated(resp.StatusCode, "credential rejected", nil)
	}

	return api.DecodeResponse(resp, out)
}

// adoptMirror stores the verified identity atomically and broadcasts
// AuthChanged only when the mirror actually changed, so verification loops
// don't re-trigger their own listeners.
func (c *Client) adoptMirror(m *Mirror) {
	prev, had := MirrorFromStore(c.store)

	if err := SaveMirror(c.store, m); err != nil {
		log.Warn().Err(err).Msg("failed to save session mirror")
		return
	}

	if had && *prev == *m {
		return
	}
	c.bus.Publish(bus.AuthChanged{})
}

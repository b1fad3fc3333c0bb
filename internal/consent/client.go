package consent

import (
	"context"
	"net/http"

	"github.com/craftden/craftden/internal/session"
)

const consentPath = "/api/consent"

// API is the backend surface the synchronizer needs. Satisfied by *Client;
// tests substitute fakes.
type API interface {
	// ConsentStatus returns the stored record, or nil when the user has
	// never decided.
	ConsentStatus(ctx context.Context) (*Record, error)
	// SaveConsent persists a decision for the authenticated user.
	SaveConsent(ctx context.Context, s Status) error
}

// Client reads and writes consent records through the session client, so
// requests are authenticated and covered by the refresh protocol.
type Client struct {
	session *session.Client
}

// NewClient wraps a session client.
func NewClient(s *session.Client) *Client {
	return &Client{session: s}
}

func (c *Client) ConsentStatus(ctx context.Context) (*Record, error) {
	var rec *Record
	if err := c.session.Do(ctx, http.MethodGet, consentPath, nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) SaveConsent(ctx context.Context, s Status) error {
	body := map[string]string{"status": string(s)}
	return c.session.Do(ctx, http.MethodPost, consentPath, body, nil)
}

// Package booking is the workshop activity booking client. All calls ride
// the session client, so they are authenticated and covered by the
// refresh protocol.
package booking

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/craftden/craftden/internal/session"
)

// Activity is a bookable workshop.
type Activity struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int    `json:"price_cents"`
}

// Slot is a schedulable occurrence of an activity.
type Slot struct {
	ID        string    `json:"id"`
	StartsAt  time.Time `json:"starts_at"`
	SeatsLeft int       `json:"seats_left"`
}

// Booking is a confirmed reservation.
type Booking struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activity_id"`
	SlotID     string    `json:"slot_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Client books activities through the backend.
type Client struct {
	session *session.Client
}

// NewClient wraps a session client.
func NewClient(s *session.Client) *Client {
	return &Client{session: s}
}

// Activities lists bookable workshops.
func (c *Client) Activities(ctx context.Context) ([]Activity, error) {
	var activities []Activity
	if err := c.session.Do(ctx, http.MethodGet, "/api/activities", nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// Slots lists open slots for an activity.
func (c *Client) Slots(ctx context.Context, activityID string) ([]Slot, error) {
	var slots []Slot
	if err := c.session.Do(ctx, http.MethodGet, "/api/activities/"+activityID+"/slots", nil, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// Book reserves a slot. The idempotency key lets the backend deduplicate a
// retried submission.
func (c *Client) Book(ctx context.Context, activityID, slotID string) (*Booking, error) {
	body := map[string]string{
		"activity_id":     activityID,
		"slot_id":         slotID,
		"idempotency_key": uuid.NewString(),
	}

	var booked Booking
	if err := c.session.Do(ctx, http.MethodPost, "/api/bookings", body, &booked); err != nil {
		return nil, err
	}
	return &booked, nil
}

// Package consent owns the consent-status state machine for non-essential
// data collection: when to prompt, how decisions persist, and how the
// machine reacts to login, logout, navigation and sibling-context changes.
package consent

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftden/craftden/internal/store"
)

// Status is the user's consent decision.
type Status string

const (
	StatusUnset    Status = ""
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// ParseStatus maps arbitrary input to a known status, treating anything
// unrecognised as unset.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusAccepted:
		return StatusAccepted
	case StatusDeclined:
		return StatusDeclined
	default:
		return StatusUnset
	}
}

// Record is the backend's consent record for the authenticated user.
type Record struct {
	Status    Status    `json:"status"`
	DecidedAt time.Time `json:"decided_at"`
}

// StatusFromStore reads the locally mirrored decision.
func StatusFromStore(h store.Handle) Status {
	data, ok := h.Get(store.KeyConsentStatus)
	if !ok {
		return StatusUnset
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return StatusUnset
	}
	return ParseStatus(s)
}

// SaveLocal mirrors a decision into the store. The status and timestamp are
// independent key writes; readers tolerate seeing one before the other.
func SaveLocal(h store.Handle, s Status, at time.Time) {
	statusData, _ := json.Marshal(string(s))
	if err := h.Set(store.KeyConsentStatus, statusData); err != nil {
		log.Warn().Err(err).Msg("failed to mirror consent status")
		return
	}

	atData, _ := json.Marshal(at.UTC())
	if err := h.Set(store.KeyConsentDecidedAt, atData); err != nil {
		log.Warn().Err(err).Msg("failed to mirror consent timestamp")
	}
}

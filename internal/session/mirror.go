// Package session implements the authenticated-session core: the session
// mirror, the backend client with its credential-refresh protocol, and the
// capability guard used by navigable views.
package session

import (
	"encoding/json"

	"github.com/craftden/craftden/internal/store"
)

// Mirror is the local, non-authoritative cache of the currently
// believed-authenticated user. Authoritative state lives on the backend
// behind a credential this client cannot read; the mirror is only a
// liveness hint, written after verified identity responses and cleared on
// logout or unrecoverable refresh failure.
type Mirror struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Admin       bool   `json:"is_admin"`
}

// MirrorFromStore reads the mirror, reporting absence as "no known session".
func MirrorFromStore(h store.Handle) (*Mirror, bool) {
	data, ok := h.Get(store.KeySessionUser)
	if !ok {
		return nil, false
	}

	var m Mirror
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return &m, true
}

// SaveMirror overwrites the mirror in one atomic key write. Partial user
// objects never reach the store: the whole mirror is serialized or nothing is.
func SaveMirror(h store.Handle, m *Mirror) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return h.Set(store.KeySessionUser, data)
}

// ClearMirror removes the mirror.
func ClearMirror(h store.Handle) error {
	return h.Delete(store.KeySessionUser)
}

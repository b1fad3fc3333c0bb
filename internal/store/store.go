// Package store provides the persistent client store: a per-origin key/value
// store shared by every running client context. It holds the non-sensitive
// session mirror and the last-known consent decision, never credentials.
package store

// Well-known keys. Each key's update is independently atomic; there is no
// multi-key transaction, so readers must tolerate seeing one key updated
// before a related one.
const (
	KeySessionUser      = "session.user"
	KeyConsentStatus    = "consent.status"
	KeyConsentDecidedAt = "consent.decided_at"
)

// Change describes a single-key mutation made by a sibling context.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Handle is one context's view of the shared store.
//
// Watch channels deliver sibling writes only: a handle is never notified of
// its own mutations. Each call to Watch returns an independent channel that
// receives all subsequent changes.
type Handle interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Delete(key string) error
	Watch() <-chan Change
	Close() error
}

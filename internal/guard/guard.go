// Package guard gates navigable views on the session belief: a fast local
// check first, then a best-effort server verification with a graceful
// degradation path for transient failures.
package guard

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/craftden/craftden/internal/api"
	"github.com/craftden/craftden/internal/bus"
	"github.com/craftden/craftden/internal/consent"
	"github.com/craftden/craftden/internal/session"
	"github.com/craftden/craftden/internal/store"
)

// Capability is what a view requires of the current context.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityAuthenticated
	CapabilityAdmin
)

// Decision is the guard's verdict for a navigation.
type Decision struct {
	Allow    bool
	Redirect string // target view when not allowed
	From     string // original view, preserved for post-login restoration
}

func allow() Decision {
	return Decision{Allow: true}
}

// Config names the views the guard redirects to.
type Config struct {
	LoginView   string
	DefaultView string
}

// Guard combines the local session mirror with server verification.
type Guard struct {
	client *session.Client
	store  store.Handle
	cfg    Config
}

// New creates a guard over the given session client and store handle.
func New(client *session.Client, h store.Handle, cfg Config) *Guard {
	if cfg.LoginView == "" {
		cfg.LoginView = "login"
	}
	if cfg.DefaultView == "" {
		cfg.DefaultView = "catalog"
	}
	return &Guard{client: client, store: h, cfg: cfg}
}

// Evaluate resolves whether the context may use the given view.
//
// Without a local mirror an authenticated view redirects straight to login,
// no network call. With one, the session is verified against the backend;
// if verification fails but the user previously accepted data collection —
// an explicit signal that session continuity is plausible — the existing
// mirror is trusted rather than punishing a transient failure with a
// logout. Admin views additionally require the mirrored admin flag and
// redirect to the default view when it is missing, since that user is
// authenticated but unauthorized.
func (g *Guard) Evaluate(ctx context.Context, view string, capability Capability) Decision {
	if capability == CapabilityNone {
		return allow()
	}

	m, ok := session.MirrorFromStore(g.store)
	if !ok {
		return Decision{Redirect: g.cfg.LoginView, From: view}
	}

	verified, err := g.client.CurrentUser(ctx)
	switch {
	case err == nil:
		m = verified
	case api.KindOf(err) == api.KindUnauthenticated:
		// Definitive verdict: the refresh protocol already ended the
		// session, nothing optimistic to keep.
		return Decision{Redirect: g.cfg.LoginView, From: view}
	case consent.StatusFromStore(g.store) == consent.StatusAccepted:
		log.Debug().Err(err).Str("view", view).Msg("verification failed, keeping optimistic session")
	default:
		log.Debug().Err(err).Str("view", view).Msg("verification failed, ending session")
		g.client.ForgetSession()
		return Decision{Redirect: g.cfg.LoginView, From: view}
	}

	if capability == CapabilityAdmin && !m.Admin {
		return Decision{Redirect: g.cfg.DefaultView, From: view}
	}

	return allow()
}

// Notify re-runs fn whenever the session belief may have changed: an
// in-process auth event, or a sibling context touching the session mirror.
// It returns a function that stops both subscriptions.
func (g *Guard) Notify(b *bus.Bus, fn func()) func() {
	unsubscribe := b.Subscribe(func(evt bus.Event) {
		switch evt.(type) {
		case bus.AuthChanged, bus.LoggedOut:
			fn()
		}
	})

	stopCh := make(chan struct{})
	changes := g.store.Watch()
	go func() {
		for {
			select {
			case ch, ok := <-changes:
				if !ok {
					return
				}
				if ch.Key == store.KeySessionUser {
					fn()
				}
			case <-stopCh:
				return
			}
		}
	}()

	return func() {
		unsubscribe()
		close(stopCh)
	}
}

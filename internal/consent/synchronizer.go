package consent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/craftden/craftden/internal/bus"
	"github.com/craftden/craftden/internal/session"
	"github.com/craftden/craftden/internal/store"
)

// State is the synchronizer's position in the prompt lifecycle.
type State int

const (
	// StateHidden means no prompt is shown and none is scheduled.
	StateHidden State = iota
	// StatePending means a backend check or delayed prompt is scheduled.
	StatePending
	// StateVisible means the prompt is on screen awaiting a decision.
	StateVisible
	// StateDecidedAccepted and StateDecidedDeclined record an explicit
	// decision made during this session.
	StateDecidedAccepted
	StateDecidedDeclined
)

func (s State) String() string {
	switch s {
	case StateHidden:
		return "hidden"
	case StatePending:
		return "pending"
	case StateVisible:
		return "visible"
	case StateDecidedAccepted:
		return "decided_accepted"
	case StateDecidedDeclined:
		return "decided_declined"
	default:
		return "unknown"
	}
}

// Prompter renders and withdraws the consent prompt.
type Prompter interface {
	Show()
	Hide()
}

// Config tunes the synchronizer. The settle delay avoids racing a
// just-completed redirect before checking the backend; the prompt delay is
// the further wait before actually showing. Both are revalidated at fire
// time, since the world can change during the wait.
type Config struct {
	ExcludedViews    []string
	SettleDelay      time.Duration
	PromptDelay      time.Duration
	LivenessInterval time.Duration
}

const (
	defaultSettleDelay      = 1 * time.Second
	defaultPromptDelay      = 2 * time.Second
	defaultLivenessInterval = 500 * time.Millisecond

	persistMaxTries = 3
)

func (c *Config) applyDefaults() {
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.PromptDelay <= 0 {
		c.PromptDelay = defaultPromptDelay
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = defaultLivenessInterval
	}
}

// Synchronizer is the consent state machine for one client context.
//
// Every transition runs as a short critical section; scheduled work carries
// an epoch token and re-checks preconditions when it fires, because a
// logout, navigation or sibling write may have happened during the delay.
// A logged-out signal always wins over a pending show-prompt timer.
type Synchronizer struct {
	api      API
	store    store.Handle
	bus      *bus.Bus
	prompter Prompter
	cfg      Config

	mu    sync.Mutex
	state State
	view  string
	epoch uint64
	timer *time.Timer
	ctx   context.Context

	unsubscribe func()
	stopOnce    sync.Once
	stopCh      chan struct{}
}

// New creates a synchronizer. Call Start before use.
func New(api API, h store.Handle, b *bus.Bus, p Prompter, cfg Config) *Synchronizer {
	cfg.applyDefaults()
	return &Synchronizer{
		api:      api,
		store:    h,
		bus:      b,
		prompter: p,
		cfg:      cfg,
		ctx:      context.Background(),
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to the bus and the store and begins the liveness poll.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.unsubscribe = s.bus.Subscribe(s.handleEvent)

	changes := s.store.Watch()
	go s.watchStore(changes)
	go s.livenessLoop()
}

// Stop tears the context down. In-flight timers are logically cancelled via
// the epoch; no further transitions occur.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.epoch++
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
	})
}

// State returns the current machine state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetView records a navigation. Excluded views hide the prompt immediately;
// entering a normal view from a clean slate schedules a backend check.
func (s *Synchronizer) SetView(view string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.view = view
	if s.excluded(view) {
		s.hideLocked("excluded view")
		return
	}
	if s.state == StateHidden {
		s.scheduleCheckLocked()
	}
}

// Accept records an accept decision.
func (s *Synchronizer) Accept(ctx context.Context) error {
	return s.decide(ctx, StatusAccepted)
}

// Decline records a decline decision. Declining never invalidates the
// session mirror; consent is independent of authentication.
func (s *Synchronizer) Decline(ctx context.Context) error {
	return s.decide(ctx, StatusDeclined)
}

// decide hides the prompt, mirrors the decision locally and broadcasts it,
// then persists to the backend best-effort. The local mirror update happens
// regardless of the backend outcome.
func (s *Synchronizer) decide(ctx context.Context, status Status) error {
	now := time.Now()

	s.mu.Lock()
	s.markDecidedLocked(status)
	s.mu.Unlock()

	if StatusFromStore(s.store) != status {
		SaveLocal(s.store, status, now)
	}
	s.bus.Publish(bus.ConsentChanged{Accepted: status == StatusAccepted})

	go s.persist(status)

	log.Info().Str("status", string(status)).Msg("consent decision recorded")
	return nil
}

func (s *Synchronizer) persist(status Status) {
	operation := func() (struct{}, error) {
		return struct{}{}, s.api.SaveConsent(s.ctx, status)
	}

	_, err := backoff.Retry(s.ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(persistMaxTries),
	)
	if err != nil {
		log.Warn().Err(err).Str("status", string(status)).Msg("failed to persist consent decision")
	}
}

// handleEvent reacts to in-process bus events.
func (s *Synchronizer) handleEvent(evt bus.Event) {
	switch e := evt.(type) {
	case bus.LoggedOut:
		s.mu.Lock()
		s.hideLocked("logged out")
		s.mu.Unlock()

	case bus.AuthChanged:
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := session.MirrorFromStore(s.store); !ok {
			s.hideLocked("no session")
			return
		}
		// A new identity resets any decision made under the previous one.
		s.hideLocked("identity changed")
		if !s.excluded(s.view) {
			s.scheduleCheckLocked()
		}

	case bus.ConsentChanged:
		s.mu.Lock()
		defer s.mu.Unlock()
		if e.Accepted {
			s.markDecidedLocked(StatusAccepted)
		} else {
			s.markDecidedLocked(StatusDeclined)
		}
	}
}

// watchStore reacts to sibling-context writes.
func (s *Synchronizer) watchStore(changes <-chan store.Change) {
	for {
		select {
		case ch, ok := <-changes:
			if !ok {
				return
			}
			s.handleChange(ch)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Synchronizer) handleChange(ch store.Change) {
	switch ch.Key {
	case store.KeySessionUser:
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch.Deleted {
			s.hideLocked("session ended in sibling context")
			return
		}
		s.hideLocked("identity changed in sibling context")
		if !s.excluded(s.view) {
			s.scheduleCheckLocked()
		}

	case store.KeyConsentStatus:
		status := StatusUnset
		if !ch.Deleted {
			var raw string
			if err := json.Unmarshal(ch.Value, &raw); err == nil {
				status = ParseStatus(raw)
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if status == StatusAccepted {
			s.markDecidedLocked(StatusAccepted)
			return
		}
		// Withdrawal observed elsewhere: re-validate liveness before
		// rendering, since consent may race with a concurrent logout.
		if !s.eligibleLocked() {
			return
		}
		s.showLocked()
	}
}

// livenessLoop forces a visible prompt to Hidden the moment the session
// mirror disappears. A prompt must never outlive the session behind it.
func (s *Synchronizer) livenessLoop() {
	ticker := time.NewTicker(s.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if s.state == StateVisible {
				if _, ok := session.MirrorFromStore(s.store); !ok {
					s.hideLocked("session vanished")
				}
			}
			s.mu.Unlock()

		case <-s.stopCh:
			return
		}
	}
}

// scheduleCheckLocked arms the settle-delay timer for a backend status
// check. Any newer event supersedes it through the epoch.
func (s *Synchronizer) scheduleCheckLocked() {
	s.epoch++
	e := s.epoch
	s.setStateLocked(StatePending)

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.SettleDelay, func() {
		s.runCheck(e)
	})
}

// runCheck queries the backend for the consent record, revalidating
// preconditions both before the call and after it returns.
func (s *Synchronizer) runCheck(e uint64) {
	s.mu.Lock()
	if e != s.epoch {
		s.mu.Unlock()
		return
	}
	if !s.eligibleLocked() {
		s.setStateLocked(StateHidden)
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	rec, err := s.api.ConsentStatus(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e != s.epoch {
		return
	}
	if !s.eligibleLocked() {
		s.setStateLocked(StateHidden)
		return
	}

	if err != nil {
		// Fail open: an unreadable consent status must never silently
		// suppress collection, so schedule the prompt as if undecided.
		log.Warn().Err(err).Msg("consent status check failed, scheduling prompt")
		s.schedulePromptLocked(e)
		return
	}

	if rec != nil && rec.Status == StatusAccepted {
		s.markDecidedLocked(StatusAccepted)
		if StatusFromStore(s.store) != StatusAccepted {
			SaveLocal(s.store, StatusAccepted, rec.DecidedAt)
		}
		return
	}

	s.schedulePromptLocked(e)
}

// schedulePromptLocked arms the prompt-delay timer. The same epoch carries
// through so a logout during the delay still wins.
func (s *Synchronizer) schedulePromptLocked(e uint64) {
	s.setStateLocked(StatePending)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.PromptDelay, func() {
		s.runShow(e)
	})
}

func (s *Synchronizer) runShow(e uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e != s.epoch {
		return
	}
	if !s.eligibleLocked() {
		s.setStateLocked(StateHidden)
		return
	}
	s.showLocked()
}

// eligibleLocked is the invariant gate: never prompt a context that does
// not believe it has a session, or that sits on an excluded view.
func (s *Synchronizer) eligibleLocked() bool {
	if s.excluded(s.view) {
		return false
	}
	_, ok := session.MirrorFromStore(s.store)
	return ok
}

func (s *Synchronizer) excluded(view string) bool {
	for _, v := range s.cfg.ExcludedViews {
		if v == view {
			return true
		}
	}
	return false
}

func (s *Synchronizer) showLocked() {
	if s.state == StateVisible {
		return
	}
	s.setStateLocked(StateVisible)
	s.prompter.Show()
}

// hideLocked supersedes any pending timer and withdraws a visible prompt.
func (s *Synchronizer) hideLocked(reason string) {
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == StateVisible {
		s.prompter.Hide()
	}
	if s.state != StateHidden {
		log.Debug().Str("reason", reason).Msg("consent prompt hidden")
	}
	s.setStateLocked(StateHidden)
}

// markDecidedLocked records an explicit decision, withdrawing the prompt
// and cancelling scheduled work.
func (s *Synchronizer) markDecidedLocked(status Status) {
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == StateVisible {
		s.prompter.Hide()
	}
	if status == StatusAccepted {
		s.setStateLocked(StateDecidedAccepted)
	} else {
		s.setStateLocked(StateDecidedDeclined)
	}
}

func (s *Synchronizer) setStateLocked(next State) {
	if s.state == next {
		return
	}
	log.Debug().Str("from", s.state.String()).Str("to", next.String()).Msg("consent state")
	s.state = next
}

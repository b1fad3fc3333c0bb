package consent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftden/craftden/internal/bus"
	"github.com/craftden/craftden/internal/session"
	"github.com/craftden/craftden/internal/store"
)

// fakeAPI is a scriptable consent backend.
type fakeAPI struct {
	mu     sync.Mutex
	record *Record
	err    error
	saved  []Status
}

func (f *fakeAPI) ConsentStatus(ctx context.Context) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func (f *fakeAPI) SaveConsent(ctx context.Context, s Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeAPI) savedStatuses() []Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Status, len(f.saved))
	copy(out, f.saved)
	return out
}

// fakePrompter records show/hide calls.
type fakePrompter struct {
	mu      sync.Mutex
	visible bool
	shows   int
	hides   int
}

func (p *fakePrompter) Show() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = true
	p.shows++
}

func (p *fakePrompter) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = false
	p.hides++
}

func (p *fakePrompter) isVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *fakePrompter) showCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shows
}

type fixture struct {
	api      *fakeAPI
	shared   *store.Shared
	handle   store.Handle
	sibling  store.Handle
	bus      *bus.Bus
	prompter *fakePrompter
	sync     *Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	shared := store.NewShared()
	handle := shared.Open()
	sibling := shared.Open()
	b := bus.New()
	api := &fakeAPI{}
	prompter := &fakePrompter{}

	s := New(api, handle, b, prompter, Config{
		ExcludedViews:    []string{"home", "login", "register", "privacy"},
		SettleDelay:      20 * time.Millisecond,
		PromptDelay:      30 * time.Millisecond,
		LivenessInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx)
	t.Cleanup(s.Stop)

	return &fixture{
		api:      api,
		shared:   shared,
		handle:   handle,
		sibling:  sibling,
		bus:      b,
		prompter: prompter,
		sync:     s,
	}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, session.SaveMirror(f.handle, &session.Mirror{
		DisplayName: "Robin Weaver",
		Email:       "robin@example.com",
	}))
}

const totalDelay = 200 * time.Millisecond

func TestSynchronizer_PromptAfterUndecidedCheck(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("catalog")

	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)
	assert.Equal(t, StateVisible, f.sync.State())
}

func TestSynchronizer_NeverPromptsWithoutSession(t *testing.T) {
	f := newFixture(t)
	// no mirror written

	f.sync.SetView("catalog")

	time.Sleep(totalDelay)
	assert.False(t, f.prompter.isVisible())
	assert.Equal(t, 0, f.prompter.showCount())
}

func TestSynchronizer_NeverPromptsOnExcludedView(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("privacy")

	time.Sleep(totalDelay)
	assert.Equal(t, 0, f.prompter.showCount())
	assert.Equal(t, StateHidden, f.sync.State())
}

func TestSynchronizer_NavigationToExcludedViewMidDelay(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("catalog")
	// Navigate away before the delayed prompt fires; the timer must
	// revalidate the view at fire time and stay hidden.
	time.Sleep(10 * time.Millisecond)
	f.sync.SetView("privacy")

	time.Sleep(totalDelay)
	assert.Equal(t, 0, f.prompter.showCount())
}

func TestSynchronizer_FailOpenOnQueryError(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.api.err = errors.New("boom")

	f.sync.SetView("catalog")

	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)
}

func TestSynchronizer_AcceptedRecordStaysHidden(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.api.record = &Record{Status: StatusAccepted, DecidedAt: time.Now()}

	f.sync.SetView("catalog")

	require.Eventually(t, func() bool {
		return f.sync.State() == StateDecidedAccepted
	}, totalDelay, 5*time.Millisecond)

	assert.Equal(t, 0, f.prompter.showCount())
	assert.Equal(t, StatusAccepted, StatusFromStore(f.handle), "backend decision mirrored locally")
}

func TestSynchronizer_DeclineFlow(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("catalog")
	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)

	require.NoError(t, f.sync.Decline(context.Background()))

	assert.False(t, f.prompter.isVisible(), "prompt hides immediately on decline")
	assert.Equal(t, StateDecidedDeclined, f.sync.State())
	assert.Equal(t, StatusDeclined, StatusFromStore(f.handle))

	require.Eventually(t, func() bool {
		saved := f.api.savedStatuses()
		return len(saved) == 1 && saved[0] == StatusDeclined
	}, totalDelay, 5*time.Millisecond, "backend received the decline")
}

func TestSynchronizer_AcceptIsStickyAcrossNavigation(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("catalog")
	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)

	require.NoError(t, f.sync.Accept(context.Background()))
	shows := f.prompter.showCount()

	f.sync.SetView("booking")
	f.sync.SetView("catalog")
	f.sync.SetView("account")

	time.Sleep(totalDelay)
	assert.Equal(t, shows, f.prompter.showCount(), "no re-prompt without a withdrawal signal")
	assert.Equal(t, StateDecidedAccepted, f.sync.State())
}

func TestSynchronizer_CrossContextWithdrawalReprompts(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("catalog")
	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)
	require.NoError(t, f.sync.Accept(context.Background()))
	require.Equal(t, StateDecidedAccepted, f.sync.State())

	// A sibling context withdraws consent.
	declined, _ := json.Marshal(string(StatusDeclined))
	require.NoError(t, f.sibling.Set(store.KeyConsentStatus, declined))

	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)
	assert.Equal(t, StateVisible, f.sync.State())
}

func TestSynchronizer_WithdrawalIgnoredWithoutSession(t *testing.T) {
	f := newFixture(t)
	// no mirror: a withdrawal signal must not surface a prompt

	declined, _ := json.Marshal(string(StatusDeclined))
	require.NoError(t, f.sibling.Set(store.KeyConsentStatus, declined))

	time.Sleep(totalDelay)
	assert.Equal(t, 0, f.prompter.showCount())
}

func TestSynchronizer_LogoutHidesVisiblePrompt(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("catalog")
	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)

	f.bus.Publish(bus.LoggedOut{})

	assert.False(t, f.prompter.isVisible())
	assert.Equal(t, StateHidden, f.sync.State())
}

func TestSynchronizer_LogoutBeatsPendingPromptTimer(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("catalog")
	time.Sleep(5 * time.Millisecond) // timers armed, nothing visible yet

	require.NoError(t, session.ClearMirror(f.handle))
	f.bus.Publish(bus.LoggedOut{})

	time.Sleep(totalDelay)
	assert.Equal(t, 0, f.prompter.showCount(), "logged-out wins regardless of arrival order")
	assert.Equal(t, StateHidden, f.sync.State())
}

func TestSynchronizer_CrossContextLogoutHides(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("catalog")
	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)

	// Sibling context clears the session mirror.
	require.NoError(t, f.sibling.Delete(store.KeySessionUser))

	require.Eventually(t, func() bool {
		return !f.prompter.isVisible()
	}, totalDelay, 5*time.Millisecond)
	assert.Equal(t, StateHidden, f.sync.State())
}

func TestSynchronizer_LivenessPollCatchesSilentMirrorLoss(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.sync.SetView("catalog")
	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)

	// The local handle's own delete produces no change notification for
	// this context; only the liveness poll can observe it.
	require.NoError(t, session.ClearMirror(f.handle))

	require.Eventually(t, func() bool {
		return !f.prompter.isVisible()
	}, totalDelay, 5*time.Millisecond, "prompt never outlives the session")
}

func TestSynchronizer_LoginTriggersCheck(t *testing.T) {
	f := newFixture(t)

	f.sync.SetView("catalog")
	time.Sleep(5 * time.Millisecond)

	f.login(t)
	f.bus.Publish(bus.AuthChanged{})

	require.Eventually(t, f.prompter.isVisible, totalDelay, 5*time.Millisecond)
}

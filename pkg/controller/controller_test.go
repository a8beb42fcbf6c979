package controller

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/embedmeet/embedmeet/pkg/config"
	"github.com/embedmeet/embedmeet/pkg/events"
	"github.com/embedmeet/embedmeet/pkg/session"
	"github.com/embedmeet/embedmeet/pkg/widget"
)

// --- Fakes ---

type fakeEnv struct {
	mu        sync.Mutex
	secure    bool
	container bool
	factories map[string]bool
	injectErr error
	injected  int
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{secure: true, container: true, factories: make(map[string]bool)}
}

func (e *fakeEnv) SecureContext() bool { return e.secure }

func (e *fakeEnv) FactoryPresent(domain string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.factories[domain]
}

func (e *fakeEnv) InjectScript(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.injected++
	if e.injectErr != nil {
		return e.injectErr
	}
	domain := strings.TrimSuffix(strings.TrimPrefix(url, "https://"), "/external_api.js")
	e.factories[domain] = true
	return nil
}

func (e *fakeEnv) ContainerAvailable(string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.container
}

func (e *fakeEnv) setInjectErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.injectErr = err
}

type fakeHandle struct {
	mu        sync.Mutex
	listeners map[string][]func(widget.Event)
	commands  []string
	disposed  int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{listeners: make(map[string][]func(widget.Event))}
}

func (h *fakeHandle) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposed++
}

func (h *fakeHandle) ExecuteCommand(command string, args ...interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, command)
}

func (h *fakeHandle) AddListener(event string, fn func(widget.Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[event] = append(h.listeners[event], fn)
}

func (h *fakeHandle) fire(event string, ev widget.Event) {
	h.mu.Lock()
	fns := append([]func(widget.Event){}, h.listeners[event]...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *fakeHandle) disposeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

type fakeFactory struct {
	mu        sync.Mutex
	createErr error
	handles   []*fakeHandle
}

func (f *fakeFactory) Create(domain string, cfg widget.Config) (widget.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	h := newFakeHandle()
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *fakeFactory) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}

type fakeNav struct {
	mu    sync.Mutex
	homes []string
}

func (n *fakeNav) NavigateHome(room string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.homes = append(n.homes, room)
}

func (n *fakeNav) homeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.homes)
}

// --- Harness ---

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ConnectTimeout = 100 * time.Millisecond
	cfg.ScriptGraceDelay = time.Millisecond
	cfg.ContainerPollAttempts = 3
	cfg.ContainerPollDelay = time.Millisecond
	return cfg
}

type harness struct {
	cfg     *config.Config
	env     *fakeEnv
	factory *fakeFactory
	nav     *fakeNav
	store   *session.Store
	ctrl    *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig()
	env := newFakeEnv()
	factory := &fakeFactory{}
	nav := &fakeNav{}
	store := session.NewStore("meet.jit.si")
	store.SetIdentity("Ann", "ann@example.com")
	store.SetRole(session.RoleHost)
	loader := widget.NewLoader(env, cfg.ScriptGraceDelay)
	ctrl := New(cfg, store, env, factory, loader, events.NewBus(), nav, "team-sync")
	t.Cleanup(ctrl.Close)
	return &harness{cfg: cfg, env: env, factory: factory, nav: nav, store: store, ctrl: ctrl}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitForState(t *testing.T, s State) {
	t.Helper()
	waitFor(t, "state "+s.String(), func() bool { return h.ctrl.State() == s })
}

// --- Tests ---

func TestController_JoinHappyPath(t *testing.T) {
	h := newHarness(t)

	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	h.waitForState(t, StateConnecting)

	if !h.store.Snapshot().HasWidget {
		t.Error("widget handle not published to store in CONNECTING")
	}

	handle := h.factory.handle(0)
	handle.fire(widget.EventConferenceJoined, widget.Event{Name: widget.EventConferenceJoined})

	h.waitForState(t, StateConnected)
	if !h.store.InSession() {
		t.Error("store not marked in-session after join")
	}
	if h.store.Error() != "" {
		t.Errorf("error not cleared after join: %q", h.store.Error())
	}
}

func TestController_ParticipantCounting(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)

	handle := h.factory.handle(0)
	handle.fire(widget.EventConferenceJoined, widget.Event{})
	handle.fire(widget.EventVideoConferenceJoined, widget.Event{})

	if got := h.ctrl.Participants(); got != 1 {
		t.Errorf("participants after self-join = %d, want 1", got)
	}

	handle.fire(widget.EventParticipantJoined, widget.Event{})
	if got := h.ctrl.Participants(); got != 2 {
		t.Errorf("participants after join = %d, want 2", got)
	}

	handle.fire(widget.EventParticipantLeft, widget.Event{})
	if got := h.ctrl.Participants(); got != 1 {
		t.Errorf("participants after leave = %d, want 1", got)
	}

	// Floor at zero, never negative.
	handle.fire(widget.EventParticipantLeft, widget.Event{})
	handle.fire(widget.EventParticipantLeft, widget.Event{})
	if got := h.ctrl.Participants(); got != 0 {
		t.Errorf("participants floored = %d, want 0", got)
	}

	handle.fire(widget.EventVideoConferenceLeft, widget.Event{})
	if got := h.ctrl.Participants(); got != 0 {
		t.Errorf("participants after self-left = %d, want 0", got)
	}
}

func TestController_EmptyUserNameAbortsBeforeWidget(t *testing.T) {
	h := newHarness(t)
	h.store.SetIdentity("   ", "")

	err := h.ctrl.Start()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Start returned %v, want *ValidationError", err)
	}
	if h.factory.created() != 0 {
		t.Error("widget created despite empty user name")
	}
	if h.nav.homeCount() != 1 {
		t.Error("controller did not navigate back to the entry view")
	}
}

func TestController_InsecureContextIsFatal(t *testing.T) {
	h := newHarness(t)
	h.env.secure = false

	h.ctrl.Start()
	h.waitForState(t, StateFailed)

	if h.factory.created() != 0 {
		t.Error("widget created despite insecure context")
	}
	if err := h.ctrl.Retry(); !errors.Is(err, ErrInsecureContext) {
		t.Errorf("Retry after insecure context returned %v, want ErrInsecureContext", err)
	}
	if err := h.ctrl.SwitchServer("8x8.vc"); !errors.Is(err, ErrInsecureContext) {
		t.Errorf("SwitchServer after insecure context returned %v, want ErrInsecureContext", err)
	}
}

func TestController_ScriptLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.env.setInjectErr(errors.New("script blocked"))

	h.ctrl.Start()
	h.waitForState(t, StateFailed)

	if msg := h.store.Error(); !strings.Contains(msg, "meet.jit.si") {
		t.Errorf("failure message %q does not name the server", msg)
	}

	// A later retry must load cleanly once the script is reachable.
	h.env.setInjectErr(nil)
	if err := h.ctrl.Retry(); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	h.waitForState(t, StateConnecting)
}

func TestController_ContainerUnavailable(t *testing.T) {
	h := newHarness(t)
	h.env.container = false

	h.ctrl.Start()
	h.waitForState(t, StateFailed)

	if h.factory.created() != 0 {
		t.Error("widget created without a rendering surface")
	}
}

func TestController_MembersOnlyDetection(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)

	handle := h.factory.handle(0)
	handle.fire(widget.EventConnectionFailed, widget.Event{
		Name: widget.EventConnectionFailed,
		Err:  &widget.EventError{Name: widget.ErrNameMembersOnly},
	})

	h.waitForState(t, StateMembersOnly)
	if msg := h.store.Error(); !strings.Contains(msg, "Waiting room") {
		t.Errorf("members-only message %q is not actionable", msg)
	}
}

func TestController_GenericConnectionFailure(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)

	h.factory.handle(0).fire(widget.EventConnectionFailed, widget.Event{
		Name: widget.EventConnectionFailed,
		Err:  &widget.EventError{Name: "connection.droppedError"},
	})

	h.waitForState(t, StateFailed)
}

func TestController_ConnectTimeout(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)

	// No join, no failure: the timer must resolve the attempt.
	h.waitForState(t, StateTimedOut)
}

func TestController_SwitchServerCancelsPendingTimer(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)
	old := h.factory.handle(0)

	if err := h.ctrl.SwitchServer("8x8.vc"); err != nil {
		t.Fatalf("SwitchServer returned error: %v", err)
	}

	waitFor(t, "second widget", func() bool { return h.factory.created() == 2 })
	if old.disposeCount() != 1 {
		t.Errorf("old handle disposed %d times on switch, want 1", old.disposeCount())
	}
	if got := h.store.ServerDomain(); got != "8x8.vc" {
		t.Errorf("server domain = %q after switch, want 8x8.vc", got)
	}

	h.factory.handle(1).fire(widget.EventConferenceJoined, widget.Event{})
	h.waitForState(t, StateConnected)

	// Outlive the first attempt's timeout: its timer must not fire into the
	// new attempt's state.
	time.Sleep(h.cfg.ConnectTimeout + 50*time.Millisecond)
	if got := h.ctrl.State(); got != StateConnected {
		t.Errorf("state = %s after old timer deadline, want connected", got)
	}
}

func TestController_StaleEventsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)
	old := h.factory.handle(0)

	h.factory.handle(0).fire(widget.EventConnectionFailed, widget.Event{})
	h.waitForState(t, StateFailed)
	if err := h.ctrl.Retry(); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	waitFor(t, "second widget", func() bool { return h.factory.created() == 2 })

	// A late join event from the superseded attempt must not flip state.
	old.fire(widget.EventConferenceJoined, widget.Event{})
	if got := h.ctrl.State(); got == StateConnected {
		t.Error("stale conferenceJoined was applied to the new attempt")
	}
}

func TestController_DisposeExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)
	first := h.factory.handle(0)

	// Retry path.
	first.fire(widget.EventConnectionFailed, widget.Event{})
	h.waitForState(t, StateFailed)
	h.ctrl.Retry()
	waitFor(t, "second widget", func() bool { return h.factory.created() == 2 })
	if first.disposeCount() != 1 {
		t.Errorf("first handle disposed %d times after retry, want 1", first.disposeCount())
	}

	// Server-switch path.
	second := h.factory.handle(1)
	h.ctrl.SwitchServer("8x8.vc")
	waitFor(t, "third widget", func() bool { return h.factory.created() == 3 })
	if second.disposeCount() != 1 {
		t.Errorf("second handle disposed %d times after switch, want 1", second.disposeCount())
	}

	// Remote-initiated leave path.
	third := h.factory.handle(2)
	third.fire(widget.EventConferenceJoined, widget.Event{})
	h.waitForState(t, StateConnected)
	third.fire(widget.EventReadyToClose, widget.Event{})
	h.waitForState(t, StateLeft)
	if third.disposeCount() != 1 {
		t.Errorf("third handle disposed %d times after readyToClose, want 1", third.disposeCount())
	}

	// Close after leave must not double-dispose anything.
	h.ctrl.Close()
	for i, handle := range []*fakeHandle{first, second, third} {
		if handle.disposeCount() != 1 {
			t.Errorf("handle %d disposed %d times after close, want 1", i, handle.disposeCount())
		}
	}
	if h.nav.homeCount() == 0 {
		t.Error("readyToClose did not navigate home")
	}
}

func TestController_CloseDisposesLiveHandle(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)
	handle := h.factory.handle(0)

	h.ctrl.Close()
	if handle.disposeCount() != 1 {
		t.Errorf("handle disposed %d times on close, want 1", handle.disposeCount())
	}
	if err := h.ctrl.Start(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Start after Close returned %v, want ErrSessionClosed", err)
	}
}

func TestController_RestartAfterFailureDisposesOldHandle(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)
	first := h.factory.handle(0)

	first.fire(widget.EventConnectionFailed, widget.Event{
		Name: widget.EventConnectionFailed,
		Err:  &widget.EventError{Name: "connection.droppedError"},
	})
	h.waitForState(t, StateFailed)

	// Start again instead of Retry: the failed attempt's handle must be
	// released before the new attempt publishes its own.
	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("Start after failure returned error: %v", err)
	}
	waitFor(t, "second widget", func() bool { return h.factory.created() == 2 })

	if got := first.disposeCount(); got != 1 {
		t.Errorf("first handle disposed %d times after restart, want 1", got)
	}

	h.factory.handle(1).fire(widget.EventConferenceJoined, widget.Event{})
	h.waitForState(t, StateConnected)
	if got := first.disposeCount(); got != 1 {
		t.Errorf("first handle disposed %d times after new attempt connected, want 1", got)
	}
}

func TestController_ReentrantStartSuppressed(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)

	if err := h.ctrl.Start(); err != nil {
		t.Fatalf("re-entrant Start returned error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if h.factory.created() != 1 {
		t.Errorf("re-entrant start created %d widgets, want 1", h.factory.created())
	}
}

func TestController_RetryOnlyFromRecoverableStates(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.waitForState(t, StateConnecting)

	if err := h.ctrl.Retry(); !errors.Is(err, ErrNotRecoverable) {
		t.Errorf("Retry while connecting returned %v, want ErrNotRecoverable", err)
	}
}

func TestController_GuestStartsAudioMuted(t *testing.T) {
	h := newHarness(t)
	h.store.SetRole(session.RoleGuest)

	cfg := h.ctrl.widgetConfig("meet.jit.si", "Bob", "", false)
	if !cfg.Overwrite.StartWithAudioMuted {
		t.Error("guest widget config does not start audio-muted")
	}

	hostCfg := h.ctrl.widgetConfig("meet.jit.si", "Ann", "", true)
	if hostCfg.Overwrite.StartWithAudioMuted {
		t.Error("host widget config starts audio-muted")
	}
}

// Package controller owns the meeting-session lifecycle: it decides when to
// instantiate the conferencing widget, wires its event stream into the
// session store, recovers from failures, and tears everything down again.
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/embedmeet/embedmeet/pkg/config"
	"github.com/embedmeet/embedmeet/pkg/events"
	"github.com/embedmeet/embedmeet/pkg/log"
	"github.com/embedmeet/embedmeet/pkg/retry"
	"github.com/embedmeet/embedmeet/pkg/roomname"
	"github.com/embedmeet/embedmeet/pkg/session"
	"github.com/embedmeet/embedmeet/pkg/widget"
)

// DefaultContainerID is the stable identifier of the rendering surface the
// widget is handed.
const DefaultContainerID = "meeting-container"

// Navigator is the external navigation collaborator: leaving a session (or
// aborting before one starts) returns the user to the entry view.
type Navigator interface {
	NavigateHome(room string)
}

// attempt is one widget instantiation attempt. Every asynchronous
// continuation it schedules carries a pointer to it, and handlers compare it
// against the controller's current attempt before touching state, so a stale
// resolution is detected and discarded instead of applied.
type attempt struct {
	ctx      context.Context
	cancel   context.CancelFunc
	timer    *time.Timer // connection timeout, nil until the widget exists
	resolved bool        // at most one of connected/failed/timed-out/members-only
}

func (a *attempt) stopTimer() {
	if a.timer != nil {
		a.timer.Stop()
	}
}

// Controller drives one room's session state machine.
type Controller struct {
	cfg     *config.Config
	store   *session.Store
	env     widget.Environment
	factory widget.Factory
	loader  *widget.Loader
	bus     *events.Bus
	nav     Navigator

	room        string
	containerID string

	mu           sync.Mutex
	state        State
	participants int
	fatal        bool
	closed       bool
	attempt      *attempt
}

// New creates a controller for one canonical room slug. The store carries the
// user's identity and the selected server; bus and nav may be nil.
func New(cfg *config.Config, store *session.Store, env widget.Environment, factory widget.Factory,
	loader *widget.Loader, bus *events.Bus, nav Navigator, room string) *Controller {
	return &Controller{
		cfg:         cfg,
		store:       store,
		env:         env,
		factory:     factory,
		loader:      loader,
		bus:         bus,
		nav:         nav,
		room:        room,
		containerID: DefaultContainerID,
		state:       StateIdle,
	}
}

// Room returns the canonical room slug.
func (c *Controller) Room() string { return c.room }

// Store returns the session state store.
func (c *Controller) Store() *session.Store { return c.store }

// State returns the current state machine position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Participants returns the tracked participant count.
func (c *Controller) Participants() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participants
}

// JoinURL returns the shareable URL for this session on its current server.
func (c *Controller) JoinURL() string {
	return roomname.JoinURL(c.room, c.store.ServerDomain())
}

// Start begins a session attempt. Re-entrant calls while an attempt is in
// flight (or the session is live) are suppressed; starting over from a
// resolved failure tears the old attempt down first. A missing room or an
// empty trimmed user name aborts back to the entry view.
func (c *Controller) Start() error {
	c.mu.Lock()

	if c.closed || c.state == StateLeft {
		c.mu.Unlock()
		return ErrSessionClosed
	}

	name, _ := c.store.Identity()
	if c.room == "" || strings.TrimSpace(name) == "" {
		c.mu.Unlock()
		c.navigateHome()
		return &ValidationError{Field: "display_name", Message: "room and user name are required"}
	}

	if c.attempt != nil {
		if c.state.inFlight() {
			log.Debugf("Suppressing re-entrant start for room %s in state %s", c.room, c.state)
			c.mu.Unlock()
			return nil
		}
		// A resolved attempt (failed, timed out, members-only) may still hold
		// a published handle; release it before the next attempt starts.
		c.teardownAttemptLocked()
	}

	c.beginAttemptLocked()
	c.mu.Unlock()
	return nil
}

// Retry re-enters the attempt loop after a recoverable failure.
func (c *Controller) Retry() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state == StateLeft {
		return ErrSessionClosed
	}
	if c.fatal {
		return ErrInsecureContext
	}
	if !c.state.Recoverable() {
		return ErrNotRecoverable
	}

	log.Infof("Retrying session for room %s", c.room)
	c.teardownAttemptLocked()
	c.store.SetError("")
	c.beginAttemptLocked()
	return nil
}

// SwitchServer moves the session to a different conferencing server and
// restarts the attempt. Allowed from any non-terminal state, including
// mid-connect: the pending attempt (and its timeout timer) is torn down
// before the new one starts.
func (c *Controller) SwitchServer(domain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state == StateLeft {
		return ErrSessionClosed
	}
	if c.fatal {
		return ErrInsecureContext
	}

	log.Infof("Switching room %s to server %s", c.room, domain)
	c.teardownAttemptLocked()
	c.store.SetServerDomain(domain)
	c.store.SetError("")
	c.beginAttemptLocked()
	return nil
}

// Leave ends the session locally: dispose, reset session state, navigate
// away. Terminal.
func (c *Controller) Leave() error {
	c.mu.Lock()
	if c.closed || c.state == StateLeft {
		c.mu.Unlock()
		return ErrSessionClosed
	}

	log.Infof("Leaving session for room %s", c.room)
	c.teardownAttemptLocked()
	c.state = StateLeft
	c.publishLocked(events.TypeStateChanged)
	c.mu.Unlock()

	c.navigateHome()
	return nil
}

// Close tears the controller down on unmount: dispose any live handle, stop
// pending timers and polls, discard in-flight resolutions. No navigation.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.teardownAttemptLocked()
}

// beginAttemptLocked starts a fresh attempt. The previous attempt, if any,
// must already be torn down: at most one is in flight.
func (c *Controller) beginAttemptLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{ctx: ctx, cancel: cancel}
	c.attempt = a
	c.participants = 0
	c.state = StateCheckingPreconditions
	c.store.SetLoading(true)
	c.publishLocked(events.TypeStateChanged)

	go c.run(a)
}

// teardownAttemptLocked cancels the current attempt's waits, stops its timer
// and disposes the widget handle through the store's single dispose path.
func (c *Controller) teardownAttemptLocked() {
	if a := c.attempt; a != nil {
		a.stopTimer()
		a.cancel()
		c.attempt = nil
	}
	c.store.EndSession()
	c.participants = 0
}

// run advances one attempt through the state machine up to CONNECTING; from
// there on, widget events drive the transitions.
func (c *Controller) run(a *attempt) {
	domain := c.store.ServerDomain()

	if !c.env.SecureContext() {
		c.mu.Lock()
		c.fatal = true
		c.mu.Unlock()
		c.fail(a, StateFailed, fmt.Sprintf("Failed to initialize video conference: %v.", ErrInsecureContext))
		return
	}

	if !c.advance(a, StateLoadingScript) {
		return
	}
	if err := c.loader.EnsureLoaded(a.ctx, domain); err != nil {
		if a.ctx.Err() != nil {
			return // torn down mid-load; discard
		}
		log.Errorf("Widget script load failed for room %s: %v", c.room, err)
		c.fail(a, StateFailed, fmt.Sprintf("Failed to load the conferencing script from %s. Please try again or select a different server.", domain))
		return
	}

	if !c.advance(a, StateAwaitingContainer) {
		return
	}
	err := retry.Do(a.ctx, c.cfg.ContainerPollAttempts, c.cfg.ContainerPollDelay, func() (bool, error) {
		return c.env.ContainerAvailable(c.containerID), nil
	})
	if err != nil {
		if a.ctx.Err() != nil {
			return
		}
		log.Errorf("Container unavailable for room %s: %v", c.room, ErrContainerUnavailable)
		c.fail(a, StateFailed, "The meeting view did not become ready. Please try again.")
		return
	}

	if !c.advance(a, StateCreatingWidget) {
		return
	}
	name, email := c.store.Identity()
	host := c.store.Role() == session.RoleHost

	handle, err := c.factory.Create(domain, c.widgetConfig(domain, name, email, host))
	if err != nil {
		if a.ctx.Err() != nil {
			return
		}
		log.Errorf("Widget creation failed for room %s: %v", c.room, &ConnectivityError{Domain: domain, Err: err})
		c.fail(a, StateFailed, fmt.Sprintf("Failed to connect to %s. Please try again or select a different server.", domain))
		return
	}

	// Listeners attach before the handle is visible anywhere else, so no
	// event can slip between creation and subscription.
	handle.AddListener(widget.EventConnectionFailed, func(ev widget.Event) { c.onConnectionFailed(a, domain, ev) })
	handle.AddListener(widget.EventConferenceError, func(ev widget.Event) { c.onConnectionFailed(a, domain, ev) })
	handle.AddListener(widget.EventConferenceJoined, func(widget.Event) { c.onConferenceJoined(a) })
	handle.AddListener(widget.EventConferenceLeft, func(widget.Event) { c.onConferenceLeft(a) })
	handle.AddListener(widget.EventReadyToClose, func(widget.Event) { c.onReadyToClose(a) })
	handle.AddListener(widget.EventParticipantJoined, func(widget.Event) { c.addParticipants(a, 1) })
	handle.AddListener(widget.EventParticipantLeft, func(widget.Event) { c.addParticipants(a, -1) })
	handle.AddListener(widget.EventVideoConferenceJoined, func(widget.Event) { c.setParticipants(a, 1) })
	handle.AddListener(widget.EventVideoConferenceLeft, func(widget.Event) { c.setParticipants(a, 0) })

	c.mu.Lock()
	if c.attempt != a || a.ctx.Err() != nil {
		c.mu.Unlock()
		// The attempt was torn down while the widget was being created; the
		// handle was never published, so it is disposed right here.
		handle.Dispose()
		return
	}
	c.store.SetWidgetHandle(handle)
	a.timer = time.AfterFunc(c.cfg.ConnectTimeout, func() { c.onTimeout(a, domain) })
	c.state = StateConnecting
	c.store.SetLoading(false)
	c.publishLocked(events.TypeStateChanged)
	c.mu.Unlock()

	log.Infof("Widget created for room %s on %s, awaiting join", c.room, domain)
}

// advance moves the attempt to the next progress state, unless the attempt
// has been superseded or canceled.
func (c *Controller) advance(a *attempt, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != a || a.ctx.Err() != nil {
		return false
	}
	c.state = s
	c.publishLocked(events.TypeStateChanged)
	return true
}

// fail resolves the attempt into a failure state with a user-facing message.
func (c *Controller) fail(a *attempt, s State, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != a || a.resolved {
		return
	}
	a.resolved = true
	a.stopTimer()
	c.state = s
	c.store.SetLoading(false)
	c.store.SetError(msg)
	c.publishLocked(events.TypeError)
}

func (c *Controller) onConnectionFailed(a *attempt, domain string, ev widget.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != a || a.resolved {
		return // stale or duplicate event, ignore silently
	}
	a.resolved = true
	a.stopTimer()
	c.store.SetLoading(false)

	if ev.MembersOnly() {
		log.Warnf("Rejected joining room %s: %v", c.room, &MembersOnlyError{Domain: domain})
		c.state = StateMembersOnly
		c.store.SetError(fmt.Sprintf("Waiting room is enabled on %s. Try an alternative server or ask the host to admit you.", domain))
	} else {
		log.Warnf("Connection failed for room %s on %s: %+v", c.room, domain, ev.Err)
		c.state = StateFailed
		c.store.SetError(fmt.Sprintf("Failed to connect to %s. Please try again or select a different server.", domain))
	}
	c.publishLocked(events.TypeError)
}

func (c *Controller) onTimeout(a *attempt, domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != a || a.resolved {
		return
	}
	a.resolved = true
	log.Warnf("Connection timed out for room %s on %s", c.room, domain)
	c.state = StateTimedOut
	c.store.SetLoading(false)
	c.store.SetError(fmt.Sprintf("Connection to %s timed out. This may be due to network issues or server-side restrictions. Please try a different server.", domain))
	c.publishLocked(events.TypeError)
}

func (c *Controller) onConferenceJoined(a *attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != a || a.resolved {
		return
	}
	a.resolved = true
	a.stopTimer()
	log.Infof("Conference joined for room %s", c.room)
	c.state = StateConnected
	c.store.SetError("")
	c.store.SetInSession(true)
	c.publishLocked(events.TypeStateChanged)
}

func (c *Controller) onConferenceLeft(a *attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != a {
		return
	}
	c.store.SetInSession(false)
	c.publishLocked(events.TypeStateChanged)
}

func (c *Controller) onReadyToClose(a *attempt) {
	c.mu.Lock()
	if c.attempt != a {
		c.mu.Unlock()
		return
	}
	log.Infof("Session ready to close for room %s", c.room)
	c.teardownAttemptLocked()
	c.state = StateLeft
	c.publishLocked(events.TypeStateChanged)
	c.mu.Unlock()

	c.navigateHome()
}

func (c *Controller) addParticipants(a *attempt, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != a {
		return
	}
	c.participants += delta
	if c.participants < 0 {
		c.participants = 0
	}
	c.publishLocked(events.TypeParticipants)
}

func (c *Controller) setParticipants(a *attempt, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != a {
		return
	}
	c.participants = n
	c.publishLocked(events.TypeParticipants)
}

func (c *Controller) widgetConfig(domain, name, email string, host bool) widget.Config {
	return widget.Config{
		RoomName:    c.room,
		ContainerID: c.containerID,
		Width:       "100%",
		Height:      "100%",
		Overwrite: widget.Overwrite{
			StartWithAudioMuted: !host,
			StartWithVideoMuted: false,
			EnableWelcomePage:   false,
			PrejoinPageEnabled:  false,
			StartScreenSharing:  false,
			// Lobby preferences are configuration only; the remote server
			// may ignore them.
			EnableLobby:        false,
			RequireDisplayName: false,
		},
		Interface: widget.InterfaceOverwrite{
			ShowWatermark:            false,
			ShowBrandWatermark:       false,
			ShowExtensionBanner:      false,
			ShowDeepLinkingImage:     false,
			MobileAppPromo:           false,
			DefaultRemoteDisplayName: "Participant",
			DefaultLocalDisplayName:  name,
			AppName:                  "Video Conference",
		},
		UserInfo: widget.UserInfo{DisplayName: name, Email: email},
		Token:    widget.Token(c.room, name, domain, host),
	}
}

func (c *Controller) navigateHome() {
	if c.nav != nil {
		c.nav.NavigateHome(c.room)
	}
}

// publishLocked mirrors the current state onto the event bus. Callers hold
// c.mu; the bus never calls back into the controller.
func (c *Controller) publishLocked(eventType string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{
		Room:         c.room,
		Type:         eventType,
		State:        c.state.String(),
		Participants: c.participants,
		Error:        c.store.Error(),
	})
}

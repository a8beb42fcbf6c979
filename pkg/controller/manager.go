package controller

import (
	"fmt"
	"strings"
	"sync"

	"github.com/embedmeet/embedmeet/pkg/config"
	"github.com/embedmeet/embedmeet/pkg/events"
	"github.com/embedmeet/embedmeet/pkg/log"
	"github.com/embedmeet/embedmeet/pkg/roomname"
	"github.com/embedmeet/embedmeet/pkg/session"
	"github.com/embedmeet/embedmeet/pkg/widget"
)

// Manager multiplexes session controllers by canonical room slug. It also
// serves as the controllers' Navigator: navigating home removes the session.
type Manager struct {
	sessions sync.Map // map[string]*Controller

	cfg     *config.Config
	env     widget.Environment
	factory widget.Factory
	loader  *widget.Loader
	bus     *events.Bus
}

// NewManager creates a session manager. The script loader is shared across
// sessions so a domain's script loads once regardless of room count.
func NewManager(cfg *config.Config, env widget.Environment, factory widget.Factory, bus *events.Bus) *Manager {
	return &Manager{
		cfg:     cfg,
		env:     env,
		factory: factory,
		loader:  widget.NewLoader(env, cfg.ScriptGraceDelay),
		bus:     bus,
	}
}

// StartSession validates the inputs, derives the canonical slug and launches
// a session attempt. An empty room with host=true generates a fresh room (the
// create-meeting flow); guests must name the room they are joining.
func (m *Manager) StartSession(roomInput, displayName, email string, host bool) (*Controller, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, &ValidationError{Field: "display_name", Message: "please enter your name"}
	}

	if roomInput == "" {
		if !host {
			return nil, &ValidationError{Field: "room_name", Message: "please enter a room name"}
		}
		roomInput = roomname.Generate()
	}
	if !roomname.Validate(roomInput) {
		return nil, &ValidationError{Field: "room_name", Message: "room name must be 3-50 characters long"}
	}
	slug := roomname.Normalize(roomInput)

	store := session.NewStore(m.cfg.DefaultServerDomain)
	store.SetIdentity(displayName, email)
	if host {
		store.SetRole(session.RoleHost)
	} else {
		store.SetRole(session.RoleGuest)
	}

	ctrl := New(m.cfg, store, m.env, m.factory, m.loader, m.bus, m, slug)

	if _, loaded := m.sessions.LoadOrStore(slug, ctrl); loaded {
		return nil, fmt.Errorf("session %s already exists", slug)
	}

	if err := ctrl.Start(); err != nil {
		m.sessions.Delete(slug)
		return nil, err
	}

	log.Infof("Started session for room %s (role: %s)", slug, store.Role())
	return ctrl, nil
}

// Get returns the controller for a room slug.
func (m *Manager) Get(room string) (*Controller, bool) {
	value, exists := m.sessions.Load(room)
	if !exists {
		return nil, false
	}
	return value.(*Controller), true
}

// List returns all room slugs and their states.
func (m *Manager) List() map[string]State {
	result := make(map[string]State)
	m.sessions.Range(func(key, value interface{}) bool {
		result[key.(string)] = value.(*Controller).State()
		return true
	})
	return result
}

// Leave ends and removes a session.
func (m *Manager) Leave(room string) error {
	value, exists := m.sessions.LoadAndDelete(room)
	if !exists {
		return fmt.Errorf("session %s not found", room)
	}

	ctrl := value.(*Controller)
	if err := ctrl.Leave(); err != nil && err != ErrSessionClosed {
		log.Errorf("Error leaving session %s: %v", room, err)
	}
	ctrl.Close()

	log.Infof("Left session for room %s", room)
	return nil
}

// NavigateHome implements Navigator: a controller that navigated away is no
// longer addressable.
func (m *Manager) NavigateHome(room string) {
	if value, loaded := m.sessions.LoadAndDelete(room); loaded {
		value.(*Controller).Close()
		log.Infof("Session for room %s returned home", room)
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	count := 0
	m.sessions.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	log.Info("Shutting down session manager")

	m.sessions.Range(func(key, value interface{}) bool {
		value.(*Controller).Close()
		m.sessions.Delete(key)
		return true
	})

	log.Info("Session manager shutdown complete")
}

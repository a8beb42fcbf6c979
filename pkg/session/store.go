// Package session holds the page-lifetime state shared between the session
// controller and the presentation layer.
package session

import (
	"sync"

	"github.com/embedmeet/embedmeet/pkg/widget"
)

// Role says how the session was entered.
type Role int

const (
	RoleGuest Role = iota
	RoleHost
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "guest"
}

// Snapshot is a read-only copy of the store for presentation use.
type Snapshot struct {
	UserName       string `json:"user_name"`
	UserEmail      string `json:"user_email,omitempty"`
	Role           string `json:"role"`
	ServerDomain   string `json:"server_domain"`
	InSession      bool   `json:"in_session"`
	Loading        bool   `json:"loading"`
	Error          string `json:"error,omitempty"`
	IsAudioMuted   bool   `json:"is_audio_muted"`
	IsVideoMuted   bool   `json:"is_video_muted"`
	IsScreenShared bool   `json:"is_screen_shared"`
	IsChatOpen     bool   `json:"is_chat_open"`
	HasWidget      bool   `json:"has_widget"`
}

// Store is the single source of truth for one session's cross-view state.
// All mutations are atomic. The store holds the widget handle for command
// forwarding but never instantiates one; EndSession is the only place it
// disposes, and the controller routes every teardown through it so dispose
// runs at most once per handle.
type Store struct {
	mu sync.Mutex

	userName  string
	userEmail string
	role      Role

	serverDomain string
	handle       widget.Handle
	inSession    bool
	loading      bool
	errMsg       string

	audioMuted    bool
	videoMuted    bool
	screenSharing bool
	chatOpen      bool
}

// NewStore creates a store starting at the given conferencing server.
func NewStore(serverDomain string) *Store {
	return &Store{serverDomain: serverDomain}
}

func (s *Store) SetIdentity(name, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userName = name
	s.userEmail = email
}

func (s *Store) SetRole(role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
}

func (s *Store) Identity() (name, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userName, s.userEmail
}

func (s *Store) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Store) SetServerDomain(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverDomain = domain
}

func (s *Store) ServerDomain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverDomain
}

func (s *Store) SetWidgetHandle(h widget.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

func (s *Store) WidgetHandle() widget.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Store) SetInSession(in bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSession = in
}

func (s *Store) InSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inSession
}

func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

// SetError records a user-facing error message; empty clears it.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

func (s *Store) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// ToggleAudio forwards the mute command to the widget (no-op without a
// handle) and then flips the local flag. Command before flag, so a missing
// handle never silently updates UI without an attempt to apply it.
func (s *Store) ToggleAudio() bool {
	return s.toggle(widget.CommandToggleAudio, func() *bool { return &s.audioMuted })
}

func (s *Store) ToggleVideo() bool {
	return s.toggle(widget.CommandToggleVideo, func() *bool { return &s.videoMuted })
}

func (s *Store) ToggleScreenShare() bool {
	return s.toggle(widget.CommandToggleShareScreen, func() *bool { return &s.screenSharing })
}

func (s *Store) ToggleChat() bool {
	return s.toggle(widget.CommandToggleChat, func() *bool { return &s.chatOpen })
}

// toggle issues the widget command first, then flips the flag. The flag flips
// unconditionally: the widget is the source of truth asynchronously, but the
// local flag answers immediately for responsiveness.
func (s *Store) toggle(command string, flag func() *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		s.handle.ExecuteCommand(command)
	}
	f := flag()
	*f = !*f
	return *f
}

// EndSession disposes the widget handle if one exists and resets the session
// fields to defaults. Identity survives so the user can rejoin.
func (s *Store) EndSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endSessionLocked()
}

func (s *Store) endSessionLocked() {
	if s.handle != nil {
		s.handle.Dispose()
		s.handle = nil
	}
	s.inSession = false
	s.audioMuted = false
	s.videoMuted = false
	s.screenSharing = false
	s.chatOpen = false
}

// Reset is a full reset back to defaults, identity included.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endSessionLocked()
	s.userName = ""
	s.userEmail = ""
	s.role = RoleGuest
	s.loading = false
	s.errMsg = ""
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		UserName:       s.userName,
		UserEmail:      s.userEmail,
		Role:           s.role.String(),
		ServerDomain:   s.serverDomain,
		InSession:      s.inSession,
		Loading:        s.loading,
		Error:          s.errMsg,
		IsAudioMuted:   s.audioMuted,
		IsVideoMuted:   s.videoMuted,
		IsScreenShared: s.screenSharing,
		IsChatOpen:     s.chatOpen,
		HasWidget:      s.handle != nil,
	}
}

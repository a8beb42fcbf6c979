// Package widget wraps the external embeddable conferencing widget. The
// widget itself is a black box: given a server domain and a configuration it
// produces an interactive embedded surface and emits lifecycle events. This
// package never reimplements its internals.
package widget

// Event names emitted by the widget and consumed by the session controller.
const (
	EventConnectionFailed      = "connectionFailed"
	EventConferenceError       = "conferenceError"
	EventConferenceJoined      = "conferenceJoined"
	EventConferenceLeft        = "conferenceLeft"
	EventReadyToClose          = "readyToClose"
	EventParticipantJoined     = "participantJoined"
	EventParticipantLeft       = "participantLeft"
	EventVideoConferenceJoined = "videoConferenceJoined"
	EventVideoConferenceLeft   = "videoConferenceLeft"
)

// Commands issued to the widget.
const (
	CommandToggleAudio       = "toggleAudio"
	CommandToggleVideo       = "toggleVideo"
	CommandToggleChat        = "toggleChat"
	CommandToggleShareScreen = "toggleShareScreen"
)

// ErrNameMembersOnly identifies a waiting-room / members-only rejection in a
// connectionFailed or conferenceError event.
const ErrNameMembersOnly = "conference.connectionError.membersOnly"

// EventError describes the error payload attached to failure events.
type EventError struct {
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

// Event is a single widget lifecycle event.
type Event struct {
	Name string      `json:"name"`
	Err  *EventError `json:"error,omitempty"`
}

// MembersOnly reports whether the event carries a members-only error.
func (e Event) MembersOnly() bool {
	return e.Err != nil && e.Err.Name == ErrNameMembersOnly
}

// UserInfo identifies the local participant to the widget.
type UserInfo struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

// Overwrite holds conferencing preferences passed to the widget. The remote
// server may ignore any of them (lobby settings in particular).
type Overwrite struct {
	StartWithAudioMuted bool `json:"startWithAudioMuted"`
	StartWithVideoMuted bool `json:"startWithVideoMuted"`
	EnableWelcomePage   bool `json:"enableWelcomePage"`
	PrejoinPageEnabled  bool `json:"prejoinPageEnabled"`
	StartScreenSharing  bool `json:"startScreenSharing"`
	EnableLobby         bool `json:"enableLobby"`
	RequireDisplayName  bool `json:"requireDisplayName"`
}

// InterfaceOverwrite holds UI-chrome suppression preferences.
type InterfaceOverwrite struct {
	ShowWatermark            bool   `json:"showWatermark"`
	ShowBrandWatermark       bool   `json:"showBrandWatermark"`
	ShowExtensionBanner      bool   `json:"showExtensionBanner"`
	ShowDeepLinkingImage     bool   `json:"showDeepLinkingImage"`
	MobileAppPromo           bool   `json:"mobileAppPromo"`
	DefaultRemoteDisplayName string `json:"defaultRemoteDisplayName"`
	DefaultLocalDisplayName  string `json:"defaultLocalDisplayName"`
	AppName                  string `json:"appName"`
}

// Config is handed to the widget factory when instantiating a widget.
type Config struct {
	RoomName    string             `json:"roomName"`
	ContainerID string             `json:"containerId"`
	Width       string             `json:"width"`
	Height      string             `json:"height"`
	Overwrite   Overwrite          `json:"configOverwrite"`
	Interface   InterfaceOverwrite `json:"interfaceConfigOverwrite"`
	UserInfo    UserInfo           `json:"userInfo"`
	Token       string             `json:"token,omitempty"`
}

// Handle is the live widget instance: commands in, events out. Dispose must
// be idempotent; it releases all widget resources and detaches listeners.
type Handle interface {
	Dispose()
	ExecuteCommand(command string, args ...interface{})
	AddListener(event string, fn func(Event))
}

// Factory instantiates widgets for a server domain. Implementations require
// the domain's script to be loaded first (see Loader).
type Factory interface {
	Create(domain string, cfg Config) (Handle, error)
}

// Environment abstracts the page runtime the widget lives in: the global
// script registry and the secure-context check.
type Environment interface {
	// SecureContext reports whether the page is served over a context that
	// permits camera and microphone access.
	SecureContext() bool
	// FactoryPresent reports whether the widget factory for the domain is
	// registered on the global environment.
	FactoryPresent(domain string) bool
	// InjectScript adds a script reference to the page and returns once the
	// script load has finished (or failed).
	InjectScript(url string) error
	// ContainerAvailable reports whether the rendering surface with the given
	// identifier is attached to the page.
	ContainerAvailable(id string) bool
}

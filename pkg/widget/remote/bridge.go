// Package remote drives embeddable widgets living in a browser page
// through a JSON message bridge. The page runs a small agent script
// that executes injected commands against the real external API and
// reports widget events back; this package exposes that remote page
// as a widget.Environment and widget.Factory.
package remote

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/embedmeet/embedmeet/pkg/log"
	"github.com/embedmeet/embedmeet/pkg/widget"
)

// Outbound message types sent to the page agent.
const (
	MsgInjectScript   = "inject_script"
	MsgCreateWidget   = "create_widget"
	MsgExecuteCommand = "execute_command"
	MsgDisposeWidget  = "dispose_widget"
)

// Inbound message types received from the page agent.
const (
	MsgPageInfo           = "page_info"
	MsgScriptLoaded       = "script_loaded"
	MsgScriptFailed       = "script_failed"
	MsgContainerMounted   = "container_mounted"
	MsgContainerUnmounted = "container_unmounted"
	MsgWidgetCreated      = "widget_created"
	MsgWidgetFailed       = "widget_failed"
	MsgWidgetEvent        = "widget_event"
)

// Message is the wire format exchanged with the page agent. Fields are
// populated depending on Type.
type Message struct {
	Type        string         `json:"type"`
	RequestID   string         `json:"request_id,omitempty"`
	WidgetID    string         `json:"widget_id,omitempty"`
	Domain      string         `json:"domain,omitempty"`
	URL         string         `json:"url,omitempty"`
	ContainerID string         `json:"container_id,omitempty"`
	Command     string         `json:"command,omitempty"`
	Args        []interface{}  `json:"args,omitempty"`
	Config      *widget.Config `json:"config,omitempty"`
	Event       *widget.Event  `json:"event,omitempty"`
	Secure      bool           `json:"secure,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// SendFunc delivers a message to the page agent. Implementations are
// provided by the transport layer and must be safe for concurrent use.
type SendFunc func(Message) error

// Bridge mirrors the page's observable state (secure context, loaded
// factories, mounted containers) and routes widget events to their
// registered handles. One Bridge serves one connected page.
type Bridge struct {
	send    SendFunc
	timeout time.Duration

	mu         sync.RWMutex
	secure     bool
	factories  map[string]bool
	containers map[string]bool
	widgets    map[string]*remoteHandle
	pending    map[string]chan Message
}

// NewBridge creates a bridge for a freshly connected page agent.
// replyTimeout bounds how long request/reply exchanges may take.
func NewBridge(send SendFunc, replyTimeout time.Duration) *Bridge {
	return &Bridge{
		send:       send,
		timeout:    replyTimeout,
		factories:  make(map[string]bool),
		containers: make(map[string]bool),
		widgets:    make(map[string]*remoteHandle),
		pending:    make(map[string]chan Message),
	}
}

// SecureContext reports whether the page runs in a secure context.
func (b *Bridge) SecureContext() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.secure
}

// FactoryPresent reports whether the page has announced the external
// API for domain.
func (b *Bridge) FactoryPresent(domain string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.factories[domain]
}

// ContainerAvailable reports whether the page has mounted the named
// container element.
func (b *Bridge) ContainerAvailable(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.containers[id]
}

// InjectScript asks the page to insert a script tag for url and waits
// for the agent to confirm the load.
func (b *Bridge) InjectScript(url string) error {
	reply, err := b.request(Message{Type: MsgInjectScript, URL: url})
	if err != nil {
		return err
	}
	if reply.Type == MsgScriptFailed {
		return fmt.Errorf("page agent reported script failure: %s", reply.Error)
	}
	return nil
}

// Create instantiates a widget on the page and returns a handle bound
// to it. The handle is registered for event routing before the create
// confirmation is awaited, so no early event can be lost.
func (b *Bridge) Create(domain string, cfg widget.Config) (widget.Handle, error) {
	h := &remoteHandle{
		bridge:    b,
		id:        uuid.New().String(),
		listeners: make(map[string][]func(widget.Event)),
	}

	b.mu.Lock()
	b.widgets[h.id] = h
	b.mu.Unlock()

	reply, err := b.request(Message{
		Type:     MsgCreateWidget,
		WidgetID: h.id,
		Domain:   domain,
		Config:   &cfg,
	})
	if err != nil {
		b.dropWidget(h.id)
		return nil, err
	}
	if reply.Type == MsgWidgetFailed {
		b.dropWidget(h.id)
		return nil, fmt.Errorf("page agent could not create widget: %s", reply.Error)
	}

	log.Debugf("Created remote widget %s on %s", h.id, domain)
	return h, nil
}

// HandleMessage processes one inbound message from the page agent. The
// transport layer calls it from its read loop.
func (b *Bridge) HandleMessage(msg Message) {
	switch msg.Type {
	case MsgPageInfo:
		b.mu.Lock()
		b.secure = msg.Secure
		if msg.Domain != "" {
			b.factories[msg.Domain] = true
		}
		b.mu.Unlock()

	case MsgScriptLoaded:
		b.mu.Lock()
		if msg.Domain != "" {
			b.factories[msg.Domain] = true
		}
		b.mu.Unlock()
		b.resolve(msg)

	case MsgScriptFailed, MsgWidgetCreated, MsgWidgetFailed:
		b.resolve(msg)

	case MsgContainerMounted:
		b.mu.Lock()
		b.containers[msg.ContainerID] = true
		b.mu.Unlock()

	case MsgContainerUnmounted:
		b.mu.Lock()
		delete(b.containers, msg.ContainerID)
		b.mu.Unlock()

	case MsgWidgetEvent:
		b.routeEvent(msg)

	default:
		log.Warnf("Ignoring unknown page agent message type: %s", msg.Type)
	}
}

// Close drops all registered widgets and fails pending requests. The
// transport layer calls it when the page disconnects.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
	b.widgets = make(map[string]*remoteHandle)
	b.factories = make(map[string]bool)
	b.containers = make(map[string]bool)
}

func (b *Bridge) request(msg Message) (Message, error) {
	msg.RequestID = uuid.New().String()
	ch := make(chan Message, 1)

	b.mu.Lock()
	b.pending[msg.RequestID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, msg.RequestID)
		b.mu.Unlock()
	}()

	if err := b.send(msg); err != nil {
		return Message{}, fmt.Errorf("failed to send %s to page agent: %w", msg.Type, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case reply, ok := <-ch:
		if !ok {
			return Message{}, fmt.Errorf("page agent disconnected during %s", msg.Type)
		}
		return reply, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("timed out waiting for page agent reply to %s", msg.Type)
	}
}

func (b *Bridge) resolve(msg Message) {
	b.mu.RLock()
	ch, exists := b.pending[msg.RequestID]
	b.mu.RUnlock()
	if !exists {
		log.Warnf("Dropping reply for unknown request: %s", msg.RequestID)
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (b *Bridge) routeEvent(msg Message) {
	if msg.Event == nil {
		log.Warnf("Widget event without payload for widget %s", msg.WidgetID)
		return
	}

	b.mu.RLock()
	h := b.widgets[msg.WidgetID]
	b.mu.RUnlock()
	if h == nil {
		log.Warnf("Received event for unknown widget: %s", msg.WidgetID)
		return
	}
	h.fire(*msg.Event)
}

func (b *Bridge) dropWidget(id string) {
	b.mu.Lock()
	delete(b.widgets, id)
	b.mu.Unlock()
}

// remoteHandle is the controller-facing view of one widget living on
// the page.
type remoteHandle struct {
	bridge *Bridge
	id     string

	mu        sync.Mutex
	listeners map[string][]func(widget.Event)
	disposed  bool
}

// Dispose tells the page to tear the widget down. Repeated calls are
// no-ops.
func (h *remoteHandle) Dispose() {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.disposed = true
	h.mu.Unlock()

	h.bridge.dropWidget(h.id)
	if err := h.bridge.send(Message{Type: MsgDisposeWidget, WidgetID: h.id}); err != nil {
		log.Warnf("Failed to send dispose for widget %s: %v", h.id, err)
	}
}

// ExecuteCommand forwards a command to the widget without waiting for
// a reply.
func (h *remoteHandle) ExecuteCommand(command string, args ...interface{}) {
	h.mu.Lock()
	disposed := h.disposed
	h.mu.Unlock()
	if disposed {
		return
	}
	if err := h.bridge.send(Message{Type: MsgExecuteCommand, WidgetID: h.id, Command: command, Args: args}); err != nil {
		log.Warnf("Failed to send command %s to widget %s: %v", command, h.id, err)
	}
}

// AddListener registers fn for the named widget event.
func (h *remoteHandle) AddListener(event string, fn func(widget.Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[event] = append(h.listeners[event], fn)
}

func (h *remoteHandle) fire(ev widget.Event) {
	h.mu.Lock()
	fns := append([]func(widget.Event){}, h.listeners[ev.Name]...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

package remote

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/embedmeet/embedmeet/pkg/widget"
)

// agentStub captures outbound messages and replays scripted replies.
type agentStub struct {
	mu     sync.Mutex
	sent   []Message
	bridge *Bridge
	// reply maps an outbound type to the inbound type answered with.
	reply map[string]string
	errs  map[string]string
}

func newAgentStub() *agentStub {
	return &agentStub{
		reply: map[string]string{
			MsgInjectScript: MsgScriptLoaded,
			MsgCreateWidget: MsgWidgetCreated,
		},
		errs: make(map[string]string),
	}
}

func (a *agentStub) send(msg Message) error {
	a.mu.Lock()
	a.sent = append(a.sent, msg)
	replyType, answered := a.reply[msg.Type]
	a.mu.Unlock()
	if !answered {
		return nil
	}
	go a.bridge.HandleMessage(Message{
		Type:      replyType,
		RequestID: msg.RequestID,
		WidgetID:  msg.WidgetID,
		Domain:    msg.Domain,
		Error:     a.errs[replyType],
	})
	return nil
}

func (a *agentStub) sentTypes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	types := make([]string, 0, len(a.sent))
	for _, msg := range a.sent {
		types = append(types, msg.Type)
	}
	return types
}

func newTestBridge() (*Bridge, *agentStub) {
	agent := newAgentStub()
	bridge := NewBridge(agent.send, 500*time.Millisecond)
	agent.bridge = bridge
	return bridge, agent
}

func TestBridgePageInfo(t *testing.T) {
	bridge, _ := newTestBridge()

	if bridge.SecureContext() {
		t.Error("secure context reported before page info")
	}

	bridge.HandleMessage(Message{Type: MsgPageInfo, Secure: true, Domain: "meet.jit.si"})

	if !bridge.SecureContext() {
		t.Error("secure context not recorded from page info")
	}
	if !bridge.FactoryPresent("meet.jit.si") {
		t.Error("announced factory not recorded")
	}
	if bridge.FactoryPresent("8x8.vc") {
		t.Error("factory reported for a domain the page never announced")
	}
}

func TestBridgeContainerLifecycle(t *testing.T) {
	bridge, _ := newTestBridge()

	bridge.HandleMessage(Message{Type: MsgContainerMounted, ContainerID: "meeting-container"})
	if !bridge.ContainerAvailable("meeting-container") {
		t.Error("mounted container not available")
	}

	bridge.HandleMessage(Message{Type: MsgContainerUnmounted, ContainerID: "meeting-container"})
	if bridge.ContainerAvailable("meeting-container") {
		t.Error("unmounted container still available")
	}
}

func TestBridgeInjectScript(t *testing.T) {
	bridge, _ := newTestBridge()

	if err := bridge.InjectScript("https://meet.jit.si/external_api.js"); err != nil {
		t.Fatalf("InjectScript returned error: %v", err)
	}
}

func TestBridgeInjectScriptFailure(t *testing.T) {
	bridge, agent := newTestBridge()
	agent.reply[MsgInjectScript] = MsgScriptFailed
	agent.errs[MsgScriptFailed] = "blocked by CSP"

	err := bridge.InjectScript("https://meet.jit.si/external_api.js")
	if err == nil {
		t.Fatal("InjectScript did not surface the agent failure")
	}
	if !strings.Contains(err.Error(), "blocked by CSP") {
		t.Errorf("error %q does not carry the agent reason", err)
	}
}

func TestBridgeRequestTimeout(t *testing.T) {
	agent := newAgentStub()
	agent.reply = map[string]string{} // agent never answers
	bridge := NewBridge(agent.send, 20*time.Millisecond)
	agent.bridge = bridge

	if err := bridge.InjectScript("https://meet.jit.si/external_api.js"); err == nil {
		t.Fatal("InjectScript did not time out on a silent agent")
	}
}

func TestBridgeWidgetEvents(t *testing.T) {
	bridge, _ := newTestBridge()

	handle, err := bridge.Create("meet.jit.si", widget.Config{RoomName: "team-sync"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	received := make(chan widget.Event, 1)
	handle.AddListener(widget.EventConferenceJoined, func(ev widget.Event) {
		received <- ev
	})

	id := handle.(*remoteHandle).id
	bridge.HandleMessage(Message{
		Type:     MsgWidgetEvent,
		WidgetID: id,
		Event:    &widget.Event{Name: widget.EventConferenceJoined},
	})

	select {
	case ev := <-received:
		if ev.Name != widget.EventConferenceJoined {
			t.Errorf("event name = %q, want %q", ev.Name, widget.EventConferenceJoined)
		}
	case <-time.After(time.Second):
		t.Fatal("listener never received the routed event")
	}

	// Events for unknown widgets are dropped without panicking.
	bridge.HandleMessage(Message{
		Type:     MsgWidgetEvent,
		WidgetID: "no-such-widget",
		Event:    &widget.Event{Name: widget.EventConferenceJoined},
	})
}

func TestBridgeDisposeIdempotent(t *testing.T) {
	bridge, agent := newTestBridge()

	handle, err := bridge.Create("meet.jit.si", widget.Config{RoomName: "team-sync"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	handle.Dispose()
	handle.Dispose()

	disposes := 0
	for _, typ := range agent.sentTypes() {
		if typ == MsgDisposeWidget {
			disposes++
		}
	}
	if disposes != 1 {
		t.Errorf("dispose sent %d times, want 1", disposes)
	}

	// Commands after dispose are swallowed.
	before := len(agent.sentTypes())
	handle.ExecuteCommand(widget.CommandToggleAudio)
	if got := len(agent.sentTypes()); got != before {
		t.Error("command sent on a disposed widget")
	}
}

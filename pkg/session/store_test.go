package session

import (
	"sync"
	"testing"

	"github.com/embedmeet/embedmeet/pkg/widget"
)

// fakeHandle records commands and dispose calls.
type fakeHandle struct {
	mu       sync.Mutex
	commands []string
	disposed int
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

func (h *fakeHandle) AddListener(event string, fn func(widget.Event)) {}

func TestStore_TogglesForwardCommandThenFlipFlag(t *testing.T) {
	store := NewStore("meet.example.com")
	handle := &fakeHandle{}
	store.SetWidgetHandle(handle)

	if muted := store.ToggleAudio(); !muted {
		t.Error("ToggleAudio did not flip flag to true")
	}
	if open := store.ToggleChat(); !open {
		t.Error("ToggleChat did not flip flag to true")
	}
	store.ToggleVideo()
	store.ToggleScreenShare()

	want := []string{
		widget.CommandToggleAudio,
		widget.CommandToggleChat,
		widget.CommandToggleVideo,
		widget.CommandToggleShareScreen,
	}
	if len(handle.commands) != len(want) {
		t.Fatalf("handle received %d commands, want %d", len(handle.commands), len(want))
	}
	for i, cmd := range want {
		if handle.commands[i] != cmd {
			t.Errorf("command %d = %q, want %q", i, handle.commands[i], cmd)
		}
	}

	snap := store.Snapshot()
	if !snap.IsAudioMuted || !snap.IsVideoMuted || !snap.IsScreenShared || !snap.IsChatOpen {
		t.Errorf("toggles not reflected in snapshot: %+v", snap)
	}
}

func TestStore_ToggleWithoutHandleStillFlips(t *testing.T) {
	store := NewStore("meet.example.com")

	if muted := store.ToggleAudio(); !muted {
		t.Error("ToggleAudio without handle did not flip flag")
	}
	if muted := store.ToggleAudio(); muted {
		t.Error("second ToggleAudio did not flip flag back")
	}
}

func TestStore_EndSessionDisposesOnceAndKeepsIdentity(t *testing.T) {
	store := NewStore("meet.example.com")
	store.SetIdentity("Ann", "ann@example.com")
	store.SetRole(RoleHost)
	handle := &fakeHandle{}
	store.SetWidgetHandle(handle)
	store.SetInSession(true)
	store.ToggleAudio()

	store.EndSession()
	store.EndSession() // second call must not double-dispose

	if handle.disposed != 1 {
		t.Errorf("handle disposed %d times, want 1", handle.disposed)
	}

	snap := store.Snapshot()
	if snap.InSession || snap.HasWidget || snap.IsAudioMuted {
		t.Errorf("session fields not reset: %+v", snap)
	}
	if snap.UserName != "Ann" || snap.Role != "host" {
		t.Errorf("identity did not survive EndSession: %+v", snap)
	}
}

func TestStore_ResetClearsIdentity(t *testing.T) {
	store := NewStore("meet.example.com")
	store.SetIdentity("Ann", "")
	store.SetRole(RoleHost)
	store.SetError("boom")
	store.SetLoading(true)

	store.Reset()

	snap := store.Snapshot()
	if snap.UserName != "" || snap.Role != "guest" || snap.Error != "" || snap.Loading {
		t.Errorf("Reset left state behind: %+v", snap)
	}
}

func TestStore_InSessionImpliesHandle(t *testing.T) {
	store := NewStore("meet.example.com")
	handle := &fakeHandle{}
	store.SetWidgetHandle(handle)
	store.SetInSession(true)

	snap := store.Snapshot()
	if snap.InSession && !snap.HasWidget {
		t.Error("in-session snapshot without widget handle")
	}

	store.EndSession()
	snap = store.Snapshot()
	if snap.InSession {
		t.Error("still in session after EndSession")
	}
}

package dispatch

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/client/domain"
	"github.com/emberchat/ember/internal/client/event"
	"github.com/emberchat/ember/internal/client/store"
	"github.com/emberchat/ember/internal/protocol"
)

// fakeFetcher stands in for the orchestrator and "fetches" a fixed
// history into the store, counting invocations.
type fakeFetcher struct {
	mu      sync.Mutex
	store   *store.Store
	history map[string][]domain.Message
	calls   int
	done    chan struct{}
}

func (f *fakeFetcher) FetchRecentMessages(_ context.Context, sessionID string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	// Fetch-if-absent, like the orchestrator: once the history is in,
	// later triggers are no-ops instead of re-replacing the list.
	if _, loaded := f.store.RecentMessages(sessionID); !loaded {
		f.store.ReplaceRecentMessages(sessionID, f.history[sessionID])
	}
	if f.done != nil {
		f.done <- struct{}{}
	}
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store, *event.Bus, *fakeFetcher) {
	t.Helper()
	bus := event.NewBus()
	st := store.New(store.NewStateFile(filepath.Join(t.TempDir(), "state.json")), bus, zerolog.Nop())
	fetcher := &fakeFetcher{store: st, history: map[string][]domain.Message{}}
	return New(st, bus, fetcher, zerolog.Nop()), st, bus, fetcher
}

func frame(t *testing.T, n protocol.Notification) []byte {
	t.Helper()
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func wireMessage(id, sessionID, text string) protocol.MessageInfo {
	return protocol.MessageInfo{
		MessageID:     id,
		ChatSessionID: sessionID,
		Timestamp:     time.Now().Unix(),
		Sender:        protocol.UserInfo{UserID: "U2", Nickname: "bob"},
		Message:       protocol.MessageContent{Kind: protocol.KindText, Content: []byte(text)},
	}
}

func TestChatMessagePushToFocusedSession(t *testing.T) {
	d, st, bus, _ := newTestDispatcher(t)
	st.ReplaceSessionList([]domain.ChatSession{
		{SessionID: "S1"}, {SessionID: "S2"},
	})
	st.ReplaceRecentMessages("S2", nil)
	st.SetCurrentSessionID("S2")

	var received, previewChanged int
	bus.Subscribe(func(ev event.Event) {
		switch ev.Type {
		case event.MessageReceived:
			received++
		case event.LastMessageChanged:
			previewChanged++
		}
	})

	m := wireMessage("M1", "S2", "hello")
	d.HandleFrame(frame(t, protocol.Notification{Type: protocol.NotifyChatMessage, NewMessage: &m}))

	if received != 1 {
		t.Errorf("message-received emitted %d times, want 1", received)
	}
	if previewChanged != 1 {
		t.Errorf("preview event emitted %d times, want 1", previewChanged)
	}
	if got := st.Unread("S2"); got != 0 {
		t.Errorf("focused session gained unread: %d", got)
	}

	msgs, _ := st.RecentMessages("S2")
	if len(msgs) != 1 || msgs[0].MessageID != "M1" {
		t.Errorf("cached messages: %+v", msgs)
	}
	list, _ := st.SessionList()
	if list[0].SessionID != "S2" {
		t.Errorf("session not promoted: %v", list[0].SessionID)
	}
	if list[0].LastMessage == nil || list[0].LastMessage.MessageID != "M1" {
		t.Errorf("preview not updated: %+v", list[0].LastMessage)
	}
}

func TestChatMessagePushToBackgroundSessionCountsUnread(t *testing.T) {
	d, st, bus, _ := newTestDispatcher(t)
	st.ReplaceSessionList([]domain.ChatSession{{SessionID: "S1"}, {SessionID: "S2"}})
	st.ReplaceRecentMessages("S2", nil)
	st.SetCurrentSessionID("S1")

	var received int
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.MessageReceived {
			received++
		}
	})

	m := wireMessage("M1", "S2", "psst")
	d.HandleFrame(frame(t, protocol.Notification{Type: protocol.NotifyChatMessage, NewMessage: &m}))

	if received != 0 {
		t.Errorf("background push emitted message-received %d times", received)
	}
	if got := st.Unread("S2"); got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}
}

func TestChatMessagePushTriggersHistoryFetchWhenUnloaded(t *testing.T) {
	d, st, _, fetcher := newTestDispatcher(t)
	st.ReplaceSessionList([]domain.ChatSession{{SessionID: "S1"}})
	fetcher.history["S1"] = []domain.Message{
		{MessageID: "H1", SessionID: "S1", Kind: domain.KindText, Payload: []byte("old")},
	}
	fetcher.done = make(chan struct{}, 1)

	m := wireMessage("M1", "S1", "new")
	d.HandleFrame(frame(t, protocol.Notification{Type: protocol.NotifyChatMessage, NewMessage: &m}))

	select {
	case <-fetcher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("history fetch never triggered")
	}

	// The fetched history plus the buffered push, in that order.
	msgs, loaded := st.RecentMessages("S1")
	if !loaded || len(msgs) != 2 {
		t.Fatalf("messages after fetch: %+v loaded=%v", msgs, loaded)
	}
	if msgs[0].MessageID != "H1" || msgs[1].MessageID != "M1" {
		t.Errorf("merge order: %s, %s", msgs[0].MessageID, msgs[1].MessageID)
	}
}

func TestFetchRacingPushesConverges(t *testing.T) {
	d, st, _, fetcher := newTestDispatcher(t)
	st.ReplaceSessionList([]domain.ChatSession{{SessionID: "S1"}})
	fetcher.history["S1"] = []domain.Message{
		{MessageID: "H1", SessionID: "S1", Kind: domain.KindText, Payload: []byte("a")},
		{MessageID: "H2", SessionID: "S1", Kind: domain.KindText, Payload: []byte("b")},
	}
	fetcher.done = make(chan struct{}, 8)

	for _, id := range []string{"P1", "P2", "P3"} {
		m := wireMessage(id, "S1", "pushed")
		d.HandleFrame(frame(t, protocol.Notification{Type: protocol.NotifyChatMessage, NewMessage: &m}))
	}

	deadline := time.After(2 * time.Second)
	for {
		msgs, loaded := st.RecentMessages("S1")
		if loaded && len(msgs) == 5 {
			seen := make(map[string]bool)
			for _, m := range msgs {
				if seen[m.MessageID] {
					t.Fatalf("duplicate message %s", m.MessageID)
				}
				seen[m.MessageID] = true
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("never converged: %+v loaded=%v", msgs, loaded)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionCreatePush(t *testing.T) {
	d, st, bus, _ := newTestDispatcher(t)
	st.ReplaceSessionList([]domain.ChatSession{{SessionID: "S1"}})

	var changed int
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.SessionListChanged {
			changed++
		}
	})

	d.HandleFrame(frame(t, protocol.Notification{
		Type:       protocol.NotifySessionCreate,
		NewSession: &protocol.ChatSessionInfo{ChatSessionID: "S2", ChatSessionName: "new group"},
	}))

	list, _ := st.SessionList()
	if len(list) != 2 || list[0].SessionID != "S2" {
		t.Errorf("session list: %+v", list)
	}
	if changed != 1 {
		t.Errorf("session-list-changed emitted %d times", changed)
	}
}

func TestFriendRemovePushClearsFocus(t *testing.T) {
	d, st, bus, _ := newTestDispatcher(t)
	st.ReplaceFriendList([]domain.UserProfile{{UserID: "U2"}})
	st.ReplaceSessionList([]domain.ChatSession{{SessionID: "S1", PeerUserID: "U2"}})
	st.SetCurrentSessionID("S1")

	var focusCleared int
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.FocusCleared {
			focusCleared++
		}
	})

	d.HandleFrame(frame(t, protocol.Notification{
		Type:         protocol.NotifyFriendRemove,
		RemoveUserID: "U2",
	}))

	friends, _ := st.FriendList()
	if len(friends) != 0 {
		t.Errorf("friend survived: %+v", friends)
	}
	if st.CurrentSessionID() != "" {
		t.Error("focus not cleared")
	}
	if focusCleared != 1 {
		t.Errorf("focus-cleared emitted %d times, want 1", focusCleared)
	}
}

func TestFriendApplyPush(t *testing.T) {
	d, st, bus, _ := newTestDispatcher(t)
	st.ReplaceApplyList(nil)

	var changed int
	bus.Subscribe(func(ev event.Event) {
		if ev.Type == event.ApplyListChanged {
			changed++
		}
	})

	d.HandleFrame(frame(t, protocol.Notification{
		Type:      protocol.NotifyFriendApply,
		ApplyUser: &protocol.UserInfo{UserID: "U9", Nickname: "dave"},
	}))

	applies, _ := st.ApplyList()
	if len(applies) != 1 || applies[0].UserID != "U9" {
		t.Errorf("apply list: %+v", applies)
	}
	if changed != 1 {
		t.Errorf("apply-list-changed emitted %d times", changed)
	}
}

func TestFriendProcessPush(t *testing.T) {
	t.Run("agree adds the friend", func(t *testing.T) {
		d, st, bus, _ := newTestDispatcher(t)
		st.ReplaceFriendList(nil)

		var done *event.Event
		bus.Subscribe(func(ev event.Event) {
			if ev.Type == event.FriendProcessDone {
				done = &ev
			}
		})

		d.HandleFrame(frame(t, protocol.Notification{
			Type:        protocol.NotifyFriendProcess,
			ProcessUser: &protocol.UserInfo{UserID: "U3", Nickname: "carol"},
			Agree:       true,
		}))

		friends, _ := st.FriendList()
		if len(friends) != 1 || friends[0].UserID != "U3" {
			t.Errorf("friend list: %+v", friends)
		}
		if done == nil || !done.Accepted || done.Profile.UserID != "U3" {
			t.Errorf("process event: %+v", done)
		}
	})

	t.Run("deny leaves the friend list alone", func(t *testing.T) {
		d, st, bus, _ := newTestDispatcher(t)
		st.ReplaceFriendList(nil)

		var done *event.Event
		bus.Subscribe(func(ev event.Event) {
			if ev.Type == event.FriendProcessDone {
				done = &ev
			}
		})

		d.HandleFrame(frame(t, protocol.Notification{
			Type:        protocol.NotifyFriendProcess,
			ProcessUser: &protocol.UserInfo{UserID: "U3"},
			Agree:       false,
		}))

		friends, _ := st.FriendList()
		if len(friends) != 0 {
			t.Errorf("friend appeared on deny: %+v", friends)
		}
		if done == nil || done.Accepted {
			t.Errorf("process event: %+v", done)
		}
	})
}

func TestMalformedAndUnknownFramesAreDropped(t *testing.T) {
	d, st, _, fetcher := newTestDispatcher(t)
	st.ReplaceSessionList(nil)
	st.ReplaceFriendList(nil)

	d.HandleFrame([]byte("{broken"))
	d.HandleFrame([]byte(`{"type":"totally_new_thing"}`))
	d.HandleFrame(frame(t, protocol.Notification{Type: protocol.NotifyChatMessage})) // no payload
	d.HandleFrame(frame(t, protocol.Notification{Type: protocol.NotifySessionCreate}))
	d.HandleFrame(frame(t, protocol.Notification{Type: protocol.NotifyFriendApply}))
	d.HandleFrame(frame(t, protocol.Notification{Type: protocol.NotifyFriendProcess}))
	d.HandleFrame(frame(t, protocol.Notification{Type: protocol.NotifyFriendRemove}))

	if fetcher.calls != 0 {
		t.Errorf("malformed frames triggered %d fetches", fetcher.calls)
	}
	if list, _ := st.SessionList(); len(list) != 0 {
		t.Errorf("sessions mutated: %+v", list)
	}
	if list, _ := st.FriendList(); len(list) != 0 {
		t.Errorf("friends mutated: %+v", list)
	}
}

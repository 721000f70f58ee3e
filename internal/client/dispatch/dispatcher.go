// Package dispatch decodes inbound push frames into typed notifications
// and routes each to the matching state store mutation, then raises the
// observable event interested consumers subscribe to. Dispatch itself is
// stateless; frames are handled strictly in arrival order because the
// stream invokes HandleFrame from a single reader goroutine.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/client/domain"
	"github.com/emberchat/ember/internal/client/event"
	"github.com/emberchat/ember/internal/client/store"
	"github.com/emberchat/ember/internal/protocol"
	"github.com/emberchat/ember/pkg/log"
)

// HistoryFetcher triggers a background load of a session's recent
// messages. The orchestrator implements it; its fetch dedup guarantees a
// burst of pushes for the same unloaded session issues one network call.
type HistoryFetcher interface {
	FetchRecentMessages(ctx context.Context, sessionID string, notifyUI bool) error
}

// Dispatcher routes push notifications into the store.
type Dispatcher struct {
	store   *store.Store
	bus     *event.Bus
	fetcher HistoryFetcher
	logger  zerolog.Logger
}

// New creates a dispatcher.
func New(st *store.Store, bus *event.Bus, fetcher HistoryFetcher, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: st, bus: bus, fetcher: fetcher, logger: logger}
}

// HandleFrame processes one inbound stream frame. Malformed or unknown
// frames are logged and dropped; the stream must keep running, so nothing
// here returns an error or panics.
func (d *Dispatcher) HandleFrame(data []byte) {
	var n protocol.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		d.logger.Warn().Err(err).Msg("dropping malformed push frame")
		return
	}

	switch n.Type {
	case protocol.FrameAuthResult:
		d.handleAuthResult(data)
	case protocol.NotifyChatMessage:
		d.handleChatMessage(n)
	case protocol.NotifySessionCreate:
		d.handleSessionCreate(n)
	case protocol.NotifyFriendRemove:
		d.handleFriendRemove(n)
	case protocol.NotifyFriendApply:
		d.handleFriendApply(n)
	case protocol.NotifyFriendProcess:
		d.handleFriendProcess(n)
	default:
		d.logger.Warn().Str(log.FieldNotify, n.Type).Msg("dropping unknown push frame")
	}
}

func (d *Dispatcher) handleAuthResult(data []byte) {
	var res protocol.AuthResultFrame
	if err := json.Unmarshal(data, &res); err != nil {
		d.logger.Warn().Err(err).Msg("dropping malformed auth result")
		return
	}
	if !res.Success {
		d.logger.Warn().Str("reason", res.ErrMsg).Msg("stream authentication rejected")
		return
	}
	d.logger.Info().Msg("stream authenticated")
}

func (d *Dispatcher) handleChatMessage(n protocol.Notification) {
	if n.NewMessage == nil {
		d.logger.Warn().Msg("chat message push without payload")
		return
	}
	msg := domain.MessageFromWire(*n.NewMessage)

	if !d.store.UpsertMessage(msg) {
		// History never loaded locally: the message is buffered in the
		// store and the full fetch merges it in when it lands.
		go func() {
			if err := d.fetcher.FetchRecentMessages(context.Background(), msg.SessionID, false); err != nil {
				d.logger.Warn().Err(err).Str(log.FieldSessionID, msg.SessionID).Msg("history fetch after push failed")
			}
		}()
	}

	if d.store.CurrentSessionID() == msg.SessionID {
		d.bus.Emit(event.Event{Type: event.MessageReceived, SessionID: msg.SessionID, Message: &msg})
	} else {
		d.store.AddUnread(msg.SessionID)
	}

	d.store.UpdateLastMessage(msg.SessionID, msg)
	d.store.PromoteSession(msg.SessionID)
	d.bus.Emit(event.Event{Type: event.LastMessageChanged, SessionID: msg.SessionID})
}

func (d *Dispatcher) handleSessionCreate(n protocol.Notification) {
	if n.NewSession == nil {
		d.logger.Warn().Msg("session create push without payload")
		return
	}
	sess := domain.ChatSessionFromWire(*n.NewSession)
	if !d.store.PrependSession(sess) {
		d.logger.Debug().Str(log.FieldSessionID, sess.SessionID).Msg("session list not loaded, push ignored")
		return
	}
	d.bus.Emit(event.Event{Type: event.SessionListChanged, SessionID: sess.SessionID})
}

func (d *Dispatcher) handleFriendRemove(n protocol.Notification) {
	if n.RemoveUserID == "" {
		d.logger.Warn().Msg("friend remove push without user id")
		return
	}
	d.store.RemoveFriend(n.RemoveUserID)
	d.bus.Emit(event.Event{Type: event.FriendListChanged})
}

func (d *Dispatcher) handleFriendApply(n protocol.Notification) {
	if n.ApplyUser == nil {
		d.logger.Warn().Msg("friend apply push without payload")
		return
	}
	p := domain.UserProfileFromWire(*n.ApplyUser)
	if !d.store.PrependApply(p) {
		d.logger.Debug().Str(log.FieldUserID, p.UserID).Msg("apply list not loaded, push ignored")
		return
	}
	d.bus.Emit(event.Event{Type: event.ApplyListChanged})
}

func (d *Dispatcher) handleFriendProcess(n protocol.Notification) {
	if n.ProcessUser == nil {
		d.logger.Warn().Msg("friend process push without payload")
		return
	}
	p := domain.UserProfileFromWire(*n.ProcessUser)
	if n.Agree {
		d.store.PrependFriend(p)
	}
	d.bus.Emit(event.Event{Type: event.FriendProcessDone, Profile: &p, Accepted: n.Agree})
}

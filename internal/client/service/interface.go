// Package service is the request orchestrator: it issues outbound
// operations against the server, deduplicates concurrent identical
// fetches, and feeds results into the state store. Collections follow the
// fetch-if-absent policy — once loaded they are only mutated
// incrementally, never silently refreshed.
package service

import (
	"context"
	"time"
)

// ChatService is the intent surface the upper layer (the UI in the full
// system) drives. Every operation is synchronous; completion events are
// additionally emitted on the bus so redraw code can subscribe uniformly.
type ChatService interface {
	// Account lifecycle.
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, username, password string) error
	PhoneLogin(ctx context.Context, phone, verifyCode string) error
	PhoneRegister(ctx context.Context, phone, verifyCode string) error
	FetchVerifyCode(ctx context.Context, phone string) error
	Logout()

	// Stream lifecycle. ConnectStream dials the push channel and sends
	// the auth frame; inbound frames go to onFrame in arrival order.
	ConnectStream(ctx context.Context, onFrame func([]byte)) error
	CloseStream()

	// Fetch-if-absent loads.
	FetchSelf(ctx context.Context) error
	FetchFriendList(ctx context.Context) error
	FetchSessionList(ctx context.Context) error
	FetchApplyList(ctx context.Context) error
	FetchRecentMessages(ctx context.Context, sessionID string, notifyUI bool) error
	FetchMemberList(ctx context.Context, sessionID string) error

	// Messaging.
	SendText(ctx context.Context, sessionID, text string) error
	SendImage(ctx context.Context, sessionID string, data []byte) error
	SendFile(ctx context.Context, sessionID, fileName string, data []byte) error
	SendVoice(ctx context.Context, sessionID string, data []byte) error

	// Profile edits.
	ChangeNickname(ctx context.Context, nickname string) error
	ChangeDescription(ctx context.Context, description string) error
	ChangePhone(ctx context.Context, phone, verifyCode string) error
	ChangeAvatar(ctx context.Context, avatar []byte) error

	// Friend lifecycle.
	RemoveFriend(ctx context.Context, userID string) error
	SendFriendApply(ctx context.Context, userID string) error
	AcceptFriendApply(ctx context.Context, userID string) error
	RejectFriendApply(ctx context.Context, userID string) error
	CreateGroupSession(ctx context.Context, userIDs []string) error

	// Search (ephemeral results, replaced on every call).
	SearchUsers(ctx context.Context, searchKey string) error
	SearchMessages(ctx context.Context, searchKey string) error
	SearchMessagesByTime(ctx context.Context, begin, end time.Time) error

	// Lazy payloads and speech.
	FetchFile(ctx context.Context, fileID string) error
	SpeechToText(ctx context.Context, fileID string, content []byte) error

	// Focus. Setting "" means no conversation focused; focusing a session
	// clears its unread counter.
	FocusSession(sessionID string)

	// Bootstrap prefetches self profile, friends, sessions, and pending
	// applications concurrently after login.
	Bootstrap(ctx context.Context) error

	// Ping probes connectivity.
	Ping(ctx context.Context) error
}

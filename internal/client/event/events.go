// Package event is the observable surface of the client core. The store,
// dispatcher, and orchestrator emit typed events; any number of listeners
// (the UI in the full system, tests here) subscribe explicitly. It replaces
// the signal/slot fan-out of a GUI toolkit with a plain in-process bus.
package event

import "github.com/emberchat/ember/internal/client/domain"

// Type identifies what happened.
type Type string

const (
	// Request completions.
	SelfFetched        Type = "self_fetched"
	FriendListChanged  Type = "friend_list_changed"
	SessionListChanged Type = "session_list_changed"
	ApplyListChanged   Type = "apply_list_changed"
	RecentLoaded       Type = "recent_loaded"
	MessageSent        Type = "message_sent"
	NicknameChanged    Type = "nickname_changed"
	DescriptionChanged Type = "description_changed"
	PhoneChanged       Type = "phone_changed"
	AvatarChanged      Type = "avatar_changed"
	VerifyCodeFetched  Type = "verify_code_fetched"
	MemberListFetched  Type = "member_list_fetched"
	UserSearchDone     Type = "user_search_done"
	MessageSearchDone  Type = "message_search_done"
	LoginDone          Type = "login_done"
	RegisterDone       Type = "register_done"
	FriendApplySent    Type = "friend_apply_sent"
	GroupCreateDone    Type = "group_create_done"
	FriendApplyAgreed  Type = "friend_apply_agreed"
	FriendApplyDenied  Type = "friend_apply_denied"
	FileFetched        Type = "file_fetched"
	SpeechConverted    Type = "speech_converted"

	// Push-driven updates.
	MessageReceived    Type = "message_received"
	LastMessageChanged Type = "last_message_changed"
	FriendApplyArrived Type = "friend_apply_arrived"
	FriendProcessDone  Type = "friend_process_done"

	// Cross-cutting signals.
	FocusCleared Type = "focus_cleared"
)

// Event is delivered to subscribers. Only the fields relevant to its Type
// are populated.
type Event struct {
	Type      Type
	SessionID string
	Message   *domain.Message
	Profile   *domain.UserProfile
	FileID    string
	Data      []byte
	Text      string
	Accepted  bool
	OK        bool
	Reason    string
}

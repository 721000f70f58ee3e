package protocol

// Frame types on the push stream. The auth pair is the only client→server
// traffic; everything else is a server push.
const (
	FrameAuth       = "auth"
	FrameAuthResult = "auth_result"

	NotifyChatMessage   = "chat_message"
	NotifySessionCreate = "session_create"
	NotifyFriendRemove  = "friend_remove"
	NotifyFriendApply   = "friend_add_apply"
	NotifyFriendProcess = "friend_process_result"
)

// Frame is decoded first to pick the concrete frame type.
type Frame struct {
	Type string `json:"type"`
}

// AuthFrame is sent by the client as the first frame after connect.
type AuthFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
}

// AuthResultFrame acknowledges the auth frame.
type AuthResultFrame struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	ErrMsg  string `json:"errmsg,omitempty"`
}

// Notification is the server push union. Exactly one of the payload
// fields is set, according to Type.
type Notification struct {
	Type    string `json:"type"`
	EventID string `json:"notify_event_id,omitempty"`

	NewMessage   *MessageInfo     `json:"new_message,omitempty"`      // chat_message
	NewSession   *ChatSessionInfo `json:"new_chat_session,omitempty"` // session_create
	RemoveUserID string           `json:"remove_user_id,omitempty"`   // friend_remove
	ApplyUser    *UserInfo        `json:"apply_user,omitempty"`       // friend_add_apply
	ProcessUser  *UserInfo        `json:"process_user,omitempty"`     // friend_process_result
	Agree        bool             `json:"agree,omitempty"`            // friend_process_result
}

// Package protocol defines the wire types shared by the client core and
// the mock server: HTTP request/response bodies and the type-tagged frames
// delivered over the push stream. Everything is JSON; binary payloads
// (avatars, images, files, voice clips) travel as base64-encoded byte
// slices inside the JSON bodies.
package protocol

// Request carries the fields common to every API request. SessionID is the
// login session token; it is empty for login, register, and verify-code
// requests, which run before a token exists.
type Request struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id,omitempty"`
}

// Reply carries the fields common to every API response. A response with
// Success=false carries the business failure reason in ErrMsg.
type Reply struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	ErrMsg    string `json:"errmsg,omitempty"`
}

// Result reports the business outcome of the response. Response types
// embed Reply, so every one of them carries this method.
func (r Reply) Result() (bool, string) {
	return r.Success, r.ErrMsg
}

// SetResult fills the envelope fields. Promoted through the embedding, so
// the server side can stamp any response type uniformly.
func (r *Reply) SetResult(requestID string, success bool, errmsg string) {
	r.RequestID = requestID
	r.Success = success
	r.ErrMsg = errmsg
}

// UserInfo is the wire form of a user profile.
type UserInfo struct {
	UserID      string `json:"user_id"`
	Nickname    string `json:"nickname"`
	Description string `json:"description"`
	Phone       string `json:"phone"`
	Avatar      []byte `json:"avatar,omitempty"`
}

// Message kinds carried in MessageContent.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
	KindVoice = "voice"
)

// MessageContent is the payload of a message. For non-text kinds the
// content may be omitted on the wire, in which case FileID identifies the
// payload for a later fetch through the file service.
type MessageContent struct {
	Kind     string `json:"message_type"`
	Content  []byte `json:"content,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// MessageInfo is the wire form of a delivered message.
type MessageInfo struct {
	MessageID     string         `json:"message_id"`
	ChatSessionID string         `json:"chat_session_id"`
	Timestamp     int64          `json:"timestamp"`
	Sender        UserInfo       `json:"sender"`
	Message       MessageContent `json:"message"`
}

// ChatSessionInfo is the wire form of a chat session. SingleChatFriendID
// is the peer's user id for one-to-one sessions and empty for groups.
type ChatSessionInfo struct {
	ChatSessionID      string       `json:"chat_session_id"`
	ChatSessionName    string       `json:"chat_session_name"`
	SingleChatFriendID string       `json:"single_chat_friend_id,omitempty"`
	Avatar             []byte       `json:"avatar,omitempty"`
	PrevMessage        *MessageInfo `json:"prev_message,omitempty"`
}

// FriendEvent is one pending friend application.
type FriendEvent struct {
	EventID string   `json:"event_id"`
	Sender  UserInfo `json:"sender"`
}

// --- user service ---

type UserLoginReq struct {
	Request
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserLoginRsp struct {
	Reply
	LoginSessionID string `json:"login_session_id,omitempty"`
}

type UserRegisterReq struct {
	Request
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserRegisterRsp struct {
	Reply
}

type PhoneLoginReq struct {
	Request
	Phone        string `json:"phone_number"`
	VerifyCodeID string `json:"verify_code_id"`
	VerifyCode   string `json:"verify_code"`
}

type PhoneLoginRsp struct {
	Reply
	LoginSessionID string `json:"login_session_id,omitempty"`
}

type PhoneRegisterReq struct {
	Request
	Phone        string `json:"phone_number"`
	VerifyCodeID string `json:"verify_code_id"`
	VerifyCode   string `json:"verify_code"`
}

type PhoneRegisterRsp struct {
	Reply
}

type GetVerifyCodeReq struct {
	Request
	Phone string `json:"phone_number"`
}

type GetVerifyCodeRsp struct {
	Reply
	VerifyCodeID string `json:"verify_code_id,omitempty"`
}

type GetUserInfoReq struct {
	Request
}

type GetUserInfoRsp struct {
	Reply
	UserInfo UserInfo `json:"user_info"`
}

type SetNicknameReq struct {
	Request
	Nickname string `json:"nickname"`
}

type SetNicknameRsp struct {
	Reply
}

type SetDescriptionReq struct {
	Request
	Description string `json:"description"`
}

type SetDescriptionRsp struct {
	Reply
}

type SetPhoneReq struct {
	Request
	Phone        string `json:"phone_number"`
	VerifyCodeID string `json:"phone_verify_code_id"`
	VerifyCode   string `json:"phone_verify_code"`
}

type SetPhoneRsp struct {
	Reply
}

type SetAvatarReq struct {
	Request
	Avatar []byte `json:"avatar"`
}

type SetAvatarRsp struct {
	Reply
}

// --- friend service ---

type GetFriendListReq struct {
	Request
}

type GetFriendListRsp struct {
	Reply
	FriendList []UserInfo `json:"friend_list"`
}

type GetChatSessionListReq struct {
	Request
}

type GetChatSessionListRsp struct {
	Reply
	ChatSessionInfoList []ChatSessionInfo `json:"chat_session_info_list"`
}

type GetPendingEventsReq struct {
	Request
}

type GetPendingEventsRsp struct {
	Reply
	Events []FriendEvent `json:"event"`
}

type RemoveFriendReq struct {
	Request
	UserID string `json:"user_id"`
}

type RemoveFriendRsp struct {
	Reply
}

type AddFriendApplyReq struct {
	Request
	UserID string `json:"user_id"`
}

type AddFriendApplyRsp struct {
	Reply
}

type AddFriendProcessReq struct {
	Request
	ApplyUserID string `json:"apply_user_id"`
	Agree       bool   `json:"agree"`
}

type AddFriendProcessRsp struct {
	Reply
	NewSessionID string `json:"new_session_id,omitempty"`
}

type CreateChatSessionReq struct {
	Request
	MemberIDList []string `json:"member_id_list"`
}

type CreateChatSessionRsp struct {
	Reply
}

type GetSessionMembersReq struct {
	Request
	ChatSessionID string `json:"chat_session_id"`
}

type GetSessionMembersRsp struct {
	Reply
	MemberInfoList []UserInfo `json:"member_info_list"`
}

type SearchFriendReq struct {
	Request
	SearchKey string `json:"search_key"`
}

type SearchFriendRsp struct {
	Reply
	UserInfoList []UserInfo `json:"user_info"`
}

// --- message storage / transmit ---

type GetRecentMessagesReq struct {
	Request
	ChatSessionID string `json:"chat_session_id"`
	MsgCount      int    `json:"msg_count"`
}

type GetRecentMessagesRsp struct {
	Reply
	MsgList []MessageInfo `json:"msg_list"`
}

type SearchHistoryReq struct {
	Request
	ChatSessionID string `json:"chat_session_id"`
	SearchKey     string `json:"search_key"`
}

type SearchHistoryRsp struct {
	Reply
	MsgList []MessageInfo `json:"msg_list"`
}

type GetHistoryReq struct {
	Request
	ChatSessionID string `json:"chat_session_id"`
	StartTime     int64  `json:"start_time"`
	OverTime      int64  `json:"over_time"`
}

type GetHistoryRsp struct {
	Reply
	MsgList []MessageInfo `json:"msg_list"`
}

type NewMessageReq struct {
	Request
	ChatSessionID string         `json:"chat_session_id"`
	Message       MessageContent `json:"message"`
}

type NewMessageRsp struct {
	Reply
}

// --- file / speech ---

type GetSingleFileReq struct {
	Request
	FileID string `json:"file_id"`
}

type GetSingleFileRsp struct {
	Reply
	FileID      string `json:"file_id"`
	FileContent []byte `json:"file_content"`
}

type SpeechToTextReq struct {
	Request
	FileID        string `json:"file_id"`
	SpeechContent []byte `json:"speech_content"`
}

type SpeechToTextRsp struct {
	Reply
	Text string `json:"recognition_result"`
}

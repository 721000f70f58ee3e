// Package domain holds the client's in-memory data model: profiles,
// chat sessions, and messages, plus conversions from their wire forms.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/protocol"
)

// MessageKind enumerates message payload kinds.
type MessageKind string

const (
	KindText  MessageKind = protocol.KindText
	KindImage MessageKind = protocol.KindImage
	KindFile  MessageKind = protocol.KindFile
	KindVoice MessageKind = protocol.KindVoice
)

// UserProfile describes a user. The zero value (empty UserID) doubles as
// the "not found" sentinel for store lookups.
type UserProfile struct {
	UserID      string
	Nickname    string
	Description string
	Phone       string
	Avatar      []byte
}

// Valid reports whether the profile refers to an actual user.
func (u UserProfile) Valid() bool { return u.UserID != "" }

// UserProfileFromWire converts a wire UserInfo.
func UserProfileFromWire(w protocol.UserInfo) UserProfile {
	return UserProfile{
		UserID:      w.UserID,
		Nickname:    w.Nickname,
		Description: w.Description,
		Phone:       w.Phone,
		Avatar:      w.Avatar,
	}
}

// ToWire converts the profile back to its wire form.
func (u UserProfile) ToWire() protocol.UserInfo {
	return protocol.UserInfo{
		UserID:      u.UserID,
		Nickname:    u.Nickname,
		Description: u.Description,
		Phone:       u.Phone,
		Avatar:      u.Avatar,
	}
}

// Message is one message in a chat session. Sender is a snapshot of the
// sender's profile at delivery time, not a live reference into the friend
// list. For non-text kinds, either Payload is populated or FileID names
// the server-side payload for a lazy fetch.
type Message struct {
	MessageID string
	SessionID string
	Timestamp time.Time
	Kind      MessageKind
	Sender    UserProfile
	Payload   []byte
	FileID    string
	FileName  string
}

// NewMessage builds an outgoing message with a client-generated unique id
// and the current time. The extra argument is the file name for file
// messages and ignored for every other kind.
func NewMessage(kind MessageKind, sessionID string, sender UserProfile, payload []byte, extra string) Message {
	m := Message{
		MessageID: "M" + uuid.New().String(),
		SessionID: sessionID,
		Timestamp: time.Now(),
		Kind:      kind,
		Sender:    sender,
		Payload:   payload,
	}
	if kind == KindFile {
		m.FileName = extra
	}
	return m
}

// MessageFromWire converts a wire MessageInfo.
func MessageFromWire(w protocol.MessageInfo) Message {
	return Message{
		MessageID: w.MessageID,
		SessionID: w.ChatSessionID,
		Timestamp: time.Unix(w.Timestamp, 0),
		Kind:      MessageKind(w.Message.Kind),
		Sender:    UserProfileFromWire(w.Sender),
		Payload:   w.Message.Content,
		FileID:    w.Message.FileID,
		FileName:  w.Message.FileName,
	}
}

// ToWire converts the message back to its wire form.
func (m Message) ToWire() protocol.MessageInfo {
	return protocol.MessageInfo{
		MessageID:     m.MessageID,
		ChatSessionID: m.SessionID,
		Timestamp:     m.Timestamp.Unix(),
		Sender:        m.Sender.ToWire(),
		Message: protocol.MessageContent{
			Kind:     string(m.Kind),
			Content:  m.Payload,
			FileID:   m.FileID,
			FileName: m.FileName,
		},
	}
}

// ChatSession is one conversation thread. PeerUserID is the other user's
// id for one-to-one sessions and empty for group sessions. The zero value
// (empty SessionID) is the "not found" sentinel.
type ChatSession struct {
	SessionID   string
	DisplayName string
	PeerUserID  string
	Avatar      []byte
	LastMessage *Message
}

// Valid reports whether the session refers to an actual conversation.
func (s ChatSession) Valid() bool { return s.SessionID != "" }

// IsGroup reports whether the session is a group conversation.
func (s ChatSession) IsGroup() bool { return s.PeerUserID == "" }

// ChatSessionFromWire converts a wire ChatSessionInfo.
func ChatSessionFromWire(w protocol.ChatSessionInfo) ChatSession {
	s := ChatSession{
		SessionID:   w.ChatSessionID,
		DisplayName: w.ChatSessionName,
		PeerUserID:  w.SingleChatFriendID,
		Avatar:      w.Avatar,
	}
	if w.PrevMessage != nil {
		m := MessageFromWire(*w.PrevMessage)
		s.LastMessage = &m
	}
	return s
}

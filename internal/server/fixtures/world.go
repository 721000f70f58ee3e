// Package fixtures holds the mock server's in-memory world: accounts,
// friendships, chat sessions, message history, pending friend
// applications, stored files, and issued verify codes. Everything lives
// behind one mutex; nothing survives a restart.
package fixtures

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/protocol"
)

var (
	ErrBadCredentials = errors.New("incorrect username or password")
	ErrUserExists     = errors.New("username already registered")
	ErrPhoneUnknown   = errors.New("phone number not registered")
	ErrBadVerifyCode  = errors.New("verify code mismatch")
	ErrUnknownUser    = errors.New("no such user")
	ErrUnknownSession = errors.New("no such chat session")
	ErrUnknownFile    = errors.New("no such file")
	ErrNotApplied     = errors.New("no pending application from that user")
	ErrAlreadyFriends = errors.New("already friends")
)

// VerifyCode is the fixed code every issued verify-code ID accepts.
const VerifyCode = "123456"

type Account struct {
	UserID   string
	Username string
	Password string
	Profile  protocol.UserInfo
}

type Session struct {
	SessionID string
	Name      string
	Members   []string // user IDs; exactly two for a 1:1 session
	Single    bool
	Messages  []protocol.MessageInfo
}

type World struct {
	mu sync.RWMutex

	accounts map[string]*Account // username -> account
	byUserID map[string]*Account
	byPhone  map[string]*Account

	friends  map[string]map[string]bool // userID -> friend userIDs
	applies  map[string][]string        // userID -> pending applicant userIDs, newest first
	sessions map[string]*Session
	codes    map[string]string // verifyCodeID -> phone
	files    map[string][]byte
}

// NewWorld builds an empty world.
func NewWorld() *World {
	return &World{
		accounts: make(map[string]*Account),
		byUserID: make(map[string]*Account),
		byPhone:  make(map[string]*Account),
		friends:  make(map[string]map[string]bool),
		applies:  make(map[string][]string),
		sessions: make(map[string]*Session),
		codes:    make(map[string]string),
		files:    make(map[string][]byte),
	}
}

// Seed populates the canned demo data: four users, two friendships with
// message history, one group session, and one pending application.
func Seed() *World {
	w := NewWorld()

	alice, _ := w.Register("alice", "alice-pass")
	bob, _ := w.Register("bob", "bob-pass")
	carol, _ := w.Register("carol", "carol-pass")
	dave, _ := w.Register("dave", "dave-pass")

	w.mu.Lock()
	w.byUserID[alice].Profile.Phone = "13900000001"
	w.byPhone["13900000001"] = w.byUserID[alice]
	w.byUserID[bob].Profile.Description = "usually around in the evening"
	w.mu.Unlock()

	w.makeFriends(alice, bob)
	w.makeFriends(alice, carol)

	ab := w.findSingleSession(alice, bob)
	w.AppendText(ab, bob, "hey, did the build go through?")
	w.AppendText(ab, alice, "green on the second try")
	w.AppendText(ab, bob, "nice")

	group := w.CreateSession("weekend plans", []string{alice, bob, carol})
	w.AppendText(group, carol, "anyone up for hiking saturday?")

	w.AddApply(dave, alice)

	fileID := "F" + uuid.NewString()
	w.mu.Lock()
	w.files[fileID] = []byte("attachment payload for demos")
	w.mu.Unlock()

	return w
}

// --- accounts ---

func (w *World) Register(username, password string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.accounts[username]; ok {
		return "", ErrUserExists
	}
	acct := &Account{
		UserID:   "U" + uuid.NewString(),
		Username: username,
		Password: password,
		Profile: protocol.UserInfo{
			Nickname: username,
		},
	}
	acct.Profile.UserID = acct.UserID
	w.accounts[username] = acct
	w.byUserID[acct.UserID] = acct
	w.friends[acct.UserID] = make(map[string]bool)
	return acct.UserID, nil
}

func (w *World) Authenticate(username, password string) (*Account, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	acct, ok := w.accounts[username]
	if !ok || acct.Password != password {
		return nil, ErrBadCredentials
	}
	return acct, nil
}

func (w *World) AuthenticatePhone(phone, codeID, code string) (*Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.consumeCodeLocked(phone, codeID, code); err != nil {
		return nil, err
	}
	acct, ok := w.byPhone[phone]
	if !ok {
		return nil, ErrPhoneUnknown
	}
	return acct, nil
}

func (w *World) RegisterPhone(phone, codeID, code string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.consumeCodeLocked(phone, codeID, code); err != nil {
		return "", err
	}
	if _, ok := w.byPhone[phone]; ok {
		return "", ErrUserExists
	}
	acct := &Account{
		UserID:   "U" + uuid.NewString(),
		Username: phone,
		Password: uuid.NewString(),
		Profile:  protocol.UserInfo{Nickname: phone, Phone: phone},
	}
	acct.Profile.UserID = acct.UserID
	w.accounts[acct.Username] = acct
	w.byUserID[acct.UserID] = acct
	w.byPhone[phone] = acct
	w.friends[acct.UserID] = make(map[string]bool)
	return acct.UserID, nil
}

// IssueVerifyCode records a code ID for the phone and returns it. The
// mock accepts only the fixed VerifyCode value.
func (w *World) IssueVerifyCode(phone string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := "V" + uuid.NewString()
	w.codes[id] = phone
	return id
}

func (w *World) consumeCodeLocked(phone, codeID, code string) error {
	if w.codes[codeID] != phone || code != VerifyCode {
		return ErrBadVerifyCode
	}
	delete(w.codes, codeID)
	return nil
}

func (w *World) Profile(userID string) (protocol.UserInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	acct, ok := w.byUserID[userID]
	if !ok {
		return protocol.UserInfo{}, ErrUnknownUser
	}
	return acct.Profile, nil
}

// UpdateProfile applies patch to the user's profile under the lock.
func (w *World) UpdateProfile(userID string, patch func(*protocol.UserInfo)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	acct, ok := w.byUserID[userID]
	if !ok {
		return ErrUnknownUser
	}
	oldPhone := acct.Profile.Phone
	patch(&acct.Profile)
	if acct.Profile.Phone != oldPhone {
		delete(w.byPhone, oldPhone)
		if acct.Profile.Phone != "" {
			w.byPhone[acct.Profile.Phone] = acct
		}
	}
	return nil
}

func (w *World) VerifyPhoneCode(phone, codeID, code string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.consumeCodeLocked(phone, codeID, code)
}

// --- friends ---

func (w *World) FriendList(userID string) []protocol.UserInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var list []protocol.UserInfo
	for friendID := range w.friends[userID] {
		if acct, ok := w.byUserID[friendID]; ok {
			list = append(list, acct.Profile)
		}
	}
	return list
}

func (w *World) makeFriends(a, b string) {
	w.mu.Lock()
	w.friends[a][b] = true
	w.friends[b][a] = true
	w.mu.Unlock()
	w.createSingleSession(a, b)
}

func (w *World) RemoveFriend(userID, friendID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.byUserID[friendID]; !ok {
		return ErrUnknownUser
	}
	delete(w.friends[userID], friendID)
	delete(w.friends[friendID], userID)
	return nil
}

func (w *World) AddApply(fromUserID, toUserID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.byUserID[toUserID]; !ok {
		return ErrUnknownUser
	}
	if w.friends[toUserID][fromUserID] {
		return ErrAlreadyFriends
	}
	for _, id := range w.applies[toUserID] {
		if id == fromUserID {
			return nil // already pending
		}
	}
	w.applies[toUserID] = append([]string{fromUserID}, w.applies[toUserID]...)
	return nil
}

func (w *World) PendingApplies(userID string) []protocol.FriendEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var events []protocol.FriendEvent
	for _, applicantID := range w.applies[userID] {
		if acct, ok := w.byUserID[applicantID]; ok {
			events = append(events, protocol.FriendEvent{
				EventID: "E" + uuid.NewString(),
				Sender:  acct.Profile,
			})
		}
	}
	return events
}

// ProcessApply resolves a pending application. On agree it establishes
// the friendship and returns the new 1:1 session's ID.
func (w *World) ProcessApply(userID, applicantID string, agree bool) (string, error) {
	w.mu.Lock()

	found := false
	pending := w.applies[userID]
	for i, id := range pending {
		if id == applicantID {
			w.applies[userID] = append(pending[:i:i], pending[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		w.mu.Unlock()
		return "", ErrNotApplied
	}
	if !agree {
		w.mu.Unlock()
		return "", nil
	}
	w.friends[userID][applicantID] = true
	w.friends[applicantID][userID] = true
	w.mu.Unlock()

	return w.createSingleSession(userID, applicantID), nil
}

// --- sessions ---

func (w *World) createSingleSession(a, b string) string {
	if id := w.findSingleSession(a, b); id != "" {
		return id
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	sess := &Session{
		SessionID: "S" + uuid.NewString(),
		Members:   []string{a, b},
		Single:    true,
	}
	w.sessions[sess.SessionID] = sess
	return sess.SessionID
}

func (w *World) findSingleSession(a, b string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, sess := range w.sessions {
		if sess.Single && sess.hasMember(a) && sess.hasMember(b) {
			return sess.SessionID
		}
	}
	return ""
}

// CreateSession creates a group session and returns its ID.
func (w *World) CreateSession(name string, memberIDs []string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	sess := &Session{
		SessionID: "S" + uuid.NewString(),
		Name:      name,
		Members:   append([]string(nil), memberIDs...),
	}
	w.sessions[sess.SessionID] = sess
	return sess.SessionID
}

func (s *Session) hasMember(userID string) bool {
	for _, m := range s.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// SessionInfoFor renders the session the way userID sees it: a 1:1
// session is named after the peer and carries the peer's user ID.
func (w *World) SessionInfoFor(sessionID, userID string) (protocol.ChatSessionInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	sess, ok := w.sessions[sessionID]
	if !ok {
		return protocol.ChatSessionInfo{}, ErrUnknownSession
	}
	return w.sessionInfoLocked(sess, userID), nil
}

func (w *World) sessionInfoLocked(sess *Session, userID string) protocol.ChatSessionInfo {
	info := protocol.ChatSessionInfo{
		ChatSessionID:   sess.SessionID,
		ChatSessionName: sess.Name,
	}
	if sess.Single {
		for _, m := range sess.Members {
			if m != userID {
				info.SingleChatFriendID = m
				if acct, ok := w.byUserID[m]; ok {
					info.ChatSessionName = acct.Profile.Nickname
				}
			}
		}
	}
	if n := len(sess.Messages); n > 0 {
		last := sess.Messages[n-1]
		info.PrevMessage = &last
	}
	return info
}

func (w *World) SessionList(userID string) []protocol.ChatSessionInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var list []protocol.ChatSessionInfo
	for _, sess := range w.sessions {
		if sess.hasMember(userID) {
			list = append(list, w.sessionInfoLocked(sess, userID))
		}
	}
	return list
}

func (w *World) SessionMembers(sessionID string) ([]protocol.UserInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	sess, ok := w.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	var list []protocol.UserInfo
	for _, m := range sess.Members {
		if acct, ok := w.byUserID[m]; ok {
			list = append(list, acct.Profile)
		}
	}
	return list, nil
}

// Members returns the raw member user IDs of a session.
func (w *World) Members(sessionID string) ([]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	sess, ok := w.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return append([]string(nil), sess.Members...), nil
}

// --- messages ---

// AppendMessage records a message on the session's history and returns
// the stored wire form. Non-text payloads larger than a text body get a
// file ID so the client can lazy-fetch the content.
func (w *World) AppendMessage(sessionID, senderID string, content protocol.MessageContent) (protocol.MessageInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sess, ok := w.sessions[sessionID]
	if !ok {
		return protocol.MessageInfo{}, ErrUnknownSession
	}
	acct, ok := w.byUserID[senderID]
	if !ok {
		return protocol.MessageInfo{}, ErrUnknownUser
	}

	if content.Kind != protocol.KindText && len(content.Content) > 0 {
		fileID := "F" + uuid.NewString()
		w.files[fileID] = content.Content
		content.FileID = fileID
	}

	msg := protocol.MessageInfo{
		MessageID:     "M" + uuid.NewString(),
		ChatSessionID: sessionID,
		Timestamp:     time.Now().Unix(),
		Sender:        acct.Profile,
		Message:       content,
	}
	sess.Messages = append(sess.Messages, msg)
	return msg, nil
}

// AppendText is a seeding shortcut.
func (w *World) AppendText(sessionID, senderID, text string) {
	_, err := w.AppendMessage(sessionID, senderID, protocol.MessageContent{
		Kind:    protocol.KindText,
		Content: []byte(text),
	})
	if err != nil {
		panic(fmt.Sprintf("fixtures: seed message: %v", err))
	}
}

func (w *World) RecentMessages(sessionID string, count int) ([]protocol.MessageInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	sess, ok := w.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	msgs := sess.Messages
	if count > 0 && len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	return append([]protocol.MessageInfo(nil), msgs...), nil
}

func (w *World) SearchMessages(sessionID, searchKey string) ([]protocol.MessageInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	sess, ok := w.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	var hits []protocol.MessageInfo
	for _, m := range sess.Messages {
		if m.Message.Kind == protocol.KindText && strings.Contains(string(m.Message.Content), searchKey) {
			hits = append(hits, m)
		}
	}
	return hits, nil
}

func (w *World) MessagesBetween(sessionID string, start, over int64) ([]protocol.MessageInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	sess, ok := w.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	var hits []protocol.MessageInfo
	for _, m := range sess.Messages {
		if m.Timestamp >= start && m.Timestamp <= over {
			hits = append(hits, m)
		}
	}
	return hits, nil
}

// --- users and files ---

// SearchUsers matches the key against user IDs and nicknames, excluding
// the searcher and existing friends.
func (w *World) SearchUsers(userID, searchKey string) []protocol.UserInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var list []protocol.UserInfo
	for _, acct := range w.byUserID {
		if acct.UserID == userID || w.friends[userID][acct.UserID] {
			continue
		}
		if strings.Contains(acct.UserID, searchKey) || strings.Contains(acct.Profile.Nickname, searchKey) {
			list = append(list, acct.Profile)
		}
	}
	return list
}

func (w *World) File(fileID string) ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	data, ok := w.files[fileID]
	if !ok {
		return nil, ErrUnknownFile
	}
	return data, nil
}

// UserIDByUsername resolves a seeded username. The push trigger
// endpoints accept usernames for convenience.
func (w *World) UserIDByUsername(username string) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	acct, ok := w.accounts[username]
	if !ok {
		return "", ErrUnknownUser
	}
	return acct.UserID, nil
}

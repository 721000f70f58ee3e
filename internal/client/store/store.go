// Package store holds the client's authoritative in-memory cache: friends,
// chat sessions, per-session message lists, unread counters, pending friend
// applications, member lists, and ephemeral search results.
//
// The store is the single shared mutable resource of the core and the
// convergence point of two writers: request completions from the
// orchestrator and push notifications from the dispatcher. Every mutation
// takes the store mutex, so concurrent delivery from both paths serializes
// here; no mutation performs I/O while holding the lock (the state file
// write snapshots under lock and writes after release).
//
// Collections follow the lazy-load convention of the original client: a
// nil slice (or an absent map key for per-session collections) means "never
// loaded from the server", which is distinct from loaded-but-empty.
package store

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/client/domain"
	"github.com/emberchat/ember/internal/client/event"
)

// Store is the client state store. Construct with New; the zero value is
// not usable.
type Store struct {
	mu sync.Mutex

	token   string
	self    *domain.UserProfile
	current string // focused session id, "" = none

	friends  []domain.UserProfile  // nil = not loaded
	sessions []domain.ChatSession  // nil = not loaded
	applies  []domain.UserProfile  // nil = not loaded
	members  map[string][]domain.UserProfile
	recent   map[string][]domain.Message
	unread   map[string]int

	// Pushed messages for sessions whose history is not loaded yet. They
	// are replayed (deduplicated by message id) when the history fetch
	// lands, so a push racing a fetch is never lost.
	pendingPush map[string][]domain.Message

	searchUsers    []domain.UserProfile
	searchMessages []domain.Message
	verifyCodeID   string

	file   *StateFile
	bus    *event.Bus
	logger zerolog.Logger
}

// New creates a store, loading the persisted token and unread counters
// from the state file.
func New(file *StateFile, bus *event.Bus, logger zerolog.Logger) *Store {
	s := &Store{
		members:     make(map[string][]domain.UserProfile),
		recent:      make(map[string][]domain.Message),
		unread:      make(map[string]int),
		pendingPush: make(map[string][]domain.Message),
		file:        file,
		bus:         bus,
		logger:      logger,
	}

	state, err := file.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load state file, starting empty")
		return s
	}
	s.token = state.LoginSessionID
	for id, n := range state.Unread {
		s.unread[id] = n
	}
	return s
}

// persist writes a snapshot of the durable fields taken under the lock.
// Called after the lock is released; failures are logged, never fatal.
func (s *Store) persist(state PersistedState) {
	if err := s.file.Save(state); err != nil {
		s.logger.Warn().Err(err).Msg("failed to save state file")
	}
}

func (s *Store) snapshotLocked() PersistedState {
	unread := make(map[string]int, len(s.unread))
	for id, n := range s.unread {
		unread[id] = n
	}
	return PersistedState{LoginSessionID: s.token, Unread: unread}
}

// --- identity ---

// Token returns the login session token, empty when unauthenticated.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken records a new login session token and persists it.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.persist(snap)
}

// Self returns the cached own profile.
func (s *Store) Self() (domain.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == nil {
		return domain.UserProfile{}, false
	}
	return *s.self, true
}

// SetSelf replaces the cached own profile.
func (s *Store) SetSelf(p domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = &p
}

// UpdateSelf patches the cached own profile in place. No-op when the
// profile was never fetched, matching the original client.
func (s *Store) UpdateSelf(patch func(*domain.UserProfile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == nil {
		return
	}
	patch(s.self)
}

// --- focus ---

// CurrentSessionID returns the focused session id, "" when none.
func (s *Store) CurrentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrentSessionID moves the focus. Setting "" means no conversation
// is focused.
func (s *Store) SetCurrentSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
}

// --- collections: full replace on initial load ---

// ReplaceFriendList installs the fetched friend list, wiping prior content.
func (s *Store) ReplaceFriendList(list []domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends = append([]domain.UserProfile{}, list...)
}

// FriendList returns a snapshot of the friend list and whether it has
// been loaded.
func (s *Store) FriendList() ([]domain.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.friends == nil {
		return nil, false
	}
	return append([]domain.UserProfile{}, s.friends...), true
}

// ReplaceSessionList installs the fetched session list.
func (s *Store) ReplaceSessionList(list []domain.ChatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]domain.ChatSession{}, list...)
}

// SessionList returns a snapshot of the session list and whether it has
// been loaded. Order is most-recently-active first.
func (s *Store) SessionList() ([]domain.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		return nil, false
	}
	return append([]domain.ChatSession{}, s.sessions...), true
}

// ReplaceApplyList installs the fetched pending friend applications,
// newest first.
func (s *Store) ReplaceApplyList(list []domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applies = append([]domain.UserProfile{}, list...)
}

// ApplyList returns a snapshot of the pending applications and whether
// the list has been loaded.
func (s *Store) ApplyList() ([]domain.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applies == nil {
		return nil, false
	}
	return append([]domain.UserProfile{}, s.applies...), true
}

// --- messages ---

// UpsertMessage appends the message to its session's cached list when that
// list is loaded, ignoring duplicates of the same message id. When the
// list is not loaded the message is buffered instead and false is
// returned; the caller must trigger a history fetch, whose completion
// replays the buffer. This is what keeps a push racing a fetch from being
// lost.
func (s *Store) UpsertMessage(m domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, loaded := s.recent[m.SessionID]
	if !loaded {
		if !containsMessage(s.pendingPush[m.SessionID], m.MessageID) {
			s.pendingPush[m.SessionID] = append(s.pendingPush[m.SessionID], m)
		}
		return false
	}
	if containsMessage(list, m.MessageID) {
		return true
	}
	s.recent[m.SessionID] = append(list, m)
	return true
}

// ReplaceRecentMessages installs the fetched history for a session, then
// replays any messages pushed while the fetch was in flight that the
// history does not already contain. The result is history order first,
// buffered pushes after, no duplicates.
func (s *Store) ReplaceRecentMessages(sessionID string, msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if !containsMessage(list, m.MessageID) {
			list = append(list, m)
		}
	}
	for _, m := range s.pendingPush[sessionID] {
		if !containsMessage(list, m.MessageID) {
			list = append(list, m)
		}
	}
	delete(s.pendingPush, sessionID)
	s.recent[sessionID] = list
}

// RecentMessages returns a snapshot of a session's cached messages and
// whether the session's history has been loaded.
func (s *Store) RecentMessages(sessionID string) ([]domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.recent[sessionID]
	if !ok {
		return nil, false
	}
	return append([]domain.Message{}, list...), true
}

func containsMessage(list []domain.Message, id string) bool {
	for _, m := range list {
		if m.MessageID == id {
			return true
		}
	}
	return false
}

// --- sessions ---

// FindSessionByID returns the session with the given id, or the zero
// session when absent.
func (s *Store) FindSessionByID(id string) (domain.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.SessionID == id {
			return sess, true
		}
	}
	return domain.ChatSession{}, false
}

// FindSessionByPeer returns the one-to-one session whose peer is the
// given user, or the zero session when absent.
func (s *Store) FindSessionByPeer(userID string) (domain.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.PeerUserID != "" && sess.PeerUserID == userID {
			return sess, true
		}
	}
	return domain.ChatSession{}, false
}

// PromoteSession moves the session to the front of the list, preserving
// the relative order of the others. No-op when the session is unknown.
func (s *Store) PromoteSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sess := range s.sessions {
		if sess.SessionID == sessionID {
			if i > 0 {
				copy(s.sessions[1:i+1], s.sessions[:i])
				s.sessions[0] = sess
			}
			return
		}
	}
}

// PrependSession puts a newly created session at the front of the list.
// No-op when the session list was never loaded (there is nothing coherent
// to prepend to) or when the session is already present.
func (s *Store) PrependSession(sess domain.ChatSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		return false
	}
	for _, have := range s.sessions {
		if have.SessionID == sess.SessionID {
			return true
		}
	}
	s.sessions = append([]domain.ChatSession{sess}, s.sessions...)
	return true
}

// UpdateLastMessage sets the session's last-message preview. Reports
// whether the session was found.
func (s *Store) UpdateLastMessage(sessionID string, m domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].SessionID == sessionID {
			msg := m
			s.sessions[i].LastMessage = &msg
			return true
		}
	}
	return false
}

// --- friends ---

// FindFriendByID returns the friend with the given user id, or the zero
// profile when absent.
func (s *Store) FindFriendByID(userID string) (domain.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.friends {
		if f.UserID == userID {
			return f, true
		}
	}
	return domain.UserProfile{}, false
}

// PrependFriend puts a new friend at the front of the friend list. No-op
// when the list was never loaded.
func (s *Store) PrependFriend(p domain.UserProfile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prependFriendLocked(p)
}

func (s *Store) prependFriendLocked(p domain.UserProfile) bool {
	if s.friends == nil {
		return false
	}
	for _, have := range s.friends {
		if have.UserID == p.UserID {
			return true
		}
	}
	s.friends = append([]domain.UserProfile{p}, s.friends...)
	return true
}

// RemoveFriend removes the user from the friend list and removes any
// one-to-one session with that user. When the removed session is the
// currently focused one, the focus is cleared and a focus-cleared event is
// emitted so no consumer is left pointing at a session that no longer
// exists.
func (s *Store) RemoveFriend(userID string) {
	s.mu.Lock()
	focusCleared := false

	kept := s.friends[:0]
	for _, f := range s.friends {
		if f.UserID != userID {
			kept = append(kept, f)
		}
	}
	if s.friends != nil {
		s.friends = kept
	}

	keptSessions := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.PeerUserID != "" && sess.PeerUserID == userID {
			if sess.SessionID == s.current {
				s.current = ""
				focusCleared = true
			}
			continue
		}
		keptSessions = append(keptSessions, sess)
	}
	if s.sessions != nil {
		s.sessions = keptSessions
	}
	s.mu.Unlock()

	if focusCleared {
		s.bus.Emit(event.Event{Type: event.FocusCleared})
	}
}

// --- friend applications ---

// RemoveApply removes the pending application from the given user and
// returns it. Returns the zero profile when no such application exists;
// callers treat that as nothing to do, not an error.
func (s *Store) RemoveApply(userID string) domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeApplyLocked(userID)
}

func (s *Store) removeApplyLocked(userID string) domain.UserProfile {
	for i, p := range s.applies {
		if p.UserID == userID {
			s.applies = append(s.applies[:i], s.applies[i+1:]...)
			return p
		}
	}
	return domain.UserProfile{}
}

// PrependApply puts a newly received application at the front of the
// pending list. No-op when the list was never loaded.
func (s *Store) PrependApply(p domain.UserProfile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applies == nil {
		return false
	}
	s.applies = append([]domain.UserProfile{p}, s.applies...)
	return true
}

// MoveApplyToFriend atomically removes the pending application from the
// given user and prepends it to the friend list, returning the removed
// record. When the user has no pending application the zero profile is
// returned and nothing changes, which makes a duplicated acceptance
// harmless.
func (s *Store) MoveApplyToFriend(userID string) domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.removeApplyLocked(userID)
	if !p.Valid() {
		return p
	}
	s.prependFriendLocked(p)
	return p
}

// --- unread counters ---

// Unread returns the unread count for a session, 0 for unseen keys.
func (s *Store) Unread(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[sessionID]
}

// AddUnread increments a session's unread counter and persists the map.
// The counter saturates instead of wrapping.
func (s *Store) AddUnread(sessionID string) {
	s.mu.Lock()
	if s.unread[sessionID] < math.MaxInt {
		s.unread[sessionID]++
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.persist(snap)
}

// ClearUnread resets a session's unread counter and persists the map.
func (s *Store) ClearUnread(sessionID string) {
	s.mu.Lock()
	s.unread[sessionID] = 0
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.persist(snap)
}

// --- member lists ---

// ReplaceMemberList installs the fetched member list for a session.
func (s *Store) ReplaceMemberList(sessionID string, list []domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[sessionID] = append([]domain.UserProfile{}, list...)
}

// MemberList returns a snapshot of a session's member list and whether it
// has been loaded.
func (s *Store) MemberList(sessionID string) ([]domain.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.members[sessionID]
	if !ok {
		return nil, false
	}
	return append([]domain.UserProfile{}, list...), true
}

// --- search results (ephemeral, replaced on every search) ---

// ReplaceUserSearch installs the latest user search result.
func (s *Store) ReplaceUserSearch(list []domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchUsers = append([]domain.UserProfile{}, list...)
}

// UserSearchResult returns the latest user search result.
func (s *Store) UserSearchResult() []domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.UserProfile{}, s.searchUsers...)
}

// ReplaceMessageSearch installs the latest message search result.
func (s *Store) ReplaceMessageSearch(list []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchMessages = append([]domain.Message{}, list...)
}

// MessageSearchResult returns the latest message search result.
func (s *Store) MessageSearchResult() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message{}, s.searchMessages...)
}

// --- verify code ---

// VerifyCodeID returns the id of the last requested verify code.
func (s *Store) VerifyCodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyCodeID
}

// SetVerifyCodeID records the id returned by a verify-code request.
func (s *Store) SetVerifyCodeID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyCodeID = id
}

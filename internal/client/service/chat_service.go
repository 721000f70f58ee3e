package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/emberchat/ember/internal/client/domain"
	"github.com/emberchat/ember/internal/client/event"
	"github.com/emberchat/ember/internal/client/store"
	"github.com/emberchat/ember/internal/client/transport"
	"github.com/emberchat/ember/internal/protocol"
	"github.com/emberchat/ember/pkg/log"
)

// Singleflight keys for the deduplicated fetches.
const (
	keyFriendList  = "friend_list"
	keySessionList = "session_list"
	keyApplyList   = "apply_list"
	keySelf        = "self"
)

type chatService struct {
	store     *store.Store
	http      *transport.Client
	bus       *event.Bus
	streamURL string
	streamCfg transport.StreamConfig
	logger    zerolog.Logger

	// Deduplicates concurrent identical fetches: a second caller attaches
	// to the first's in-flight completion instead of re-issuing.
	sf singleflight.Group

	mu     sync.Mutex
	stream *transport.Stream
}

// NewChatService creates the orchestrator.
func NewChatService(st *store.Store, httpClient *transport.Client, bus *event.Bus, streamURL string, streamCfg transport.StreamConfig, logger zerolog.Logger) ChatService {
	return &chatService{
		store:     st,
		http:      httpClient,
		bus:       bus,
		streamURL: streamURL,
		streamCfg: streamCfg,
		logger:    logger,
	}
}

// replyCarrier is satisfied by every response type via the embedded
// protocol.Reply.
type replyCarrier interface {
	Result() (bool, string)
}

// call serializes the request, sends it over the HTTP channel, and decodes
// the response, turning a business decline into an error carrying the
// server's own reason.
func (s *chatService) call(ctx context.Context, path string, req any, rsp replyCarrier) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	raw, err := s.http.Call(ctx, path, body)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, rsp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if ok, reason := rsp.Result(); !ok {
		return errors.New(reason)
	}
	return nil
}

// newRequest builds the common request fields. authed requests carry the
// current login session token.
func (s *chatService) newRequest(authed bool) protocol.Request {
	r := protocol.Request{RequestID: transport.MakeRequestID()}
	if authed {
		r.SessionID = s.store.Token()
	}
	return r
}

// --- account lifecycle ---

func (s *chatService) Login(ctx context.Context, username, password string) error {
	req := protocol.UserLoginReq{Request: s.newRequest(false), Username: username, Password: password}
	var rsp protocol.UserLoginRsp
	if err := s.call(ctx, protocol.PathUserLogin, req, &rsp); err != nil {
		s.bus.Emit(event.Event{Type: event.LoginDone, OK: false, Reason: err.Error()})
		return fmt.Errorf("login: %w", err)
	}

	s.store.SetToken(rsp.LoginSessionID)
	s.logger.Info().Str(log.FieldRequestID, req.RequestID).Msg("login ok")
	s.bus.Emit(event.Event{Type: event.LoginDone, OK: true})
	return nil
}

func (s *chatService) Register(ctx context.Context, username, password string) error {
	req := protocol.UserRegisterReq{Request: s.newRequest(false), Username: username, Password: password}
	var rsp protocol.UserRegisterRsp
	if err := s.call(ctx, protocol.PathUserRegister, req, &rsp); err != nil {
		s.bus.Emit(event.Event{Type: event.RegisterDone, OK: false, Reason: err.Error()})
		return fmt.Errorf("register: %w", err)
	}
	s.bus.Emit(event.Event{Type: event.RegisterDone, OK: true})
	return nil
}

func (s *chatService) PhoneLogin(ctx context.Context, phone, verifyCode string) error {
	req := protocol.PhoneLoginReq{
		Request:      s.newRequest(false),
		Phone:        phone,
		VerifyCodeID: s.store.VerifyCodeID(),
		VerifyCode:   verifyCode,
	}
	var rsp protocol.PhoneLoginRsp
	if err := s.call(ctx, protocol.PathPhoneLogin, req, &rsp); err != nil {
		s.bus.Emit(event.Event{Type: event.LoginDone, OK: false, Reason: err.Error()})
		return fmt.Errorf("phone login: %w", err)
	}

	s.store.SetToken(rsp.LoginSessionID)
	s.bus.Emit(event.Event{Type: event.LoginDone, OK: true})
	return nil
}

func (s *chatService) PhoneRegister(ctx context.Context, phone, verifyCode string) error {
	req := protocol.PhoneRegisterReq{
		Request:      s.newRequest(false),
		Phone:        phone,
		VerifyCodeID: s.store.VerifyCodeID(),
		VerifyCode:   verifyCode,
	}
	var rsp protocol.PhoneRegisterRsp
	if err := s.call(ctx, protocol.PathPhoneRegister, req, &rsp); err != nil {
		s.bus.Emit(event.Event{Type: event.RegisterDone, OK: false, Reason: err.Error()})
		return fmt.Errorf("phone register: %w", err)
	}
	s.bus.Emit(event.Event{Type: event.RegisterDone, OK: true})
	return nil
}

func (s *chatService) FetchVerifyCode(ctx context.Context, phone string) error {
	req := protocol.GetVerifyCodeReq{Request: s.newRequest(false), Phone: phone}
	var rsp protocol.GetVerifyCodeRsp
	if err := s.call(ctx, protocol.PathGetVerifyCode, req, &rsp); err != nil {
		return fmt.Errorf("fetch verify code: %w", err)
	}
	s.store.SetVerifyCodeID(rsp.VerifyCodeID)
	s.bus.Emit(event.Event{Type: event.VerifyCodeFetched})
	return nil
}

func (s *chatService) Logout() {
	s.CloseStream()
	s.store.SetToken("")
	s.store.SetCurrentSessionID("")
}

// --- stream lifecycle ---

func (s *chatService) ConnectStream(ctx context.Context, onFrame func([]byte)) error {
	cb := transport.StreamCallbacks{
		OnFrame: onFrame,
		OnConnect: func() {
			s.logger.Info().Msg("push stream connected")
		},
		OnDisconnect: func() {
			s.logger.Warn().Msg("push stream disconnected")
		},
		OnError: func(err error) {
			s.logger.Warn().Err(err).Msg("push stream error")
		},
	}

	stream, err := transport.DialStream(ctx, s.streamURL, s.store.Token(), s.streamCfg, cb, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	return nil
}

func (s *chatService) CloseStream() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
}

// --- fetch-if-absent loads ---

func (s *chatService) FetchSelf(ctx context.Context) error {
	_, err, _ := s.sf.Do(keySelf, func() (any, error) {
		req := protocol.GetUserInfoReq{Request: s.newRequest(true)}
		var rsp protocol.GetUserInfoRsp
		if err := s.call(ctx, protocol.PathGetUserInfo, req, &rsp); err != nil {
			return nil, fmt.Errorf("fetch self: %w", err)
		}
		s.store.SetSelf(domain.UserProfileFromWire(rsp.UserInfo))
		s.bus.Emit(event.Event{Type: event.SelfFetched})
		return nil, nil
	})
	return err
}

func (s *chatService) FetchFriendList(ctx context.Context) error {
	if _, loaded := s.store.FriendList(); loaded {
		return nil
	}
	_, err, _ := s.sf.Do(keyFriendList, func() (any, error) {
		if _, loaded := s.store.FriendList(); loaded {
			return nil, nil
		}
		req := protocol.GetFriendListReq{Request: s.newRequest(true)}
		var rsp protocol.GetFriendListRsp
		if err := s.call(ctx, protocol.PathGetFriendList, req, &rsp); err != nil {
			return nil, fmt.Errorf("fetch friend list: %w", err)
		}

		list := make([]domain.UserProfile, 0, len(rsp.FriendList))
		for _, u := range rsp.FriendList {
			list = append(list, domain.UserProfileFromWire(u))
		}
		s.store.ReplaceFriendList(list)
		s.bus.Emit(event.Event{Type: event.FriendListChanged})
		return nil, nil
	})
	return err
}

func (s *chatService) FetchSessionList(ctx context.Context) error {
	if _, loaded := s.store.SessionList(); loaded {
		return nil
	}
	_, err, _ := s.sf.Do(keySessionList, func() (any, error) {
		if _, loaded := s.store.SessionList(); loaded {
			return nil, nil
		}
		req := protocol.GetChatSessionListReq{Request: s.newRequest(true)}
		var rsp protocol.GetChatSessionListRsp
		if err := s.call(ctx, protocol.PathGetChatSessionList, req, &rsp); err != nil {
			return nil, fmt.Errorf("fetch session list: %w", err)
		}

		list := make([]domain.ChatSession, 0, len(rsp.ChatSessionInfoList))
		for _, c := range rsp.ChatSessionInfoList {
			list = append(list, domain.ChatSessionFromWire(c))
		}
		s.store.ReplaceSessionList(list)
		s.bus.Emit(event.Event{Type: event.SessionListChanged})
		return nil, nil
	})
	return err
}

func (s *chatService) FetchApplyList(ctx context.Context) error {
	if _, loaded := s.store.ApplyList(); loaded {
		return nil
	}
	_, err, _ := s.sf.Do(keyApplyList, func() (any, error) {
		if _, loaded := s.store.ApplyList(); loaded {
			return nil, nil
		}
		req := protocol.GetPendingEventsReq{Request: s.newRequest(true)}
		var rsp protocol.GetPendingEventsRsp
		if err := s.call(ctx, protocol.PathGetPendingEvents, req, &rsp); err != nil {
			return nil, fmt.Errorf("fetch apply list: %w", err)
		}

		list := make([]domain.UserProfile, 0, len(rsp.Events))
		for _, e := range rsp.Events {
			list = append(list, domain.UserProfileFromWire(e.Sender))
		}
		s.store.ReplaceApplyList(list)
		s.bus.Emit(event.Event{Type: event.ApplyListChanged})
		return nil, nil
	})
	return err
}

func (s *chatService) FetchRecentMessages(ctx context.Context, sessionID string, notifyUI bool) error {
	if _, loaded := s.store.RecentMessages(sessionID); loaded {
		if notifyUI {
			s.bus.Emit(event.Event{Type: event.RecentLoaded, SessionID: sessionID})
		}
		return nil
	}
	_, err, _ := s.sf.Do("recent:"+sessionID, func() (any, error) {
		req := protocol.GetRecentMessagesReq{
			Request:       s.newRequest(true),
			ChatSessionID: sessionID,
			MsgCount:      50,
		}
		var rsp protocol.GetRecentMessagesRsp
		if err := s.call(ctx, protocol.PathGetRecentMessages, req, &rsp); err != nil {
			return nil, fmt.Errorf("fetch recent messages: %w", err)
		}

		msgs := make([]domain.Message, 0, len(rsp.MsgList))
		for _, m := range rsp.MsgList {
			msgs = append(msgs, domain.MessageFromWire(m))
		}
		// Full replace merges in any pushes that arrived mid-flight.
		s.store.ReplaceRecentMessages(sessionID, msgs)
		return nil, nil
	})
	if err != nil {
		return err
	}
	if notifyUI {
		s.bus.Emit(event.Event{Type: event.RecentLoaded, SessionID: sessionID})
	}
	return nil
}

func (s *chatService) FetchMemberList(ctx context.Context, sessionID string) error {
	if _, loaded := s.store.MemberList(sessionID); loaded {
		s.bus.Emit(event.Event{Type: event.MemberListFetched, SessionID: sessionID})
		return nil
	}
	_, err, _ := s.sf.Do("members:"+sessionID, func() (any, error) {
		req := protocol.GetSessionMembersReq{Request: s.newRequest(true), ChatSessionID: sessionID}
		var rsp protocol.GetSessionMembersRsp
		if err := s.call(ctx, protocol.PathGetSessionMembers, req, &rsp); err != nil {
			return nil, fmt.Errorf("fetch member list: %w", err)
		}

		list := make([]domain.UserProfile, 0, len(rsp.MemberInfoList))
		for _, u := range rsp.MemberInfoList {
			list = append(list, domain.UserProfileFromWire(u))
		}
		s.store.ReplaceMemberList(sessionID, list)
		s.bus.Emit(event.Event{Type: event.MemberListFetched, SessionID: sessionID})
		return nil, nil
	})
	return err
}

// --- messaging ---

func (s *chatService) SendText(ctx context.Context, sessionID, text string) error {
	return s.sendMessage(ctx, sessionID, domain.KindText, []byte(text), "")
}

func (s *chatService) SendImage(ctx context.Context, sessionID string, data []byte) error {
	return s.sendMessage(ctx, sessionID, domain.KindImage, data, "")
}

func (s *chatService) SendFile(ctx context.Context, sessionID, fileName string, data []byte) error {
	return s.sendMessage(ctx, sessionID, domain.KindFile, data, fileName)
}

func (s *chatService) SendVoice(ctx context.Context, sessionID string, data []byte) error {
	return s.sendMessage(ctx, sessionID, domain.KindVoice, data, "")
}

// sendMessage confirms with the server first, then appends the message
// locally — no optimistic echo. Ordering after confirmation: local append,
// then the message-sent event, then the session-preview update.
func (s *chatService) sendMessage(ctx context.Context, sessionID string, kind domain.MessageKind, payload []byte, fileName string) error {
	content := protocol.MessageContent{Kind: string(kind), Content: payload}
	if kind == domain.KindFile {
		content.FileName = fileName
		content.FileSize = int64(len(payload))
	}

	req := protocol.NewMessageReq{
		Request:       s.newRequest(true),
		ChatSessionID: sessionID,
		Message:       content,
	}
	var rsp protocol.NewMessageRsp
	if err := s.call(ctx, protocol.PathNewMessage, req, &rsp); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	sender, _ := s.store.Self()
	msg := domain.NewMessage(kind, sessionID, sender, payload, fileName)

	if !s.store.UpsertMessage(msg) {
		// History never loaded: the append was buffered; pull the history
		// so the buffer is merged rather than lost.
		if err := s.FetchRecentMessages(ctx, sessionID, false); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("history fetch after send failed")
		}
	}

	s.bus.Emit(event.Event{Type: event.MessageSent, SessionID: sessionID, Message: &msg})

	s.store.UpdateLastMessage(sessionID, msg)
	s.store.PromoteSession(sessionID)
	s.bus.Emit(event.Event{Type: event.LastMessageChanged, SessionID: sessionID})
	return nil
}

// --- profile edits ---

func (s *chatService) ChangeNickname(ctx context.Context, nickname string) error {
	req := protocol.SetNicknameReq{Request: s.newRequest(true), Nickname: nickname}
	var rsp protocol.SetNicknameRsp
	if err := s.call(ctx, protocol.PathSetNickname, req, &rsp); err != nil {
		return fmt.Errorf("change nickname: %w", err)
	}
	s.store.UpdateSelf(func(p *domain.UserProfile) { p.Nickname = nickname })
	s.bus.Emit(event.Event{Type: event.NicknameChanged})
	return nil
}

func (s *chatService) ChangeDescription(ctx context.Context, description string) error {
	req := protocol.SetDescriptionReq{Request: s.newRequest(true), Description: description}
	var rsp protocol.SetDescriptionRsp
	if err := s.call(ctx, protocol.PathSetDescription, req, &rsp); err != nil {
		return fmt.Errorf("change description: %w", err)
	}
	s.store.UpdateSelf(func(p *domain.UserProfile) { p.Description = description })
	s.bus.Emit(event.Event{Type: event.DescriptionChanged})
	return nil
}

func (s *chatService) ChangePhone(ctx context.Context, phone, verifyCode string) error {
	req := protocol.SetPhoneReq{
		Request:      s.newRequest(true),
		Phone:        phone,
		VerifyCodeID: s.store.VerifyCodeID(),
		VerifyCode:   verifyCode,
	}
	var rsp protocol.SetPhoneRsp
	if err := s.call(ctx, protocol.PathSetPhone, req, &rsp); err != nil {
		return fmt.Errorf("change phone: %w", err)
	}
	s.store.UpdateSelf(func(p *domain.UserProfile) { p.Phone = phone })
	s.bus.Emit(event.Event{Type: event.PhoneChanged})
	return nil
}

func (s *chatService) ChangeAvatar(ctx context.Context, avatar []byte) error {
	req := protocol.SetAvatarReq{Request: s.newRequest(true), Avatar: avatar}
	var rsp protocol.SetAvatarRsp
	if err := s.call(ctx, protocol.PathSetAvatar, req, &rsp); err != nil {
		return fmt.Errorf("change avatar: %w", err)
	}
	s.store.UpdateSelf(func(p *domain.UserProfile) { p.Avatar = avatar })
	s.bus.Emit(event.Event{Type: event.AvatarChanged})
	return nil
}

// --- friend lifecycle ---

func (s *chatService) RemoveFriend(ctx context.Context, userID string) error {
	req := protocol.RemoveFriendReq{Request: s.newRequest(true), UserID: userID}
	var rsp protocol.RemoveFriendRsp
	if err := s.call(ctx, protocol.PathRemoveFriend, req, &rsp); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	s.store.RemoveFriend(userID)
	s.bus.Emit(event.Event{Type: event.FriendListChanged})
	return nil
}

func (s *chatService) SendFriendApply(ctx context.Context, userID string) error {
	req := protocol.AddFriendApplyReq{Request: s.newRequest(true), UserID: userID}
	var rsp protocol.AddFriendApplyRsp
	if err := s.call(ctx, protocol.PathAddFriendApply, req, &rsp); err != nil {
		return fmt.Errorf("send friend apply: %w", err)
	}
	s.bus.Emit(event.Event{Type: event.FriendApplySent})
	return nil
}

func (s *chatService) AcceptFriendApply(ctx context.Context, userID string) error {
	req := protocol.AddFriendProcessReq{Request: s.newRequest(true), ApplyUserID: userID, Agree: true}
	var rsp protocol.AddFriendProcessRsp
	if err := s.call(ctx, protocol.PathAddFriendProcess, req, &rsp); err != nil {
		return fmt.Errorf("accept friend apply: %w", err)
	}

	p := s.store.MoveApplyToFriend(userID)
	s.bus.Emit(event.Event{Type: event.FriendApplyAgreed, Profile: &p})
	return nil
}

func (s *chatService) RejectFriendApply(ctx context.Context, userID string) error {
	req := protocol.AddFriendProcessReq{Request: s.newRequest(true), ApplyUserID: userID, Agree: false}
	var rsp protocol.AddFriendProcessRsp
	if err := s.call(ctx, protocol.PathAddFriendProcess, req, &rsp); err != nil {
		return fmt.Errorf("reject friend apply: %w", err)
	}

	s.store.RemoveApply(userID)
	s.bus.Emit(event.Event{Type: event.FriendApplyDenied})
	return nil
}

func (s *chatService) CreateGroupSession(ctx context.Context, userIDs []string) error {
	req := protocol.CreateChatSessionReq{Request: s.newRequest(true), MemberIDList: userIDs}
	var rsp protocol.CreateChatSessionRsp
	if err := s.call(ctx, protocol.PathCreateChatSession, req, &rsp); err != nil {
		return fmt.Errorf("create group session: %w", err)
	}
	// The session itself arrives through the session-create push.
	s.bus.Emit(event.Event{Type: event.GroupCreateDone})
	return nil
}

// --- search ---

func (s *chatService) SearchUsers(ctx context.Context, searchKey string) error {
	req := protocol.SearchFriendReq{Request: s.newRequest(true), SearchKey: searchKey}
	var rsp protocol.SearchFriendRsp
	if err := s.call(ctx, protocol.PathSearchFriend, req, &rsp); err != nil {
		return fmt.Errorf("search users: %w", err)
	}

	list := make([]domain.UserProfile, 0, len(rsp.UserInfoList))
	for _, u := range rsp.UserInfoList {
		list = append(list, domain.UserProfileFromWire(u))
	}
	s.store.ReplaceUserSearch(list)
	s.bus.Emit(event.Event{Type: event.UserSearchDone})
	return nil
}

func (s *chatService) SearchMessages(ctx context.Context, searchKey string) error {
	req := protocol.SearchHistoryReq{
		Request:       s.newRequest(true),
		ChatSessionID: s.store.CurrentSessionID(),
		SearchKey:     searchKey,
	}
	var rsp protocol.SearchHistoryRsp
	if err := s.call(ctx, protocol.PathSearchHistory, req, &rsp); err != nil {
		return fmt.Errorf("search messages: %w", err)
	}
	s.storeMessageSearch(rsp.MsgList)
	return nil
}

func (s *chatService) SearchMessagesByTime(ctx context.Context, begin, end time.Time) error {
	req := protocol.GetHistoryReq{
		Request:       s.newRequest(true),
		ChatSessionID: s.store.CurrentSessionID(),
		StartTime:     begin.Unix(),
		OverTime:      end.Unix(),
	}
	var rsp protocol.GetHistoryRsp
	if err := s.call(ctx, protocol.PathGetHistory, req, &rsp); err != nil {
		return fmt.Errorf("search messages by time: %w", err)
	}
	s.storeMessageSearch(rsp.MsgList)
	return nil
}

func (s *chatService) storeMessageSearch(wire []protocol.MessageInfo) {
	list := make([]domain.Message, 0, len(wire))
	for _, m := range wire {
		list = append(list, domain.MessageFromWire(m))
	}
	s.store.ReplaceMessageSearch(list)
	s.bus.Emit(event.Event{Type: event.MessageSearchDone})
}

// --- lazy payloads and speech ---

func (s *chatService) FetchFile(ctx context.Context, fileID string) error {
	_, err, _ := s.sf.Do("file:"+fileID, func() (any, error) {
		req := protocol.GetSingleFileReq{Request: s.newRequest(true), FileID: fileID}
		var rsp protocol.GetSingleFileRsp
		if err := s.call(ctx, protocol.PathGetSingleFile, req, &rsp); err != nil {
			return nil, fmt.Errorf("fetch file: %w", err)
		}
		s.bus.Emit(event.Event{Type: event.FileFetched, FileID: rsp.FileID, Data: rsp.FileContent})
		return nil, nil
	})
	return err
}

func (s *chatService) SpeechToText(ctx context.Context, fileID string, content []byte) error {
	req := protocol.SpeechToTextReq{Request: s.newRequest(true), FileID: fileID, SpeechContent: content}
	var rsp protocol.SpeechToTextRsp
	if err := s.call(ctx, protocol.PathSpeechToText, req, &rsp); err != nil {
		return fmt.Errorf("speech to text: %w", err)
	}
	s.bus.Emit(event.Event{Type: event.SpeechConverted, FileID: fileID, Text: rsp.Text})
	return nil
}

// --- focus ---

func (s *chatService) FocusSession(sessionID string) {
	s.store.SetCurrentSessionID(sessionID)
	if sessionID != "" {
		s.store.ClearUnread(sessionID)
		s.store.PromoteSession(sessionID)
	}
}

// --- bootstrap ---

func (s *chatService) Bootstrap(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.FetchSelf(ctx) })
	g.Go(func() error { return s.FetchFriendList(ctx) })
	g.Go(func() error { return s.FetchSessionList(ctx) })
	g.Go(func() error { return s.FetchApplyList(ctx) })
	return g.Wait()
}

// --- connectivity ---

func (s *chatService) Ping(ctx context.Context) error {
	_, err := s.http.Call(ctx, protocol.PathPing, nil)
	return err
}

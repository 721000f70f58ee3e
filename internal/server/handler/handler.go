// Package handler serves the mock API: every path the client core
// speaks, the push stream endpoint, and the /mock/push triggers used to
// drive server-initiated notifications from tests and demos.
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/emberchat/ember/internal/protocol"
	"github.com/emberchat/ember/internal/server/config"
	"github.com/emberchat/ember/internal/server/fixtures"
	"github.com/emberchat/ember/internal/server/hub"
	"github.com/emberchat/ember/internal/server/respond"
	"github.com/emberchat/ember/pkg/jwt"
	"github.com/emberchat/ember/pkg/log"
)

type Handler struct {
	world *fixtures.World
	hub   *hub.Hub
	jwt   *jwt.Manager
	wsCfg config.WebSocketConfig
}

func NewHandler(world *fixtures.World, h *hub.Hub, jwtManager *jwt.Manager, wsCfg config.WebSocketConfig) *Handler {
	return &Handler{
		world: world,
		hub:   h,
		jwt:   jwtManager,
		wsCfg: wsCfg,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ping", h.Ping)
	r.POST("/ping", h.Ping)
	r.GET("/ws", h.HandleWebSocket)

	user := r.Group("/service/user")
	{
		user.POST("/username_login", h.UserLogin)
		user.POST("/username_register", h.UserRegister)
		user.POST("/phone_login", h.PhoneLogin)
		user.POST("/phone_register", h.PhoneRegister)
		user.POST("/get_phone_verify_code", h.GetVerifyCode)
		user.POST("/get_user_info", h.GetUserInfo)
		user.POST("/set_nickname", h.SetNickname)
		user.POST("/set_description", h.SetDescription)
		user.POST("/set_phone", h.SetPhone)
		user.POST("/set_avatar", h.SetAvatar)
	}

	friend := r.Group("/service/friend")
	{
		friend.POST("/get_friend_list", h.GetFriendList)
		friend.POST("/get_chat_session_list", h.GetChatSessionList)
		friend.POST("/get_pending_friend_events", h.GetPendingEvents)
		friend.POST("/remove_friend", h.RemoveFriend)
		friend.POST("/add_friend_apply", h.AddFriendApply)
		friend.POST("/add_friend_process", h.AddFriendProcess)
		friend.POST("/create_chat_session", h.CreateChatSession)
		friend.POST("/get_chat_session_member", h.GetSessionMembers)
		friend.POST("/search_friend", h.SearchFriend)
	}

	storage := r.Group("/service/message_storage")
	{
		storage.POST("/get_recent", h.GetRecentMessages)
		storage.POST("/search_history", h.SearchHistory)
		storage.POST("/get_history", h.GetHistory)
	}

	r.POST("/service/message_transmit/new_message", h.NewMessage)
	r.POST("/service/file/get_single_file", h.GetSingleFile)
	r.POST("/service/speech/recognition", h.SpeechToText)

	mock := r.Group("/mock/push")
	{
		mock.POST("/chat_message", h.TriggerChatMessage)
		mock.POST("/session_create", h.TriggerSessionCreate)
		mock.POST("/friend_remove", h.TriggerFriendRemove)
		mock.POST("/friend_apply", h.TriggerFriendApply)
		mock.POST("/friend_process", h.TriggerFriendProcess)
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.String(200, "pong")
}

// authenticate resolves the login session token to a user ID. Reported
// through the business envelope, not an HTTP status, so the client sees
// a normal decline.
func (h *Handler) authenticate(token string) (string, bool) {
	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		return "", false
	}
	return claims.UserID, true
}

// --- user service ---

func (h *Handler) UserLogin(c *gin.Context) {
	var req protocol.UserLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	acct, err := h.world.Authenticate(req.Username, req.Password)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	token, err := h.jwt.GenerateToken(acct.UserID, acct.Profile.Nickname)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}

	l := log.L()
	l.Info().Str(log.FieldUserID, acct.UserID).Msg("user login")
	respond.OK(c, req.RequestID, &protocol.UserLoginRsp{LoginSessionID: token})
}

func (h *Handler) UserRegister(c *gin.Context) {
	var req protocol.UserRegisterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	if _, err := h.world.Register(req.Username, req.Password); err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.UserRegisterRsp{})
}

func (h *Handler) PhoneLogin(c *gin.Context) {
	var req protocol.PhoneLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	acct, err := h.world.AuthenticatePhone(req.Phone, req.VerifyCodeID, req.VerifyCode)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	token, err := h.jwt.GenerateToken(acct.UserID, acct.Profile.Nickname)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.PhoneLoginRsp{LoginSessionID: token})
}

func (h *Handler) PhoneRegister(c *gin.Context) {
	var req protocol.PhoneRegisterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	if _, err := h.world.RegisterPhone(req.Phone, req.VerifyCodeID, req.VerifyCode); err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.PhoneRegisterRsp{})
}

func (h *Handler) GetVerifyCode(c *gin.Context) {
	var req protocol.GetVerifyCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	codeID := h.world.IssueVerifyCode(req.Phone)
	respond.OK(c, req.RequestID, &protocol.GetVerifyCodeRsp{VerifyCodeID: codeID})
}

func (h *Handler) GetUserInfo(c *gin.Context) {
	var req protocol.GetUserInfoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	profile, err := h.world.Profile(userID)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.GetUserInfoRsp{UserInfo: profile})
}

func (h *Handler) SetNickname(c *gin.Context) {
	var req protocol.SetNicknameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	err := h.world.UpdateProfile(userID, func(p *protocol.UserInfo) { p.Nickname = req.Nickname })
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.SetNicknameRsp{})
}

func (h *Handler) SetDescription(c *gin.Context) {
	var req protocol.SetDescriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	err := h.world.UpdateProfile(userID, func(p *protocol.UserInfo) { p.Description = req.Description })
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.SetDescriptionRsp{})
}

func (h *Handler) SetPhone(c *gin.Context) {
	var req protocol.SetPhoneReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	if err := h.world.VerifyPhoneCode(req.Phone, req.VerifyCodeID, req.VerifyCode); err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	err := h.world.UpdateProfile(userID, func(p *protocol.UserInfo) { p.Phone = req.Phone })
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.SetPhoneRsp{})
}

func (h *Handler) SetAvatar(c *gin.Context) {
	var req protocol.SetAvatarReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	err := h.world.UpdateProfile(userID, func(p *protocol.UserInfo) { p.Avatar = req.Avatar })
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.SetAvatarRsp{})
}

// --- friend service ---

func (h *Handler) GetFriendList(c *gin.Context) {
	var req protocol.GetFriendListReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	respond.OK(c, req.RequestID, &protocol.GetFriendListRsp{FriendList: h.world.FriendList(userID)})
}

func (h *Handler) GetChatSessionList(c *gin.Context) {
	var req protocol.GetChatSessionListReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	respond.OK(c, req.RequestID, &protocol.GetChatSessionListRsp{ChatSessionInfoList: h.world.SessionList(userID)})
}

func (h *Handler) GetPendingEvents(c *gin.Context) {
	var req protocol.GetPendingEventsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	respond.OK(c, req.RequestID, &protocol.GetPendingEventsRsp{Events: h.world.PendingApplies(userID)})
}

func (h *Handler) RemoveFriend(c *gin.Context) {
	var req protocol.RemoveFriendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	if err := h.world.RemoveFriend(userID, req.UserID); err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}

	// The removed side learns about it through a push.
	h.hub.PushToUser(req.UserID, protocol.Notification{
		Type:         protocol.NotifyFriendRemove,
		RemoveUserID: userID,
	})
	respond.OK(c, req.RequestID, &protocol.RemoveFriendRsp{})
}

func (h *Handler) AddFriendApply(c *gin.Context) {
	var req protocol.AddFriendApplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	if err := h.world.AddApply(userID, req.UserID); err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}

	applicant, _ := h.world.Profile(userID)
	h.hub.PushToUser(req.UserID, protocol.Notification{
		Type:      protocol.NotifyFriendApply,
		ApplyUser: &applicant,
	})
	respond.OK(c, req.RequestID, &protocol.AddFriendApplyRsp{})
}

func (h *Handler) AddFriendProcess(c *gin.Context) {
	var req protocol.AddFriendProcessReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	sessionID, err := h.world.ProcessApply(userID, req.ApplyUserID, req.Agree)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}

	// The applicant learns the outcome through a push; on agree both
	// sides additionally get the new 1:1 session.
	processor, _ := h.world.Profile(userID)
	h.hub.PushToUser(req.ApplyUserID, protocol.Notification{
		Type:        protocol.NotifyFriendProcess,
		ProcessUser: &processor,
		Agree:       req.Agree,
	})
	if req.Agree {
		h.pushSessionCreate(sessionID, req.ApplyUserID)
	}
	respond.OK(c, req.RequestID, &protocol.AddFriendProcessRsp{NewSessionID: sessionID})
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	var req protocol.CreateChatSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	members := append([]string{userID}, req.MemberIDList...)
	sessionID := h.world.CreateSession("new group", members)
	h.pushSessionCreate(sessionID)
	respond.OK(c, req.RequestID, &protocol.CreateChatSessionRsp{})
}

// pushSessionCreate notifies session members of a newly created session,
// each seeing the session rendered from their own side.
func (h *Handler) pushSessionCreate(sessionID string, only ...string) {
	members, err := h.world.Members(sessionID)
	if err != nil {
		return
	}
	targets := members
	if len(only) > 0 {
		targets = only
	}
	for _, memberID := range targets {
		info, err := h.world.SessionInfoFor(sessionID, memberID)
		if err != nil {
			continue
		}
		h.hub.PushToUser(memberID, protocol.Notification{
			Type:       protocol.NotifySessionCreate,
			NewSession: &info,
		})
	}
}

func (h *Handler) GetSessionMembers(c *gin.Context) {
	var req protocol.GetSessionMembersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	if _, ok := h.authenticate(req.SessionID); !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	members, err := h.world.SessionMembers(req.ChatSessionID)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.GetSessionMembersRsp{MemberInfoList: members})
}

func (h *Handler) SearchFriend(c *gin.Context) {
	var req protocol.SearchFriendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	respond.OK(c, req.RequestID, &protocol.SearchFriendRsp{UserInfoList: h.world.SearchUsers(userID, req.SearchKey)})
}

// --- message storage and transmit ---

func (h *Handler) GetRecentMessages(c *gin.Context) {
	var req protocol.GetRecentMessagesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	if _, ok := h.authenticate(req.SessionID); !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	msgs, err := h.world.RecentMessages(req.ChatSessionID, req.MsgCount)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.GetRecentMessagesRsp{MsgList: msgs})
}

func (h *Handler) SearchHistory(c *gin.Context) {
	var req protocol.SearchHistoryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	if _, ok := h.authenticate(req.SessionID); !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	msgs, err := h.world.SearchMessages(req.ChatSessionID, req.SearchKey)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.SearchHistoryRsp{MsgList: msgs})
}

func (h *Handler) GetHistory(c *gin.Context) {
	var req protocol.GetHistoryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	if _, ok := h.authenticate(req.SessionID); !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	msgs, err := h.world.MessagesBetween(req.ChatSessionID, req.StartTime, req.OverTime)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.GetHistoryRsp{MsgList: msgs})
}

func (h *Handler) NewMessage(c *gin.Context) {
	var req protocol.NewMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	userID, ok := h.authenticate(req.SessionID)
	if !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	msg, err := h.world.AppendMessage(req.ChatSessionID, userID, req.Message)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}

	// Other members get the message pushed; the sender appends locally
	// after this response.
	members, _ := h.world.Members(req.ChatSessionID)
	for _, memberID := range members {
		if memberID == userID {
			continue
		}
		h.hub.PushToUser(memberID, protocol.Notification{
			Type:       protocol.NotifyChatMessage,
			NewMessage: &msg,
		})
	}
	respond.OK(c, req.RequestID, &protocol.NewMessageRsp{})
}

// --- file and speech ---

func (h *Handler) GetSingleFile(c *gin.Context) {
	var req protocol.GetSingleFileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	if _, ok := h.authenticate(req.SessionID); !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	data, err := h.world.File(req.FileID)
	if err != nil {
		respond.Fail(c, req.RequestID, err.Error())
		return
	}
	respond.OK(c, req.RequestID, &protocol.GetSingleFileRsp{FileID: req.FileID, FileContent: data})
}

func (h *Handler) SpeechToText(c *gin.Context) {
	var req protocol.SpeechToTextReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	if _, ok := h.authenticate(req.SessionID); !ok {
		respond.Fail(c, req.RequestID, "invalid login session")
		return
	}

	// Canned transcription; real recognition is out of scope for the mock.
	respond.OK(c, req.RequestID, &protocol.SpeechToTextRsp{Text: "transcribed speech"})
}

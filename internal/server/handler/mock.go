package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberchat/ember/internal/protocol"
	"github.com/emberchat/ember/internal/server/respond"
)

// The /mock/push endpoints drive server-initiated notifications without
// needing a second logged-in client. They take usernames, resolve them
// against the seeded world, mutate it the same way the real API paths
// would, and push the resulting frames.

type triggerChatMessageReq struct {
	From          string `json:"from"`
	ChatSessionID string `json:"chat_session_id"`
	Text          string `json:"text"`
}

func (h *Handler) TriggerChatMessage(c *gin.Context) {
	var req triggerChatMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	senderID, err := h.world.UserIDByUsername(req.From)
	if err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	msg, err := h.world.AppendMessage(req.ChatSessionID, senderID, protocol.MessageContent{
		Kind:    protocol.KindText,
		Content: []byte(req.Text),
	})
	if err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	members, _ := h.world.Members(req.ChatSessionID)
	for _, memberID := range members {
		if memberID == senderID {
			continue
		}
		h.hub.PushToUser(memberID, protocol.Notification{
			Type:       protocol.NotifyChatMessage,
			NewMessage: &msg,
		})
	}
	c.JSON(http.StatusOK, gin.H{"message_id": msg.MessageID})
}

type triggerSessionCreateReq struct {
	Name    string   `json:"name"`
	Members []string `json:"members"` // usernames
}

func (h *Handler) TriggerSessionCreate(c *gin.Context) {
	var req triggerSessionCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	var memberIDs []string
	for _, name := range req.Members {
		id, err := h.world.UserIDByUsername(name)
		if err != nil {
			respond.BadRequest(c, err.Error())
			return
		}
		memberIDs = append(memberIDs, id)
	}

	sessionID := h.world.CreateSession(req.Name, memberIDs)
	h.pushSessionCreate(sessionID)
	c.JSON(http.StatusOK, gin.H{"chat_session_id": sessionID})
}

type triggerFriendRemoveReq struct {
	From string `json:"from"` // the remover
	To   string `json:"to"`   // the removed side, who gets the push
}

func (h *Handler) TriggerFriendRemove(c *gin.Context) {
	var req triggerFriendRemoveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	fromID, err := h.world.UserIDByUsername(req.From)
	if err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	toID, err := h.world.UserIDByUsername(req.To)
	if err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	if err := h.world.RemoveFriend(fromID, toID); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	h.hub.PushToUser(toID, protocol.Notification{
		Type:         protocol.NotifyFriendRemove,
		RemoveUserID: fromID,
	})
	c.Status(http.StatusOK)
}

type triggerFriendApplyReq struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (h *Handler) TriggerFriendApply(c *gin.Context) {
	var req triggerFriendApplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	fromID, err := h.world.UserIDByUsername(req.From)
	if err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	toID, err := h.world.UserIDByUsername(req.To)
	if err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	if err := h.world.AddApply(fromID, toID); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	applicant, _ := h.world.Profile(fromID)
	h.hub.PushToUser(toID, protocol.Notification{
		Type:      protocol.NotifyFriendApply,
		ApplyUser: &applicant,
	})
	c.Status(http.StatusOK)
}

type triggerFriendProcessReq struct {
	From  string `json:"from"` // the processing side
	To    string `json:"to"`   // the applicant, who gets the push
	Agree bool   `json:"agree"`
}

func (h *Handler) TriggerFriendProcess(c *gin.Context) {
	var req triggerFriendProcessReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	fromID, err := h.world.UserIDByUsername(req.From)
	if err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	toID, err := h.world.UserIDByUsername(req.To)
	if err != nil {
		respond.BadRequest(c, err.Error())
		return
	}
	sessionID, err := h.world.ProcessApply(fromID, toID, req.Agree)
	if err != nil {
		respond.BadRequest(c, err.Error())
		return
	}

	processor, _ := h.world.Profile(fromID)
	h.hub.PushToUser(toID, protocol.Notification{
		Type:        protocol.NotifyFriendProcess,
		ProcessUser: &processor,
		Agree:       req.Agree,
	})
	if req.Agree {
		h.pushSessionCreate(sessionID, toID)
	}
	c.Status(http.StatusOK)
}

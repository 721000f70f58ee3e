package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/emberchat/ember/internal/protocol"
	"github.com/emberchat/ember/internal/server/hub"
	"github.com/emberchat/ember/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades the connection and starts the pumps. The
// client must send an auth frame before any pushes reach it.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleFrame)
}

func (h *Handler) handleFrame(client *hub.Client, message []byte) {
	var frame protocol.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		client.SendMessage(protocol.AuthResultFrame{
			Type:   protocol.FrameAuthResult,
			ErrMsg: "invalid frame",
		})
		return
	}

	switch frame.Type {
	case protocol.FrameAuth:
		var auth protocol.AuthFrame
		if err := json.Unmarshal(message, &auth); err != nil {
			client.SendMessage(protocol.AuthResultFrame{
				Type:   protocol.FrameAuthResult,
				ErrMsg: "invalid auth frame",
			})
			return
		}

		userID, ok := h.authenticate(auth.SessionID)
		if !ok {
			client.SendMessage(protocol.AuthResultFrame{
				Type:   protocol.FrameAuthResult,
				ErrMsg: "invalid login session",
			})
			return
		}

		h.hub.Bind(client, userID)
		client.SendMessage(protocol.AuthResultFrame{
			Type:    protocol.FrameAuthResult,
			Success: true,
		})

	default:
		l := log.L()
		l.Warn().Str(log.FieldNotify, frame.Type).Msg("unexpected inbound frame")
	}
}

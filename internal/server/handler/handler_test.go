package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/emberchat/ember/internal/protocol"
	"github.com/emberchat/ember/internal/server/config"
	"github.com/emberchat/ember/internal/server/fixtures"
	"github.com/emberchat/ember/internal/server/hub"
	"github.com/emberchat/ember/pkg/jwt"
)

func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtManager, err := jwt.NewManager(time.Hour, "test")
	if err != nil {
		t.Fatal(err)
	}
	world := fixtures.Seed()
	pushHub := hub.NewHub()
	go pushHub.Run()

	h := NewHandler(world, pushHub, jwtManager, config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 1 << 20,
	})
	r := gin.New()
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func post[Rsp any](t *testing.T, srv *httptest.Server, path string, req any) Rsp {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST %s: status %d", path, resp.StatusCode)
	}
	var rsp Rsp
	if err := json.NewDecoder(resp.Body).Decode(&rsp); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rsp
}

func login(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	rsp := post[protocol.UserLoginRsp](t, srv, protocol.PathUserLogin, protocol.UserLoginReq{
		Request:  protocol.Request{RequestID: "R1"},
		Username: username,
		Password: password,
	})
	if !rsp.Success {
		t.Fatalf("login declined: %s", rsp.ErrMsg)
	}
	return rsp.LoginSessionID
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	srv, h := newTestServer(t)

	token := login(t, srv, "alice", "alice-pass")
	if token == "" {
		t.Fatal("empty token")
	}
	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Nickname != "alice" {
		t.Errorf("claims: %+v", claims)
	}

	rsp := post[protocol.UserLoginRsp](t, srv, protocol.PathUserLogin, protocol.UserLoginReq{
		Request:  protocol.Request{RequestID: "R2"},
		Username: "alice",
		Password: "nope",
	})
	if rsp.Success {
		t.Error("wrong password accepted")
	}
	if rsp.ErrMsg == "" {
		t.Error("decline without reason")
	}
}

func TestAuthedEndpointsRejectBadToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rsp := post[protocol.GetFriendListRsp](t, srv, protocol.PathGetFriendList, protocol.GetFriendListReq{
		Request: protocol.Request{RequestID: "R1", SessionID: "garbage"},
	})
	if rsp.Success {
		t.Error("garbage token accepted")
	}
}

func TestSeededWorld(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "alice", "alice-pass")
	authed := protocol.Request{RequestID: "R1", SessionID: token}

	t.Run("friend list", func(t *testing.T) {
		rsp := post[protocol.GetFriendListRsp](t, srv, protocol.PathGetFriendList, protocol.GetFriendListReq{Request: authed})
		if !rsp.Success || len(rsp.FriendList) != 2 {
			t.Fatalf("friend list: %+v", rsp)
		}
	})

	t.Run("session list carries previews", func(t *testing.T) {
		rsp := post[protocol.GetChatSessionListRsp](t, srv, protocol.PathGetChatSessionList, protocol.GetChatSessionListReq{Request: authed})
		if !rsp.Success || len(rsp.ChatSessionInfoList) != 3 {
			t.Fatalf("session list: %+v", rsp)
		}
		var single, group bool
		for _, s := range rsp.ChatSessionInfoList {
			if s.SingleChatFriendID != "" {
				single = true
				if s.ChatSessionName == "" {
					t.Error("single session without peer name")
				}
			} else {
				group = true
			}
		}
		if !single || !group {
			t.Errorf("expected both session shapes: single=%v group=%v", single, group)
		}
	})

	t.Run("pending applies", func(t *testing.T) {
		rsp := post[protocol.GetPendingEventsRsp](t, srv, protocol.PathGetPendingEvents, protocol.GetPendingEventsReq{Request: authed})
		if !rsp.Success || len(rsp.Events) != 1 || rsp.Events[0].Sender.Nickname != "dave" {
			t.Fatalf("pending events: %+v", rsp)
		}
	})

	t.Run("recent messages", func(t *testing.T) {
		sessions := post[protocol.GetChatSessionListRsp](t, srv, protocol.PathGetChatSessionList, protocol.GetChatSessionListReq{Request: authed})
		var bobSession string
		for _, s := range sessions.ChatSessionInfoList {
			if s.ChatSessionName == "bob" {
				bobSession = s.ChatSessionID
			}
		}
		if bobSession == "" {
			t.Fatal("no session with bob")
		}

		rsp := post[protocol.GetRecentMessagesRsp](t, srv, protocol.PathGetRecentMessages, protocol.GetRecentMessagesReq{
			Request:       authed,
			ChatSessionID: bobSession,
			MsgCount:      50,
		})
		if !rsp.Success || len(rsp.MsgList) != 3 {
			t.Fatalf("recent messages: %+v", rsp)
		}
	})
}

func TestNewMessageRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "alice", "alice-pass")
	authed := protocol.Request{RequestID: "R1", SessionID: token}

	sessions := post[protocol.GetChatSessionListRsp](t, srv, protocol.PathGetChatSessionList, protocol.GetChatSessionListReq{Request: authed})
	sid := sessions.ChatSessionInfoList[0].ChatSessionID

	send := post[protocol.NewMessageRsp](t, srv, protocol.PathNewMessage, protocol.NewMessageReq{
		Request:       authed,
		ChatSessionID: sid,
		Message:       protocol.MessageContent{Kind: protocol.KindText, Content: []byte("round trip")},
	})
	if !send.Success {
		t.Fatalf("send declined: %s", send.ErrMsg)
	}

	recent := post[protocol.GetRecentMessagesRsp](t, srv, protocol.PathGetRecentMessages, protocol.GetRecentMessagesReq{
		Request:       authed,
		ChatSessionID: sid,
		MsgCount:      50,
	})
	last := recent.MsgList[len(recent.MsgList)-1]
	if string(last.Message.Content) != "round trip" {
		t.Errorf("last message: %+v", last)
	}
	if last.Sender.Nickname != "alice" {
		t.Errorf("sender: %+v", last.Sender)
	}
}

func TestFriendApplyLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	aliceToken := login(t, srv, "alice", "alice-pass")

	// dave already has a seeded application pending with alice.
	daveID := post[protocol.GetPendingEventsRsp](t, srv, protocol.PathGetPendingEvents, protocol.GetPendingEventsReq{
		Request: protocol.Request{RequestID: "R1", SessionID: aliceToken},
	}).Events[0].Sender.UserID

	process := post[protocol.AddFriendProcessRsp](t, srv, protocol.PathAddFriendProcess, protocol.AddFriendProcessReq{
		Request:     protocol.Request{RequestID: "R2", SessionID: aliceToken},
		ApplyUserID: daveID,
		Agree:       true,
	})
	if !process.Success || process.NewSessionID == "" {
		t.Fatalf("process: %+v", process)
	}

	friends := post[protocol.GetFriendListRsp](t, srv, protocol.PathGetFriendList, protocol.GetFriendListReq{
		Request: protocol.Request{RequestID: "R3", SessionID: aliceToken},
	})
	found := false
	for _, f := range friends.FriendList {
		if f.UserID == daveID {
			found = true
		}
	}
	if !found {
		t.Errorf("dave not in friend list after acceptance: %+v", friends.FriendList)
	}

	// A second acceptance finds no pending application.
	again := post[protocol.AddFriendProcessRsp](t, srv, protocol.PathAddFriendProcess, protocol.AddFriendProcessReq{
		Request:     protocol.Request{RequestID: "R4", SessionID: aliceToken},
		ApplyUserID: daveID,
		Agree:       true,
	})
	if again.Success {
		t.Error("duplicate acceptance succeeded")
	}
}

func TestVerifyCodeFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	code := post[protocol.GetVerifyCodeRsp](t, srv, protocol.PathGetVerifyCode, protocol.GetVerifyCodeReq{
		Request: protocol.Request{RequestID: "R1"},
		Phone:   "13800001234",
	})
	if !code.Success || code.VerifyCodeID == "" {
		t.Fatalf("verify code: %+v", code)
	}

	reg := post[protocol.PhoneRegisterRsp](t, srv, protocol.PathPhoneRegister, protocol.PhoneRegisterReq{
		Request:      protocol.Request{RequestID: "R2"},
		Phone:        "13800001234",
		VerifyCodeID: code.VerifyCodeID,
		VerifyCode:   fixtures.VerifyCode,
	})
	if !reg.Success {
		t.Fatalf("phone register declined: %s", reg.ErrMsg)
	}

	// The code is consumed; logging in needs a fresh one.
	code2 := post[protocol.GetVerifyCodeRsp](t, srv, protocol.PathGetVerifyCode, protocol.GetVerifyCodeReq{
		Request: protocol.Request{RequestID: "R3"},
		Phone:   "13800001234",
	})
	loginRsp := post[protocol.PhoneLoginRsp](t, srv, protocol.PathPhoneLogin, protocol.PhoneLoginReq{
		Request:      protocol.Request{RequestID: "R4"},
		Phone:        "13800001234",
		VerifyCodeID: code2.VerifyCodeID,
		VerifyCode:   fixtures.VerifyCode,
	})
	if !loginRsp.Success || loginRsp.LoginSessionID == "" {
		t.Fatalf("phone login: %+v", loginRsp)
	}
}

func TestStreamDeliversTriggeredPush(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "alice", "alice-pass")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	auth, _ := json.Marshal(protocol.AuthFrame{
		Type:      protocol.FrameAuth,
		RequestID: "R1",
		SessionID: token,
	})
	if err := conn.WriteMessage(websocket.TextMessage, auth); err != nil {
		t.Fatalf("write auth: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read auth result: %v", err)
	}
	var result protocol.AuthResultFrame
	if err := json.Unmarshal(data, &result); err != nil || !result.Success {
		t.Fatalf("auth result: %s (err=%v)", data, err)
	}

	// Have bob "send" a message into the shared session via the trigger.
	sessions := post[protocol.GetChatSessionListRsp](t, srv, protocol.PathGetChatSessionList, protocol.GetChatSessionListReq{
		Request: protocol.Request{RequestID: "R2", SessionID: token},
	})
	var sid string
	for _, s := range sessions.ChatSessionInfoList {
		if s.ChatSessionName == "bob" {
			sid = s.ChatSessionID
		}
	}
	body, _ := json.Marshal(map[string]string{
		"from":            "bob",
		"chat_session_id": sid,
		"text":            "pushed hello",
	})
	resp, err := http.Post(srv.URL+"/mock/push/chat_message", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trigger status: %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read push: %v", err)
	}
	var push protocol.Notification
	if err := json.Unmarshal(data, &push); err != nil {
		t.Fatalf("decode push: %v", err)
	}
	if push.Type != protocol.NotifyChatMessage || push.NewMessage == nil {
		t.Fatalf("push: %s", data)
	}
	if string(push.NewMessage.Message.Content) != "pushed hello" {
		t.Errorf("push payload: %+v", push.NewMessage)
	}
	if push.NewMessage.Sender.Nickname != "bob" {
		t.Errorf("push sender: %+v", push.NewMessage.Sender)
	}
}

func TestStreamRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	auth, _ := json.Marshal(protocol.AuthFrame{Type: protocol.FrameAuth, RequestID: "R1", SessionID: "junk"})
	conn.WriteMessage(websocket.TextMessage, auth)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var result protocol.AuthResultFrame
	if err := json.Unmarshal(data, &result); err != nil || result.Success {
		t.Fatalf("bad token authenticated: %s", data)
	}
}

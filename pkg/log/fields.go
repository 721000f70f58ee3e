package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldNickname = "nickname"

	// Chat
	FieldSessionID = "chat_session_id"
	FieldMessageID = "message_id"
	FieldNotify    = "notify_type"

	// Program
	FieldProgram = "program"
)

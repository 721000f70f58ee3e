package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/protocol"
)

// StreamConfig holds websocket keepalive tuning.
type StreamConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// DefaultStreamConfig returns the tuning used when the config file is
// silent.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 1 << 22,
	}
}

// StreamCallbacks are invoked from the stream's own goroutines. OnFrame is
// called for every inbound frame in arrival order from a single reader, so
// consumers see pushes exactly as the server ordered them.
type StreamCallbacks struct {
	OnFrame      func(data []byte)
	OnConnect    func()
	OnDisconnect func()
	OnError      func(err error)
}

// Stream is the persistent push channel. It does not reconnect: on error
// it declares itself disconnected and stays that way.
type Stream struct {
	conn      *websocket.Conn
	send      chan []byte
	cfg       StreamConfig
	cb        StreamCallbacks
	logger    zerolog.Logger
	closeOnce sync.Once
}

// DialStream connects to the push stream and queues the authentication
// frame carrying the session token as the first outbound frame, before
// any other traffic.
func DialStream(ctx context.Context, url, token string, cfg StreamConfig, cb StreamCallbacks, logger zerolog.Logger) (*Stream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	s := &Stream{
		conn:   conn,
		send:   make(chan []byte, 256),
		cfg:    cfg,
		cb:     cb,
		logger: logger,
	}

	auth := protocol.AuthFrame{
		Type:      protocol.FrameAuth,
		RequestID: MakeRequestID(),
		SessionID: token,
	}
	frame, err := json.Marshal(auth)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode auth frame: %w", err)
	}
	s.send <- frame
	logger.Info().Str("request_id", auth.RequestID).Msg("stream connected, auth frame queued")

	if cb.OnConnect != nil {
		cb.OnConnect()
	}

	go s.writePump()
	go s.readPump()
	return s, nil
}

// SendFrame queues one frame for delivery. Returns an error when the
// outbound buffer is full rather than blocking a caller that may hold
// locks.
func (s *Stream) SendFrame(data []byte) error {
	select {
	case s.send <- data:
		return nil
	default:
		return fmt.Errorf("stream send buffer full")
	}
}

// Close shuts the stream down. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.send)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) readPump() {
	defer func() {
		s.conn.Close()
		if s.cb.OnDisconnect != nil {
			s.cb.OnDisconnect()
		}
	}()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("stream read error")
				if s.cb.OnError != nil {
					s.cb.OnError(err)
				}
			}
			return
		}
		if s.cb.OnFrame != nil {
			s.cb.OnFrame(data)
		}
	}
}

func (s *Stream) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

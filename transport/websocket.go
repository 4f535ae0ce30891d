package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type WebSocketOptions struct {
	ReadLimit  int64
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		ReadLimit:  65536,
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		WriteWait:  10 * time.Second,
	}
}

type wsStream struct {
	conn      *websocket.Conn
	opts      WebSocketOptions
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketStream wraps an upgraded or dialed connection. Envelopes travel
// as binary messages; text messages are ignored. A keepalive goroutine pings
// every PingPeriod and each pong extends the read deadline.
func NewWebSocketStream(conn *websocket.Conn, opts WebSocketOptions) Stream {
	def := DefaultWebSocketOptions()
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = def.ReadLimit
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	s := &wsStream{conn: conn, opts: opts, done: make(chan struct{})}
	conn.SetReadLimit(opts.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	go s.keepalive()
	return s
}

func (s *wsStream) keepalive() {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *wsStream) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *wsStream) WriteMessage(b []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
	return s.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// best effort; the peer may already be gone
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
		err = s.conn.Close()
	})
	return err
}

// IsNormalClose reports whether err is the ordinary end of a websocket session.
func IsNormalClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	}
	return false
}

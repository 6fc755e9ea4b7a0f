package events

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

const closeGrace = time.Second

// WebSocketTransport receives one event per WebSocket text frame.
type WebSocketTransport struct {
	url    string
	dialer *websocket.Dialer
}

// NewWebSocketTransport returns a transport for the ws:// or wss:// url.
// A nil dialer uses websocket.DefaultDialer.
func NewWebSocketTransport(url string, dialer *websocket.Dialer) *WebSocketTransport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketTransport{url: url, dialer: dialer}
}

// Open dials the socket. Canceling ctx closes it.
func (t *WebSocketTransport) Open(ctx context.Context, token string) (Stream, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, authHeader(token))
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			return nil, statusError(t.url, resp.StatusCode)
		}
		return nil, errors.CreateWithCause(errors.CodeConnectionFailed, err).WithPath(t.url)
	}

	s := &wsStream{conn: conn, stop: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.stop:
		}
	}()
	return s, nil
}

type wsStream struct {
	conn *websocket.Conn
	stop chan struct{}
	once sync.Once
}

func (s *wsStream) Next() ([]byte, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, errors.CreateWithCause(errors.CodeConnectionDropped, err)
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		err = s.conn.Close()
	})
	return err
}

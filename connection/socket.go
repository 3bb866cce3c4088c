package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one established stream transport. ReadFrame blocks until a
// frame arrives or the socket fails; WriteFrame may be called from
// multiple goroutines.
type Socket interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// Dialer opens a Socket to a stream endpoint.
type Dialer interface {
	DialStream(ctx context.Context, url string, header http.Header) (Socket, error)
}

// wsDialer dials WebSocket endpoints with gorilla/websocket.
type wsDialer struct {
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
}

func (d *wsDialer) DialStream(ctx context.Context, url string, header http.Header) (Socket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsSocket{conn: conn, writeTimeout: d.writeTimeout}, nil
}

// wsSocket wraps a gorilla connection. gorilla allows one concurrent
// writer, so writes are serialized here.
type wsSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (s *wsSocket) ReadFrame() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *wsSocket) WriteFrame(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	// Best-effort close handshake before dropping the TCP connection.
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	s.writeMu.Unlock()
	return s.conn.Close()
}

package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the token feed endpoint.
const DefaultURL = "ws://localhost:8080/connect"

// Conn is a single open feed socket.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the socket fails.
	ReadMessage() ([]byte, error)

	// Close closes the socket, sending a close frame with code and reason
	// unless code is CloseAbnormal.
	Close(code int, reason string) error
}

// Dialer opens feed sockets.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialerConfig configures WSDialer.
type WSDialerConfig struct {
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// ReadTimeout closes a silent socket. Zero disables it; the feed sends
	// no keepalives of its own.
	ReadTimeout time.Duration
	// WriteTimeout bounds the close frame write.
	WriteTimeout time.Duration
	// ReadLimit is the largest frame accepted, in bytes. Zero means no limit.
	ReadLimit int64
}

// DefaultReadLimit bounds a single token event frame.
const DefaultReadLimit = 64 << 10

// DefaultWSDialerConfig returns default websocket settings.
func DefaultWSDialerConfig() WSDialerConfig {
	return WSDialerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     time.Second,
		ReadLimit:        DefaultReadLimit,
	}
}

// WSDialer implements Dialer using gorilla/websocket.
type WSDialer struct {
	url    string
	config WSDialerConfig
}

// NewWSDialer creates a dialer for url. A nil config uses defaults.
func NewWSDialer(url string, config *WSDialerConfig) *WSDialer {
	cfg := DefaultWSDialerConfig()
	if config != nil {
		cfg = *config
	}
	return &WSDialer{url: url, config: cfg}
}

// Dial implements Dialer.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if d.config.ReadLimit > 0 {
		conn.SetReadLimit(d.config.ReadLimit)
	}

	return &wsConn{conn: conn, config: d.config}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	config    WSDialerConfig
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	if c.config.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
	_, message, err := c.conn.ReadMessage()
	return message, err
}

func (c *wsConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		if code != CloseAbnormal {
			deadline := time.Now().Add(c.config.WriteTimeout)
			// Peer may already be gone; the close below still releases the socket.
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason), deadline)
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// closeCode extracts the close code from a read error. ok is false when the
// socket failed without a close frame.
func closeCode(err error) (code int, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return CloseAbnormal, false
}

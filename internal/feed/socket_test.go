package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSDialer_ReceivesFramesAndNormalClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"Alpha","symbol":"ALP","uri":"","mint":"mintA"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"Beta","symbol":"BET","uri":"","mint":"mintB"}`))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))

		// Wait for the client to acknowledge the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	m := NewManager(Options{
		Dialer: NewWSDialer(wsURL(server), nil),
		Policy: FixedPolicy{Delay: 10 * time.Millisecond},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	defer m.Close()

	deadline := time.After(2 * time.Second)
	for {
		v := m.View()
		if v.Status.State == Disconnected && len(v.Entries) == 2 {
			if v.Entries[0].Mint != "mintB" || v.Entries[1].Mint != "mintA" {
				t.Fatalf("unexpected order: %s, %s", v.Entries[0].Mint, v.Entries[1].Mint)
			}
			return
		}
		select {
		case <-m.Updates():
		case <-deadline:
			t.Fatalf("timeout: state=%s entries=%d", v.Status.State, len(v.Entries))
		}
	}
}

func TestWSDialer_ReconnectsAfterServerError(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connections.Add(1)

		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "overloaded"))
	}))
	defer server.Close()

	m := NewManager(Options{
		Dialer: NewWSDialer(wsURL(server), nil),
		Policy: FixedPolicy{Delay: 20 * time.Millisecond},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	defer m.Close()

	deadline := time.Now().Add(2 * time.Second)
	for connections.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 connections, got %d", connections.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSDialer_TeardownSendsNormalClosure(t *testing.T) {
	var mu sync.Mutex
	var gotCode int
	var gotReason string
	closed := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					mu.Lock()
					gotCode, gotReason = ce.Code, ce.Text
					mu.Unlock()
				}
				close(closed)
				return
			}
		}
	}))
	defer server.Close()

	m := NewManager(Options{Dialer: NewWSDialer(wsURL(server), nil)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for m.View().Status.State != Connected {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for connection")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotCode != websocket.CloseNormalClosure {
		t.Errorf("expected close code 1000, got %d", gotCode)
	}
	if gotReason != "component unmounting" {
		t.Errorf("expected reason %q, got %q", "component unmounting", gotReason)
	}
}

func TestWSDialer_DialFailure(t *testing.T) {
	d := NewWSDialer("ws://127.0.0.1:1/connect", &WSDialerConfig{HandshakeTimeout: 500 * time.Millisecond})
	if _, err := d.Dial(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestWSDialer_RejectsOversizedFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"mint":"small"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 256)))
		conn.ReadMessage()
	}))
	defer server.Close()

	d := NewWSDialer(wsURL(server), &WSDialerConfig{
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
		ReadLimit:        64,
	})
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(CloseNormal, closeReason)

	if msg, err := conn.ReadMessage(); err != nil || string(msg) != `{"mint":"small"}` {
		t.Fatalf("first frame: %q, %v", msg, err)
	}

	_, err = conn.ReadMessage()
	if err != websocket.ErrReadLimit {
		t.Fatalf("expected read limit error, got %v", err)
	}
	if code, clean := closeCode(err); clean || code != CloseAbnormal {
		t.Errorf("expected abnormal close, got %d (clean=%v)", code, clean)
	}
}

func TestDefaultWSDialerConfig_ReadLimit(t *testing.T) {
	if got := DefaultWSDialerConfig().ReadLimit; got != DefaultReadLimit {
		t.Errorf("expected default read limit %d, got %d", DefaultReadLimit, got)
	}
}

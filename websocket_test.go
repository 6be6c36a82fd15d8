package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
)

// shortKeepalive shrinks the ping/pong windows so keepalive behavior is
// observable within a test run
func shortKeepalive(t *testing.T) {
	t.Helper()
	oldPing, oldPong := wsPingInterval, wsPongTimeout
	wsPingInterval = 50 * time.Millisecond
	wsPongTimeout = 150 * time.Millisecond
	t.Cleanup(func() {
		wsPingInterval, wsPongTimeout = oldPing, oldPong
	})
}

func dialTestServer(t *testing.T, wsh *WebSocketHandler, query string) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(wsh.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, srv
}

func waitForCount(t *testing.T, cm *ClientManager, want int, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for cm.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d after %v", cm.Count(), want, within)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketIdleClientSurvivesKeepalive(t *testing.T) {
	shortKeepalive(t)

	cm := NewClientManager(nil)
	wsh := NewWebSocketHandler(cm, nil)
	conn, _ := dialTestServer(t, wsh, "")

	// Reading services the server's pings; gorilla's default ping handler
	// answers with pongs, exactly like a browser client
	received := make(chan []byte, 8)
	go func() {
		defer close(received)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
	}()

	waitForCount(t, cm, 1, time.Second)

	// Stay silent across several pong-timeout windows; the client must not
	// be dropped just for having nothing to say
	time.Sleep(5 * wsPongTimeout)
	if cm.Count() != 1 {
		t.Fatalf("idle client dropped: count = %d, want 1", cm.Count())
	}

	cm.Broadcast([]byte(`{"timestamp":1}`))
	select {
	case msg, ok := <-received:
		if !ok {
			t.Fatal("connection closed before the frame arrived")
		}
		if string(msg) != `{"timestamp":1}` {
			t.Errorf("got frame %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast frame never delivered")
	}
}

func TestWebSocketClientUnregisteredOnDisconnect(t *testing.T) {
	shortKeepalive(t)

	cm := NewClientManager(nil)
	wsh := NewWebSocketHandler(cm, nil)
	conn, _ := dialTestServer(t, wsh, "")

	waitForCount(t, cm, 1, time.Second)
	conn.Close()
	waitForCount(t, cm, 0, 2*time.Second)
}

func TestWebSocketCompressedFrames(t *testing.T) {
	shortKeepalive(t)

	cm := NewClientManager(nil)
	wsh := NewWebSocketHandler(cm, nil)
	conn, _ := dialTestServer(t, wsh, "?compress=1")

	waitForCount(t, cm, 1, time.Second)

	frame := []byte(`{"timestamp":2,"raw":{}}`)
	cm.Broadcast(frame)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, packed, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary for compressed clients", msgType)
	}

	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		t.Fatalf("frame is not gzip: %v", err)
	}
	unpacked, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompression failed: %v", err)
	}
	if !bytes.Equal(unpacked, frame) {
		t.Errorf("decompressed frame %q, want %q", unpacked, frame)
	}
}

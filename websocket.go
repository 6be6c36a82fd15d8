package main

import (
	"bytes"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
)

const wsReadLimit = 4096

// Keepalive timing. Variables so tests can shorten the windows; the pong
// timeout must exceed the ping interval.
var (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 65536,
	// Frames compress well but we gzip selected clients ourselves
	EnableCompression: false,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is served from the same host; allow all origins
		// and leave CORS policy to the reverse proxy
		return true
	},
}

// WebSocketHandler upgrades dashboard connections and bridges them to the
// client registry. The broadcaster only sees the registry; each connection
// owns its socket through a dedicated writer goroutine.
type WebSocketHandler struct {
	clients *ClientManager
	metrics *Metrics
}

// NewWebSocketHandler creates the handler
func NewWebSocketHandler(clients *ClientManager, metrics *Metrics) *WebSocketHandler {
	return &WebSocketHandler{
		clients: clients,
		metrics: metrics,
	}
}

// HandleWebSocket serves the /ws endpoint
func (wsh *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	compress := r.URL.Query().Get("compress") == "1"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	client := wsh.clients.Register(r.RemoteAddr)
	defer wsh.clients.Unregister(client)
	defer conn.Close()

	writerDone := make(chan struct{})
	go wsh.writeLoop(conn, client, compress, writerDone)

	// Read loop: the dashboard sends nothing meaningful, but reading
	// services control frames and detects disconnects. The writer pings
	// every interval; each pong pushes the read deadline out, so an idle
	// but healthy client stays connected indefinitely.
	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})
	for {
		select {
		case <-client.Done():
			return
		case <-writerDone:
			return
		default:
		}

		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Client %s read error: %v", client.ID, err)
			}
			return
		}
	}
}

// writeLoop drains the client's frame queue onto the socket. It owns every
// write; a failed or timed-out write ends the connection.
func (wsh *WebSocketHandler) writeLoop(conn *websocket.Conn, client *Client, compress bool, done chan struct{}) {
	defer close(done)

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Client %s ping failed: %v", client.ID, err)
				client.Close()
				conn.Close()
				return
			}
		case <-client.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			// Unblock the read loop as well
			conn.Close()
			return
		case frame, ok := <-client.Frames():
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))

			var err error
			if compress {
				var packed []byte
				packed, err = gzipFrame(frame)
				if err == nil {
					err = conn.WriteMessage(websocket.BinaryMessage, packed)
				}
			} else {
				err = conn.WriteMessage(websocket.TextMessage, frame)
			}
			if err != nil {
				log.Printf("Client %s write failed: %v", client.ID, err)
				client.Close()
				conn.Close()
				return
			}
		}
	}
}

// gzipFrame compresses one serialized frame for clients that asked for
// binary gzip delivery
func gzipFrame(frame []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(frame); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

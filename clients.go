package main

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	// clientFrameBuffer is the per-client frame queue depth, about two
	// seconds of frames at the default 12 Hz tick
	clientFrameBuffer = 24

	// clientMaxConsecutiveDrops is how many frames in a row a client may
	// miss before it is considered dead and unregistered
	clientMaxConsecutiveDrops = 24
)

// Client is one connected consumer. Frames are queued on a buffered channel
// drained by the connection's writer goroutine; the broadcaster never
// touches the socket.
type Client struct {
	ID         uuid.UUID
	RemoteAddr string

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	consecutiveDrops int32
}

// Frames returns the channel the writer goroutine drains
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

// Done is closed when the client is shut down
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the client dead. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// deliverResult reports what happened to one queued frame
type deliverResult int

const (
	deliverQueued  deliverResult = iota // frame is on the client's queue
	deliverDropped                      // queue full, frame discarded
	deliverDead                         // client closed or past the drop limit
)

// deliver queues a frame without blocking. A full queue drops the frame; a
// client that keeps missing frames, or one already closed, is reported dead
// so the manager can unregister it.
func (c *Client) deliver(frame []byte) deliverResult {
	select {
	case <-c.done:
		return deliverDead
	default:
	}

	select {
	case c.frames <- frame:
		atomic.StoreInt32(&c.consecutiveDrops, 0)
		return deliverQueued
	default:
		if drops := atomic.AddInt32(&c.consecutiveDrops, 1); drops >= clientMaxConsecutiveDrops {
			return deliverDead
		}
		return deliverDropped
	}
}

// ClientManager tracks connected consumers. Registration and broadcast run
// concurrently: broadcast iterates a snapshot of the client set, so one
// client's failure or a mid-broadcast connect never disturbs the others.
type ClientManager struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	metrics *Metrics
}

// NewClientManager creates an empty registry
func NewClientManager(metrics *Metrics) *ClientManager {
	return &ClientManager{
		clients: make(map[uuid.UUID]*Client),
		metrics: metrics,
	}
}

// Register admits a new consumer
func (cm *ClientManager) Register(remoteAddr string) *Client {
	client := &Client{
		ID:         uuid.New(),
		RemoteAddr: remoteAddr,
		frames:     make(chan []byte, clientFrameBuffer),
		done:       make(chan struct{}),
	}

	cm.mu.Lock()
	cm.clients[client.ID] = client
	count := len(cm.clients)
	cm.mu.Unlock()

	if cm.metrics != nil {
		cm.metrics.SetConnectedClients(count)
	}
	log.Printf("Client %s connected from %s (%d total)", client.ID, remoteAddr, count)
	return client
}

// Unregister removes a consumer and closes it. Safe to call repeatedly and
// for clients already dropped by a failed broadcast.
func (cm *ClientManager) Unregister(client *Client) {
	if client == nil {
		return
	}

	cm.mu.Lock()
	_, present := cm.clients[client.ID]
	if present {
		delete(cm.clients, client.ID)
	}
	count := len(cm.clients)
	cm.mu.Unlock()

	client.Close()

	if present {
		if cm.metrics != nil {
			cm.metrics.SetConnectedClients(count)
		}
		log.Printf("Client %s disconnected (%d remaining)", client.ID, count)
	}
}

// Count returns the number of registered consumers
func (cm *ClientManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// Broadcast queues a serialized frame for every registered consumer.
// Consumers that fail are dropped afterwards; delivery to the rest is
// unaffected. Completes trivially with zero consumers.
func (cm *ClientManager) Broadcast(frame []byte) {
	cm.mu.RLock()
	targets := make([]*Client, 0, len(cm.clients))
	for _, client := range cm.clients {
		targets = append(targets, client)
	}
	cm.mu.RUnlock()

	var failed []*Client
	for _, client := range targets {
		switch client.deliver(frame) {
		case deliverQueued:
			if cm.metrics != nil {
				cm.metrics.IncFramesSent()
			}
		case deliverDropped:
			if cm.metrics != nil {
				cm.metrics.IncFramesDropped("queue_full")
			}
		case deliverDead:
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		if cm.metrics != nil {
			cm.metrics.IncFramesDropped("client_dead")
		}
		log.Printf("WARNING: Dropping unresponsive client %s", client.ID)
		cm.Unregister(client)
	}
}

// CloseAll shuts down every consumer, used at server shutdown
func (cm *ClientManager) CloseAll() {
	cm.mu.Lock()
	clients := make([]*Client, 0, len(cm.clients))
	for _, client := range cm.clients {
		clients = append(clients, client)
	}
	cm.clients = make(map[uuid.UUID]*Client)
	cm.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
	if cm.metrics != nil {
		cm.metrics.SetConnectedClients(0)
	}
}

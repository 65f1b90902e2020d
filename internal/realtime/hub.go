// Package realtime is the websocket fan-out layer: it keeps per-topic
// subscriber registries and pushes auction snapshots to every connection
// subscribed to a topic. It is a transport adapter for the broadcaster; the
// bidding core never depends on it directly.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/metrics"
	"github.com/bidwire/auction/pkg/logger"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	// sendBuffer bounds per-client queued snapshots; a client that cannot
	// drain this is dropped rather than stalling the hub.
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn  *websocket.Conn
	topic string
	send  chan auction.Snapshot
}

// Hub tracks topic subscriptions and implements broadcast.Publisher.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*client]struct{}
	closed bool
	log    *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("realtime")
	}
	return &Hub{topics: make(map[string]map[*client]struct{}), log: log}
}

func (h *Hub) Name() string { return "realtime-hub" }

func (h *Hub) Start(context.Context) error { return nil }

// Stop disconnects every subscriber.
func (h *Hub) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, clients := range h.topics {
		for c := range clients {
			close(c.send)
		}
	}
	h.topics = make(map[string]map[*client]struct{})
	return nil
}

// Publish queues the snapshot for every subscriber of the topic. Slow
// clients are skipped; the hub never blocks the caller.
func (h *Hub) Publish(topic string, snap auction.Snapshot) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[topic] {
		select {
		case c.send <- snap:
		default:
			h.log.Warnf("subscriber on %s too slow, dropping snapshot", topic)
		}
	}
	return nil
}

// Subscribers returns the current subscriber count for a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Serve upgrades the request to a websocket and streams snapshots for the
// topic until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, topic: topic, send: make(chan auction.Snapshot, sendBuffer)}

	if !h.register(c) {
		_ = conn.Close()
		return
	}
	metrics.SubscriberGauge(1)
	defer func() {
		h.unregister(c)
		metrics.SubscriberGauge(-1)
		_ = conn.Close()
	}()

	go h.writeLoop(c)

	// Read loop only services control frames and detects disconnects;
	// subscribers do not send data.
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case snap, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeTimeout))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(snap); err != nil {
				h.log.WithError(err).Debugf("write to subscriber on %s", c.topic)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	clients, ok := h.topics[c.topic]
	if !ok {
		clients = make(map[*client]struct{})
		h.topics[c.topic] = clients
	}
	clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.topics[c.topic]; ok {
		if _, present := clients[c]; present {
			delete(clients, c)
			close(c.send)
			if len(clients) == 0 {
				delete(h.topics, c.topic)
			}
		}
	}
}

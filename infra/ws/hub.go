package ws

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mergeeats/core/core/notify"
	"github.com/mergeeats/core/infra/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 32
)

// Hub pushes realtime events to connected customer, merchant and partner
// apps over websockets. It implements notify.Notifier: delivery is
// at-least-once to currently connected clients, with no replay for clients
// that reconnect later.
type Hub struct {
	log      logger.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	subs   map[string]map[*client]bool
	closed bool
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	topic string
	send  chan notify.Event
	once  sync.Once
}

// NewHub creates an empty hub.
func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.New("ws-hub")
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[string]map[*client]bool),
	}
}

// ServeHTTP upgrades GET /ws?role=customer&id=... connections and streams
// the caller's topic until the peer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	var topic string
	switch role {
	case "customer":
		topic = notify.CustomerTopic(id)
	case "merchant":
		topic = notify.MerchantTopic(id)
	case "partner":
		topic = notify.PartnerTopic(id)
	default:
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("upgrade failed for %s: %v", topic, err)
		return
	}
	c := &client{hub: h, conn: conn, topic: topic, send: make(chan notify.Event, sendBufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*client]bool)
	}
	h.subs[topic][c] = true
	h.mu.Unlock()

	h.log.Debugf("client connected on %s", topic)
	go c.writePump()
	go c.readPump()
}

// Publish delivers the event to every client subscribed to topic. A client
// whose buffer is full is dropped rather than allowed to stall the rest.
func (h *Hub) Publish(topic string, ev notify.Event) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return fmt.Errorf("ws: hub closed")
	}
	var stale []*client
	for c := range h.subs[topic] {
		select {
		case c.send <- ev:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Warnf("dropping slow client on %s", c.topic)
		c.close()
	}
	return nil
}

// Subscribers reports how many clients listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Close disconnects every client and rejects further publishes.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, clients := range h.subs {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.subs = make(map[string]map[*client]bool)
	h.mu.Unlock()
	for _, c := range all {
		c.close()
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if clients, ok := h.subs[c.topic]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.subs, c.topic)
		}
	}
	h.mu.Unlock()
}

func (c *client) close() {
	c.once.Do(func() {
		c.hub.remove(c)
		close(c.send)
		_ = c.conn.Close()
	})
}

// readPump discards inbound frames, it exists to run the pong handler and
// notice disconnects.
func (c *client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.hub.log.Debugf("write on %s failed: %v", c.topic, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

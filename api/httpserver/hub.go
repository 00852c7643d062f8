package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crossbook/adapter/message"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced by the router
	},
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// hub pushes the aggregated book to every /ws client whenever its version
// changes.
type hub struct {
	svc      Service
	interval time.Duration
	levels   int
	log      *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[string]*wsClient
	version uint64
	sent    bool
}

func newHub(svc Service, interval time.Duration, levels int, log *zap.SugaredLogger) *hub {
	return &hub{
		svc:      svc,
		interval: interval,
		levels:   levels,
		log:      log,
		clients:  make(map[string]*wsClient),
	}
}

func (h *hub) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) snapshot() (uint64, []byte, error) {
	d := h.svc.Depth(h.levels)
	raw, err := json.Marshal(message.Book(h.svc.Instrument(), d))
	return d.Version, raw, err
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{id: uuid.NewString(), conn: conn}
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.log.Debugw("stream opened", "client", client.id)

	// initial book
	if _, raw, err := h.snapshot(); err == nil {
		if err := client.send(raw); err != nil {
			h.drop(client)
			return
		}
	}

	// clients never send; reading detects disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(client)
			return
		}
	}
}

func (h *hub) drop(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		h.log.Debugw("stream closed", "client", c.id)
	}
}

func (h *hub) run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcastIfChanged()
		}
	}
}

func (h *hub) broadcastIfChanged() {
	version, raw, err := h.snapshot()
	if err != nil {
		h.log.Errorw("encode book", "error", err)
		return
	}
	if h.sent && version == h.version {
		return
	}
	h.version, h.sent = version, true

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(raw); err != nil {
			h.log.Debugw("stream write failed", "client", c.id, "error", err)
			h.drop(c)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		c.mu.Unlock()
		_ = c.conn.Close()
	}
}

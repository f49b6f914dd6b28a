package agent

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeDeadline = 10 * time.Second

// Hub fans every reported event out to all connected websocket
// subscribers. A subscriber that cannot keep up with the write deadline
// is dropped rather than allowed to stall the others.
type Hub struct {
	session  uuid.UUID
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub(session uuid.UUID) *Hub {
	return &Hub{
		session: session,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// helloFrame is the first message every subscriber receives.
type helloFrame struct {
	Type    string `json:"type"`
	Session string `json:"session"`
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if err := h.write(conn, helloFrame{Type: "hello", Session: h.session.String()}); err != nil {
		_ = conn.Close()
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	// Block reading until the peer goes away; subscribers only listen.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.drop(conn)
}

// Broadcast sends v to every subscriber, dropping the ones that fail.
func (h *Hub) Broadcast(v any) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := h.write(conn, v); err != nil {
			log.Debug().Err(err).Msg("dropping slow event subscriber")
			h.drop(conn)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		_ = conn.Close()
		delete(h.conns, conn)
	}
}

func (h *Hub) write(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()

	_ = conn.Close()
}

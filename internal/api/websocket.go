// internal/api/websocket.go
package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/medtrainlab/casesim/internal/pipeline"
	"github.com/medtrainlab/casesim/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the gateway in front of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient is one live connection to a session channel.
type wsClient struct {
	conn *websocket.Conn
	send chan interface{}
}

// WebSocketHandler maintains the live session channels. Clients receive
// every turn result for their session, whether the turn came over HTTP or
// over their own socket.
type WebSocketHandler struct {
	sessions *session.Manager

	mu      sync.RWMutex
	clients map[string]map[*wsClient]bool
}

// NewWebSocketHandler creates the channel registry.
func NewWebSocketHandler(sessions *session.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		clients:  make(map[string]map[*wsClient]bool),
	}
}

// Serve handles GET /ws/sessions/:id. Incoming messages are turn requests;
// outgoing messages are turn results.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ websocket upgrade failed for session %s: %v", sess.ID, err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan interface{}, 8)}
	h.register(sess.ID, client)

	go h.writeLoop(sess.ID, client)
	h.readLoop(sess, client)
}

func (h *WebSocketHandler) readLoop(sess *session.Session, client *wsClient) {
	defer func() {
		h.unregister(sess.ID, client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(64 << 10)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var req TurnRequest
		if err := client.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ websocket read error for session %s: %v", sess.ID, err)
			}
			return
		}

		// The socket outlives the upgrade request, so turns run on their
		// own context.
		result, err := sess.RunTurn(context.Background(), pipeline.TurnInput{
			UserAction: req.UserAction,
			Reset:      req.Reset,
			StartEvent: req.StartEvent,
		})
		if err != nil {
			client.send <- gin.H{"error": err.Error()}
			continue
		}
		h.BroadcastTurn(sess.ID, result)
	}
}

func (h *WebSocketHandler) writeLoop(sessionID string, client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastTurn pushes a turn result to every subscriber of the session.
func (h *WebSocketHandler) BroadcastTurn(sessionID string, result *pipeline.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.send <- result:
		default:
			// Slow consumer; drop the update rather than block the turn.
		}
	}
}

// CloseSession disconnects every subscriber of an ended session.
func (h *WebSocketHandler) CloseSession(sessionID string) {
	h.mu.Lock()
	clients := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	for client := range clients {
		close(client.send)
	}
}

func (h *WebSocketHandler) register(sessionID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*wsClient]bool)
	}
	h.clients[sessionID][client] = true
}

func (h *WebSocketHandler) unregister(sessionID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[sessionID]; ok {
		if clients[client] {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(h.clients, sessionID)
		}
	}
}

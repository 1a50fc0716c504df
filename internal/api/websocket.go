package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"battleforge/internal/protocol"
)

const (
	// MaxWSConnectionsTotal caps concurrent WebSocket connections.
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP caps connections per source IP.
	MaxWSConnectionsPerIP = 10

	wsSendBuffer = 64
)

// InboundMessage is one decoded client message queued for the simulation
// loop. All protocol handling happens on that single loop; the websocket
// read goroutines only decode and enqueue.
type InboundMessage struct {
	PlayerID string
	Envelope protocol.Envelope
}

type wsClient struct {
	conn     *websocket.Conn
	playerID string
	ip       string
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub manages player WebSocket connections and implements
// protocol.Sender over them.
type Hub struct {
	log   zerolog.Logger
	rooms *protocol.RoomManager

	mu      sync.RWMutex
	clients map[string]*wsClient // playerID -> connection

	inbound    chan InboundMessage
	disconnect chan string

	upgrader  websocket.Upgrader
	perIP     map[string]int
	perIPMu   sync.Mutex
}

// NewHub creates a hub bound to the room manager.
func NewHub(log zerolog.Logger, rooms *protocol.RoomManager, allowedOrigins []string) *Hub {
	h := &Hub{
		log:        log,
		rooms:      rooms,
		clients:    make(map[string]*wsClient),
		inbound:    make(chan InboundMessage, 256),
		disconnect: make(chan string, 16),
		perIP:      make(map[string]int),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			log.Warn().Str("origin", origin).Msg("⚠️ websocket rejected by origin check")
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Inbound returns the decoded message queue the simulation loop drains.
func (h *Hub) Inbound() <-chan InboundMessage { return h.inbound }

// Disconnects returns player IDs whose connections dropped.
func (h *Hub) Disconnects() <-chan string { return h.disconnect }

// SendToPlayer implements protocol.Sender.
func (h *Hub) SendToPlayer(playerID, msgType string, payload any) {
	h.mu.RLock()
	client, ok := h.clients[playerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(client, msgType, payload)
}

// BroadcastToRoom implements protocol.Sender.
func (h *Hub) BroadcastToRoom(roomID, msgType string, payload any) {
	room, ok := h.rooms.Room(roomID)
	if !ok {
		return
	}
	for _, seat := range room.SeatsInOrder() {
		h.SendToPlayer(seat.PlayerID, msgType, payload)
	}
}

// GetPlayerRoom implements protocol.Sender.
func (h *Hub) GetPlayerRoom(playerID string) string {
	return h.rooms.PlayerRoomID(playerID)
}

func (h *Hub) deliver(client *wsClient, msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("encode outbound message")
		return
	}
	data, err := json.Marshal(protocol.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return
	}
	select {
	case client.send <- data:
		IncrementWSMessages()
	default:
		// Slow consumer: drop the connection rather than block the
		// simulation loop.
		h.log.Warn().Str("player", client.playerID).Msg("websocket send buffer full, dropping client")
		client.close()
	}
}

// ClientCount returns the number of connected players.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades a connection for ?player=...&room=... and
// pumps its messages into the inbound queue.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player")
	roomID := r.URL.Query().Get("room")
	if playerID == "" || roomID == "" {
		http.Error(w, "player and room are required", http.StatusBadRequest)
		return
	}

	if h.ClientCount() >= MaxWSConnectionsTotal {
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	ip := GetClientIP(r)
	h.perIPMu.Lock()
	if h.perIP[ip] >= MaxWSConnectionsPerIP {
		h.perIPMu.Unlock()
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}
	h.perIP[ip]++
	h.perIPMu.Unlock()

	if _, err := h.rooms.Join(roomID, playerID); err != nil {
		h.releaseIP(ip)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		h.releaseIP(ip)
		return
	}

	client := &wsClient{
		conn:     conn,
		playerID: playerID,
		ip:       ip,
		send:     make(chan []byte, wsSendBuffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if old, ok := h.clients[playerID]; ok {
		old.close()
	}
	h.clients[playerID] = client
	count := len(h.clients)
	h.mu.Unlock()
	UpdateWSConnections(count)
	h.log.Info().Str("player", playerID).Str("room", roomID).Int("total", count).Msg("📱 client connected")

	go h.writeLoop(client)
	go h.readLoop(client)
}

func (h *Hub) releaseIP(ip string) {
	h.perIPMu.Lock()
	if h.perIP[ip] > 0 {
		h.perIP[ip]--
	}
	h.perIPMu.Unlock()
}

func (h *Hub) readLoop(client *wsClient) {
	defer h.drop(client)
	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case h.inbound <- InboundMessage{PlayerID: client.playerID, Envelope: env}:
		default:
			// Inbound queue full: shed the message, not the tick budget.
		}
	}
}

func (h *Hub) writeLoop(client *wsClient) {
	for {
		select {
		case data := <-client.send:
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				client.close()
				return
			}
		case <-client.done:
			return
		}
	}
}

func (h *Hub) drop(client *wsClient) {
	client.close()
	h.releaseIP(client.ip)

	h.mu.Lock()
	if cur, ok := h.clients[client.playerID]; ok && cur == client {
		delete(h.clients, client.playerID)
	}
	count := len(h.clients)
	h.mu.Unlock()
	UpdateWSConnections(count)
	h.log.Info().Str("player", client.playerID).Int("remaining", count).Msg("📱 client disconnected")

	select {
	case h.disconnect <- client.playerID:
	default:
	}
}

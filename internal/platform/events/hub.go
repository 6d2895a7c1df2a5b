package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medimate/api/internal/platform/identity"
)

// Client represents a single subscriber connection bound to one recipient
// identity room.
type Client struct {
	ID          string
	RecipientID string
	Send        chan []byte
}

// Hub is the connection manager behind the fan-out channel. Rooms are keyed
// by recipient identity id; all operations are safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	all    map[*Client]struct{}
	logger zerolog.Logger
}

// NewHub creates a Hub ready to manage subscriber connections.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to its recipient room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	if h.rooms[client.RecipientID] == nil {
		h.rooms[client.RecipientID] = make(map[*Client]struct{})
	}
	h.rooms[client.RecipientID][client] = struct{}{}
}

// Unregister removes a client from its room and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	if subscribers, ok := h.rooms[client.RecipientID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.rooms, client.RecipientID)
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// Publish implements Publisher. Delivery is fire-and-forget: a recipient with
// no connected subscribers, or one whose buffer is full, is silently skipped.
func (h *Hub) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("marshal event")
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	subscribers, ok := h.rooms[event.RecipientID]
	if !ok {
		return nil
	}

	for client := range subscribers {
		select {
		case client.Send <- data:
		default:
			// Subscriber buffer full; drop rather than block the publisher.
		}
	}
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// RoomCount returns the number of clients subscribed to a recipient room.
func (h *Hub) RoomCount(recipientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[recipientID])
}

// ---------------------------------------------------------------------------
// WebSocket subscription endpoint
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin checks are handled by the CORS layer.
	},
}

// SubscribeHandler upgrades HTTP connections to WebSocket streams scoped to
// one recipient identity room.
type SubscribeHandler struct {
	hub *Hub
}

// NewSubscribeHandler creates a handler bound to the given Hub.
func NewSubscribeHandler(hub *Hub) *SubscribeHandler {
	return &SubscribeHandler{hub: hub}
}

// RegisterRoutes registers the subscription endpoint on the provided group.
func (sh *SubscribeHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", sh.HandleConnect)
}

// HandleConnect joins the caller to their own room. An administrator may
// observe another identity's room via the identity_id query parameter; any
// other caller is pinned to their own id.
func (sh *SubscribeHandler) HandleConnect(c echo.Context) error {
	id, ok := identity.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity not resolved")
	}

	room := id.UserID.String()
	if requested := c.QueryParam("identity_id"); requested != "" && requested != room {
		if !id.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "may only subscribe to your own events")
		}
		if _, err := uuid.Parse(requested); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid identity_id")
		}
		room = requested
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:          uuid.New().String(),
		RecipientID: room,
		Send:        make(chan []byte, 256),
	}
	sh.hub.Register(client)

	go sh.writePump(client, ws)
	go sh.readPump(client, ws)

	return nil
}

// readPump drains inbound frames until the peer disconnects. Inbound data is
// ignored; the stream is one-way.
func (sh *SubscribeHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		sh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump writes events from the Send channel to the connection.
func (sh *SubscribeHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

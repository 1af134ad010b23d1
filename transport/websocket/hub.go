package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum command size allowed from peer. Rules text is the largest field.
	maxMessageSize = 8192

	// Time allowed for one command to run against the service.
	commandTimeout = 15 * time.Second
)

// CodeInternal marks failures that carry no domain error kind.
const CodeInternal engine.Code = "INTERNAL"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		return true
	},
}

// Command is one request frame from a client
type Command struct {
	ID        string       `json:"id"`
	Action    string       `json:"action"`
	SessionID string       `json:"session_id,omitempty"`
	Name      string       `json:"name,omitempty"`
	Rules     string       `json:"rules,omitempty"`
	Preset    string       `json:"preset,omitempty"`
	Ready     *bool        `json:"ready,omitempty"`
	State     engine.State `json:"state,omitempty"`
	Limit     int          `json:"limit,omitempty"`
}

// Reply answers exactly one Command, on the connection that sent it
type Reply struct {
	ID         string             `json:"id"`
	OK         bool               `json:"ok"`
	Result     interface{}        `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
	Code       engine.Code        `json:"code,omitempty"`
	Violations []engine.Violation `json:"violations,omitempty"`
}

// Client is one authenticated WebSocket connection
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	playerID string
}

// Hub tracks connections per player and runs their commands against the
// game service. Replies go only to the issuing connection; nothing is
// pushed to other clients.
type Hub struct {
	service service.GameService

	// Registered clients by player ID
	players map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub(gameService service.GameService) *Hub {
	return &Hub{
		service:    gameService,
		players:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			// Closing the connections ends each readPump.
			for _, clients := range h.players {
				for client := range clients {
					if client.conn != nil {
						client.conn.Close()
					}
				}
			}
			return
		}
	}
}

// ServeWS upgrades the request and serves commands for playerID
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, playerID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		playerID: playerID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// registerClient adds a client under its player
func (h *Hub) registerClient(client *Client) {
	if h.players[client.playerID] == nil {
		h.players[client.playerID] = make(map[*Client]bool)
	}
	h.players[client.playerID][client] = true

	log.Printf("Client registered for player %s (connections: %d)",
		client.playerID, len(h.players[client.playerID]))
}

// unregisterClient removes a client and closes its send queue
func (h *Hub) unregisterClient(client *Client) {
	if clients, ok := h.players[client.playerID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)

			if len(clients) == 0 {
				delete(h.players, client.playerID)
			}

			log.Printf("Client unregistered for player %s (remaining connections: %d)",
				client.playerID, len(clients))
		}
	}
}

// Dispatch runs one command as playerID and builds its reply
func (h *Hub) Dispatch(ctx context.Context, playerID string, cmd Command) Reply {
	result, err := h.execute(ctx, playerID, cmd)
	if err != nil {
		return errorReply(cmd.ID, err)
	}
	return Reply{ID: cmd.ID, OK: true, Result: result}
}

func (h *Hub) execute(ctx context.Context, playerID string, cmd Command) (interface{}, error) {
	svc := h.service
	switch cmd.Action {
	case "create":
		return svc.CreateSession(ctx, service.CreateRequest{Name: cmd.Name, Rules: cmd.Rules, Preset: cmd.Preset}, playerID)
	case "list":
		return svc.ListSessions(ctx, service.ListOptions{State: cmd.State, Limit: cmd.Limit})
	case "get":
		return svc.GetSession(ctx, cmd.SessionID)
	case "join":
		return svc.JoinSession(ctx, cmd.SessionID, playerID)
	case "ready":
		ready := true
		if cmd.Ready != nil {
			ready = *cmd.Ready
		}
		return svc.SetReady(ctx, cmd.SessionID, playerID, ready)
	case "start":
		return svc.StartSession(ctx, cmd.SessionID, playerID)
	case "leave":
		return svc.LeaveSession(ctx, cmd.SessionID, playerID)
	case "end":
		return svc.EndSession(ctx, cmd.SessionID, playerID)
	case "players":
		return svc.GetPlayers(ctx, cmd.SessionID)
	case "current_player":
		return svc.GetCurrentPlayer(ctx, cmd.SessionID)
	case "top_card":
		return svc.GetTopCard(ctx, cmd.SessionID)
	case "scores":
		return svc.GetScores(ctx, cmd.SessionID)
	case "hand":
		return svc.GetHand(ctx, cmd.SessionID, playerID)
	case "presets":
		return svc.ListPresets(ctx)
	case "preset":
		return svc.GetPreset(ctx, cmd.Name)
	case "":
		return nil, engine.Errorf(engine.CodeInvalidInput, "action is required")
	default:
		return nil, engine.Errorf(engine.CodeInvalidInput, "unknown action %q", cmd.Action)
	}
}

func errorReply(id string, err error) Reply {
	var domainErr *engine.Error
	if errors.As(err, &domainErr) {
		return Reply{ID: id, Error: domainErr.Error(), Code: domainErr.Code, Violations: domainErr.Violations}
	}
	return Reply{ID: id, Error: "internal error", Code: CodeInternal}
}

// handleFrame decodes one frame and returns the encoded reply
func (c *Client) handleFrame(ctx context.Context, data []byte) []byte {
	var reply Reply
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		reply = Reply{Error: "malformed command", Code: engine.CodeInvalidInput}
	} else {
		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		reply = c.hub.Dispatch(cmdCtx, c.playerID, cmd)
		cancel()
		if !reply.OK && reply.Code == CodeInternal {
			log.Printf("WebSocket command %q from %s failed", cmd.Action, c.playerID)
		}
	}

	out, err := json.Marshal(reply)
	if err != nil {
		log.Printf("Failed to marshal WebSocket reply: %v", err)
		out, _ = json.Marshal(Reply{ID: reply.ID, Error: "internal error", Code: CodeInternal})
	}
	return out
}

// readPump runs commands from the connection in arrival order
func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		select {
		case c.send <- c.handleFrame(ctx, data):
		default:
			// Client is not draining replies
			log.Printf("Dropping slow WebSocket client for player %s", c.playerID)
			return
		}
	}
}

// writePump writes replies and keepalive pings to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One reply per frame so clients can decode each independently
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
	"github.com/wricardo/uno-server/game/session"
)

func newTestHub() *Hub {
	return NewHub(service.NewGameService(session.NewManager(), nil))
}

func TestNewHub(t *testing.T) {
	hub := newTestHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.players == nil {
		t.Error("Hub players map is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHubRegisterClient(t *testing.T) {
	hub := newTestHub()
	client := &Client{hub: hub, playerID: "alice", send: make(chan []byte, 256)}

	hub.registerClient(client)

	if !hub.players["alice"][client] {
		t.Error("Client was not registered for player")
	}
	if len(hub.players["alice"]) != 1 {
		t.Errorf("Expected 1 connection, got %d", len(hub.players["alice"]))
	}
}

func TestHubUnregisterClient(t *testing.T) {
	hub := newTestHub()
	client := &Client{hub: hub, playerID: "alice", send: make(chan []byte, 256)}

	hub.registerClient(client)
	hub.unregisterClient(client)

	if _, exists := hub.players["alice"]; exists {
		t.Error("Player should have been cleaned up after last connection unregistered")
	}
	if _, ok := <-client.send; ok {
		t.Error("Expected send channel to be closed")
	}

	// Unregistering twice is harmless.
	hub.unregisterClient(client)
}

func TestHubMultipleConnectionsPerPlayer(t *testing.T) {
	hub := newTestHub()
	c1 := &Client{hub: hub, playerID: "alice", send: make(chan []byte, 256)}
	c2 := &Client{hub: hub, playerID: "alice", send: make(chan []byte, 256)}

	hub.registerClient(c1)
	hub.registerClient(c2)
	if len(hub.players["alice"]) != 2 {
		t.Errorf("Expected 2 connections, got %d", len(hub.players["alice"]))
	}

	hub.unregisterClient(c1)
	if len(hub.players["alice"]) != 1 || !hub.players["alice"][c2] {
		t.Error("Expected only the second connection to remain")
	}
}

func TestHubDispatch(t *testing.T) {
	hub := newTestHub()
	ctx := context.Background()

	reply := hub.Dispatch(ctx, "alice", Command{ID: "1", Action: "create", Name: "Friends Night"})
	if !reply.OK {
		t.Fatalf("create failed: %+v", reply)
	}
	created, ok := reply.Result.(*service.CommandResult)
	if !ok {
		t.Fatalf("Expected *service.CommandResult, got %T", reply.Result)
	}
	sessionID := created.Session.ID
	if created.Session.CreatorID != "alice" {
		t.Errorf("Expected creator alice, got %s", created.Session.CreatorID)
	}

	if r := hub.Dispatch(ctx, "bob", Command{ID: "2", Action: "join", SessionID: sessionID}); !r.OK {
		t.Fatalf("join failed: %+v", r)
	}
	for _, p := range []string{"alice", "bob"} {
		if r := hub.Dispatch(ctx, p, Command{ID: "3", Action: "ready", SessionID: sessionID}); !r.OK {
			t.Fatalf("ready %s failed: %+v", p, r)
		}
	}

	notReady := false
	if r := hub.Dispatch(ctx, "bob", Command{ID: "4", Action: "ready", SessionID: sessionID, Ready: &notReady}); !r.OK {
		t.Fatalf("unready failed: %+v", r)
	}
	r := hub.Dispatch(ctx, "alice", Command{ID: "5", Action: "start", SessionID: sessionID})
	if r.OK || r.Code != engine.CodeRosterNotReady {
		t.Fatalf("Expected ROSTER_NOT_READY, got %+v", r)
	}

	hub.Dispatch(ctx, "bob", Command{ID: "6", Action: "ready", SessionID: sessionID})
	if r := hub.Dispatch(ctx, "alice", Command{ID: "7", Action: "start", SessionID: sessionID}); !r.OK {
		t.Fatalf("start failed: %+v", r)
	}

	r = hub.Dispatch(ctx, "bob", Command{ID: "8", Action: "hand", SessionID: sessionID})
	hand, ok := r.Result.([]service.CardInfo)
	if !r.OK || !ok || len(hand) != engine.HandSize {
		t.Fatalf("Expected bob's %d cards, got %+v", engine.HandSize, r)
	}
	if r.ID != "8" {
		t.Errorf("Expected reply id 8, got %s", r.ID)
	}
}

func TestHubDispatchErrors(t *testing.T) {
	hub := newTestHub()
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  Command
		code engine.Code
	}{
		{"missing action", Command{ID: "a"}, engine.CodeInvalidInput},
		{"unknown action", Command{ID: "b", Action: "shuffle"}, engine.CodeInvalidInput},
		{"unknown session", Command{ID: "c", Action: "join", SessionID: "nope"}, engine.CodeNotFound},
		{"bad name", Command{ID: "d", Action: "create", Name: "x"}, engine.CodeInvalidInput},
		{"unknown preset", Command{ID: "e", Action: "preset", Name: "missing"}, engine.CodeNotFound},
		{"bad list state", Command{ID: "f", Action: "list", State: "paused"}, engine.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := hub.Dispatch(ctx, "alice", tt.cmd)
			if r.OK {
				t.Fatalf("Expected failure, got %+v", r)
			}
			if r.Code != tt.code {
				t.Errorf("Expected code %s, got %s (%s)", tt.code, r.Code, r.Error)
			}
			if r.ID != tt.cmd.ID {
				t.Errorf("Expected reply id %s, got %s", tt.cmd.ID, r.ID)
			}
		})
	}

	r := hub.Dispatch(ctx, "alice", Command{ID: "g", Action: "create", Name: "x"})
	if len(r.Violations) != 1 || r.Violations[0].Code != engine.ViolationNameTooShort {
		t.Errorf("Expected NAME_TOO_SHORT violation, got %+v", r.Violations)
	}
}

func startTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("player_id"))
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return server
}

func dial(t *testing.T, server *httptest.Server, playerID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?player_id=" + playerID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame string) map[string]interface{} {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read reply: %v", err)
	}
	var reply map[string]interface{}
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("Failed to decode reply %s: %v", data, err)
	}
	return reply
}

func TestHubWebSocketRoundTrip(t *testing.T) {
	hub := newTestHub()
	server := startTestServer(t, hub)

	alice := dial(t, server, "alice")
	bob := dial(t, server, "bob")

	reply := roundTrip(t, alice, `{"id":"c1","action":"create","name":"Friends Night"}`)
	if reply["id"] != "c1" || reply["ok"] != true {
		t.Fatalf("Unexpected create reply: %v", reply)
	}
	result := reply["result"].(map[string]interface{})
	sess := result["session"].(map[string]interface{})
	sessionID := sess["id"].(string)

	reply = roundTrip(t, bob, `{"id":"j1","action":"join","session_id":"`+sessionID+`"}`)
	if reply["ok"] != true {
		t.Fatalf("Unexpected join reply: %v", reply)
	}

	// Alice gets nothing from bob's join.
	alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := alice.ReadMessage(); err == nil {
		t.Errorf("Expected no push to alice, got %s", data)
	}
}

func TestHubWebSocketMalformedFrame(t *testing.T) {
	hub := newTestHub()
	server := startTestServer(t, hub)
	conn := dial(t, server, "alice")

	reply := roundTrip(t, conn, `{not json`)
	if reply["ok"] == true || reply["code"] != string(engine.CodeInvalidInput) {
		t.Fatalf("Expected INVALID_INPUT reply, got %v", reply)
	}

	// The connection stays usable.
	reply = roundTrip(t, conn, `{"id":"p","action":"presets"}`)
	if reply["ok"] != true {
		t.Fatalf("Expected presets to succeed, got %v", reply)
	}
}

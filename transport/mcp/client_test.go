package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wricardo/uno-server/api"
	"github.com/wricardo/uno-server/auth"
	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
	"github.com/wricardo/uno-server/game/session"
)

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	client := NewClient(baseURL + "/")

	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.baseURL != baseURL {
		t.Errorf("Expected baseURL %s, got %s", baseURL, client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.mcpServer == nil {
		t.Error("Expected MCP server to be initialized")
	}
	if client.token != "" {
		t.Error("Expected no token by default")
	}
}

func TestClient_apiCall(t *testing.T) {
	var gotPlayer, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPlayer = r.Header.Get(auth.PlayerHeader)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "test-session"})
	}))
	defer server.Close()

	ctx := context.Background()

	client := NewClient(server.URL)
	var response map[string]string
	if err := client.apiCall(ctx, "GET", "/api/sessions/x", "alice", nil, &response); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if response["id"] != "test-session" {
		t.Errorf("Expected id test-session, got %v", response["id"])
	}
	if gotPlayer != "alice" || gotAuth != "" {
		t.Errorf("Expected player header only, got player=%q auth=%q", gotPlayer, gotAuth)
	}

	tokenClient := NewClient(server.URL, WithBearerToken("tok"))
	if err := tokenClient.apiCall(ctx, "GET", "/api/sessions/x", "alice", nil, nil); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if gotAuth != "Bearer tok" || gotPlayer != "" {
		t.Errorf("Expected bearer token only, got player=%q auth=%q", gotPlayer, gotAuth)
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	if err := client.apiCall(context.Background(), "GET", "/api", "", nil, nil); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	t.Run("plain body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Internal Server Error"))
		}))
		defer server.Close()

		err := NewClient(server.URL).apiCall(context.Background(), "GET", "/api", "", nil, nil)
		if err == nil || !strings.Contains(err.Error(), "API error") {
			t.Errorf("Expected 'API error', got: %v", err)
		}
	})

	t.Run("domain error with violations", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": "invalid session parameters",
				"code":  "INVALID_INPUT",
				"violations": []map[string]string{
					{"code": "NAME_TOO_SHORT", "message": "name must be at least 3 characters"},
				},
			})
		}))
		defer server.Close()

		err := NewClient(server.URL).apiCall(context.Background(), "POST", "/api/sessions", "alice", map[string]string{}, nil)
		if err == nil {
			t.Fatal("Expected error for HTTP 400 response")
		}
		for _, want := range []string{"INVALID_INPUT", "invalid session parameters", "NAME_TOO_SHORT"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("Expected %q in error, got: %v", want, err)
			}
		}
	})
}

func TestClient_createSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/sessions" {
			t.Errorf("Expected POST /api/sessions, got %s %s", r.Method, r.URL.Path)
		}
		var req service.CreateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Name != "Friends Night" || req.Preset != "stacking" {
			t.Errorf("Unexpected request body %+v", req)
		}

		resp := service.CommandResult{
			Message: "Session created",
			Session: &service.SessionInfo{
				ID:           "test-session-123",
				Name:         req.Name,
				State:        engine.StateWaiting,
				CreatorID:    r.Header.Get(auth.PlayerHeader),
				PlayersCount: 1,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleCreateSession(context.Background(), toolRequest("create_session", map[string]interface{}{
		"player_id": "alice",
		"name":      "Friends Night",
		"preset":    "stacking",
	}))
	if err != nil {
		t.Fatalf("createSession failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"test-session-123", "Creator: alice", "State: waiting"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}
}

func TestClient_missingSessionID(t *testing.T) {
	client := NewClient("http://localhost:8080")

	result, err := client.handleGetSession(context.Background(), toolRequest("get_session", nil))
	if err != nil {
		t.Fatalf("handleGetSession failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected a tool error without session_id")
	}
}

func TestFormatSessionInfo(t *testing.T) {
	current := "bob"
	info := &service.SessionInfo{
		ID:              "s1",
		Name:            "Friends Night",
		State:           engine.StateInProgress,
		CreatorID:       "alice",
		CurrentPlayerID: &current,
		PlayersCount:    3,
		TopCard:         &service.CardInfo{Label: "Blue 5"},
	}

	result := formatSessionInfo(info)

	expectedFields := []string{
		"Session: s1",
		"Name: Friends Night",
		"Players: 3",
		"Current player: bob",
		"Top card: Blue 5",
	}
	for _, field := range expectedFields {
		if !strings.Contains(result, field) {
			t.Errorf("Expected field '%s' in formatted output, got: %s", field, result)
		}
	}
}

func TestClient_handleGameInstructions(t *testing.T) {
	client := NewClient("http://localhost:8080")

	result, err := client.handleGameInstructions(context.Background(), toolRequest("game_instructions", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleGameInstructions failed: %v", err)
	}

	text := resultText(t, result)
	for _, content := range []string{"SESSION LIFECYCLE:", "THE DECK (108 cards):", "ERRORS:"} {
		if !strings.Contains(text, content) {
			t.Errorf("Expected '%s' in instructions, got: %s", content, text)
		}
	}
}

// Drives every tool against the real REST server.
func TestClient_FullGameThroughTools(t *testing.T) {
	apiServer := api.NewServer(service.NewGameService(session.NewManager(), nil), nil, nil)
	server := httptest.NewServer(apiServer)
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	call := func(handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (string, bool) {
		t.Helper()
		result, err := handler(ctx, toolRequest("tool", args))
		if err != nil {
			t.Fatalf("tool call failed: %v", err)
		}
		return resultText(t, result), result.IsError
	}

	text, isErr := call(client.handleCreateSession, map[string]interface{}{"player_id": "alice", "name": "Friends Night"})
	if isErr {
		t.Fatalf("create failed: %s", text)
	}
	var sessionID string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Session: ") {
			sessionID = strings.TrimPrefix(line, "Session: ")
		}
	}
	if sessionID == "" {
		t.Fatalf("No session ID in %s", text)
	}

	as := func(player string) map[string]interface{} {
		return map[string]interface{}{"session_id": sessionID, "player_id": player}
	}

	if text, isErr := call(client.handleCommand("join"), as("bob")); isErr {
		t.Fatalf("join failed: %s", text)
	}
	if text, isErr := call(client.handleCommand("start"), as("alice")); !isErr || !strings.Contains(text, "ROSTER_NOT_READY") {
		t.Errorf("Expected ROSTER_NOT_READY, got: %s", text)
	}
	for _, p := range []string{"alice", "bob"} {
		if text, isErr := call(client.handleSetReady, as(p)); isErr {
			t.Fatalf("ready %s failed: %s", p, text)
		}
	}
	if text, isErr := call(client.handleCommand("start"), as("alice")); isErr {
		t.Fatalf("start failed: %s", text)
	}

	if text, _ := call(client.handleCurrentPlayer, as("")); !strings.Contains(text, "Current player: alice") {
		t.Errorf("Expected alice to hold the first turn, got: %s", text)
	}
	if text, _ := call(client.handleTopCard, as("")); !strings.Contains(text, "Top card: ") {
		t.Errorf("Expected a top card, got: %s", text)
	}
	if text, _ := call(client.handleMyHand, as("bob")); !strings.Contains(text, "Your hand (7 cards)") {
		t.Errorf("Expected seven cards, got: %s", text)
	}
	if text, _ := call(client.handleListPlayers, as("")); !strings.Contains(text, "1. alice") || !strings.Contains(text, "2. bob") {
		t.Errorf("Expected join order, got: %s", text)
	}
	if text, _ := call(client.handleScores, as("")); !strings.Contains(text, "- bob: 0") {
		t.Errorf("Expected zero scores, got: %s", text)
	}

	if text, isErr := call(client.handleCommand("leave"), as("alice")); isErr {
		t.Fatalf("leave failed: %s", text)
	}
	if text, _ := call(client.handleCurrentPlayer, as("")); !strings.Contains(text, "Current player: bob") {
		t.Errorf("Expected the turn to pass to bob, got: %s", text)
	}
	if text, isErr := call(client.handleCommand("end"), as("bob")); !isErr || !strings.Contains(text, "FORBIDDEN") {
		t.Errorf("Expected FORBIDDEN for non-creator end, got: %s", text)
	}

	if text, _ := call(client.handleListSessions, map[string]interface{}{"state": "in_progress"}); !strings.Contains(text, sessionID) {
		t.Errorf("Expected session in listing, got: %s", text)
	}
}

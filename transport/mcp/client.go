package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/uno-server/auth"
	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// Option configures a Client
type Option func(*Client)

// WithBearerToken sends token on every call instead of the per-tool
// player_id header. Use it when the API requires JWT authentication.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"UNO Session Server",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`UNO Session Server - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Sessions hold 2 to 4 players. The creator is the first member. Everyone
marks ready, then the creator starts the game, which deals seven cards each
and turns one card face up. Commands act on behalf of player_id.

AVAILABLE TOOLS:
- create_session, list_sessions, get_session
- join_session, set_ready, start_session, leave_session, end_session
- list_players, current_player, top_card, scores, my_hand
- list_presets, get_preset
- game_instructions`),
	)

	// Register all tools
	c.registerTools()
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func sessionTool(name, description string, withPlayer bool) mcp.Tool {
	props := map[string]interface{}{
		"session_id": stringProp("Session ID"),
	}
	required := []string{"session_id"}
	if withPlayer {
		props["player_id"] = stringProp("Player acting on the session")
		required = append(required, "player_id")
	}
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new session. The creating player joins it automatically.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player_id": stringProp("Player creating the session"),
				"name":      stringProp("Session name, 3 to 50 characters"),
				"rules":     stringProp("House rules text, at most 500 characters (optional)"),
				"preset":    stringProp("House-rule preset ID used when rules is empty (optional)"),
			},
			Required: []string{"player_id", "name"},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List sessions, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"state": map[string]interface{}{
					"type":        "string",
					"enum":        []string{string(engine.StateWaiting), string(engine.StateInProgress), string(engine.StateFinished)},
					"description": "Only sessions in this state (optional)",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of sessions (optional)",
				},
			},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(sessionTool("get_session", "Get details of a specific session", false), c.handleGetSession)

	// Lifecycle commands
	c.mcpServer.AddTool(sessionTool("join_session", "Join a waiting session", true), c.handleCommand("join"))

	readyTool := sessionTool("set_ready", "Mark the player ready (or not ready) in a waiting session", true)
	readyTool.InputSchema.Properties["ready"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Ready flag (default true)",
	}
	c.mcpServer.AddTool(readyTool, c.handleSetReady)

	c.mcpServer.AddTool(sessionTool("start_session", "Start the game and deal cards. Creator only; everyone must be ready.", true), c.handleCommand("start"))
	c.mcpServer.AddTool(sessionTool("leave_session", "Leave a session. The turn passes on if it was the player's turn.", true), c.handleCommand("leave"))
	c.mcpServer.AddTool(sessionTool("end_session", "End a session. Creator only.", true), c.handleCommand("end"))

	// Queries
	c.mcpServer.AddTool(sessionTool("list_players", "List the roster in turn order", false), c.handleListPlayers)
	c.mcpServer.AddTool(sessionTool("current_player", "Show whose turn it is", false), c.handleCurrentPlayer)
	c.mcpServer.AddTool(sessionTool("top_card", "Show the face-up card on the discard pile", false), c.handleTopCard)
	c.mcpServer.AddTool(sessionTool("scores", "Show player scores", false), c.handleScores)
	c.mcpServer.AddTool(sessionTool("my_hand", "Show the player's own hand", true), c.handleMyHand)

	// House rules
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_presets",
		Description: "List available house-rule presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListPresets)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_preset",
		Description: "Show one house-rule preset",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Preset ID"),
			},
			Required: []string{"name"},
		},
	}, c.handleGetPreset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Explain how sessions work and how to use these tools",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

type apiError struct {
	Error      string             `json:"error"`
	Code       string             `json:"code"`
	Violations []engine.Violation `json:"violations"`
}

func (c *Client) apiCall(ctx context.Context, method, path, playerID string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if playerID != "" {
		req.Header.Set(auth.PlayerHeader, playerID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp apiError
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error == "" {
			return fmt.Errorf("API error: %d", resp.StatusCode)
		}
		msg := errResp.Error
		if errResp.Code != "" {
			msg = fmt.Sprintf("%s: %s", errResp.Code, msg)
		}
		for _, v := range errResp.Violations {
			msg += fmt.Sprintf("\n- %s: %s", v.Code, v.Message)
		}
		return fmt.Errorf("%s", msg)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// arguments returns the tool arguments, tolerating a missing object
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func sessionPath(args map[string]interface{}, suffix string) (string, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix, nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	playerID, _ := args["player_id"].(string)

	body := service.CreateRequest{}
	body.Name, _ = args["name"].(string)
	body.Rules, _ = args["rules"].(string)
	body.Preset, _ = args["preset"].(string)

	var result service.CommandResult
	if err := c.apiCall(ctx, "POST", "/api/sessions", playerID, body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatCommandResult(&result)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	query := url.Values{}
	if state, _ := args["state"].(string); state != "" {
		query.Set("state", state)
	}
	if limit, ok := args["limit"].(float64); ok && limit > 0 {
		query.Set("limit", strconv.Itoa(int(limit)))
	}
	path := "/api/sessions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var response struct {
		Total    int                   `json:"total"`
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", path, "", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Sessions (%d):\n\n", response.Total)
	for _, s := range response.Sessions {
		result += fmt.Sprintf("- %s %q [%s] players=%d created=%s\n",
			s.ID, s.Name, s.State, s.PlayersCount, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", path, "", nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

// handleCommand proxies a body-less lifecycle command
func (c *Client) handleCommand(action string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(request)
		path, err := sessionPath(args, "/"+action)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		playerID, _ := args["player_id"].(string)

		var result service.CommandResult
		if err := c.apiCall(ctx, "POST", path, playerID, nil, &result); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatCommandResult(&result)), nil
	}
}

func (c *Client) handleSetReady(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/ready")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	playerID, _ := args["player_id"].(string)

	ready := true
	if v, ok := args["ready"].(bool); ok {
		ready = v
	}

	var result service.CommandResult
	if err := c.apiCall(ctx, "POST", path, playerID, map[string]bool{"ready": ready}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatCommandResult(&result)), nil
}

func (c *Client) handleListPlayers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/players")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var players []service.PlayerInfo
	if err := c.apiCall(ctx, "GET", path, "", nil, &players); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(players) == 0 {
		return mcp.NewToolResultText("No players"), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Players (%d):\n", len(players))
	for i, p := range players {
		ready := "not ready"
		if p.Ready {
			ready = "ready"
		}
		fmt.Fprintf(&b, "%d. %s (%s, score %d)\n", i+1, p.PlayerID, ready, p.Score)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleCurrentPlayer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/current-player")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var current service.CurrentPlayer
	if err := c.apiCall(ctx, "GET", path, "", nil, &current); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if current.PlayerID == nil {
		return mcp.NewToolResultText(fmt.Sprintf("No current player (session is %s)", current.State)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Current player: %s", *current.PlayerID)), nil
}

func (c *Client) handleTopCard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/top-card")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		TopCard *service.CardInfo `json:"top_card"`
	}
	if err := c.apiCall(ctx, "GET", path, "", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if response.TopCard == nil {
		return mcp.NewToolResultText("No card on the discard pile yet"), nil
	}
	return mcp.NewToolResultText("Top card: " + response.TopCard.Label), nil
}

func (c *Client) handleScores(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/scores")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		Scores map[string]int `json:"scores"`
	}
	if err := c.apiCall(ctx, "GET", path, "", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ids := make([]string, 0, len(response.Scores))
	for id := range response.Scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("Scores:\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "- %s: %d\n", id, response.Scores[id])
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleMyHand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/hand")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	playerID, _ := args["player_id"].(string)

	var response struct {
		Cards []service.CardInfo `json:"cards"`
	}
	if err := c.apiCall(ctx, "GET", path, playerID, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(response.Cards) == 0 {
		return mcp.NewToolResultText("Your hand is empty"), nil
	}
	labels := make([]string, len(response.Cards))
	for i, card := range response.Cards {
		labels[i] = fmt.Sprintf("#%d %s", card.ID, card.Label)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Your hand (%d cards):\n%s", len(labels), strings.Join(labels, "\n"))), nil
}

func (c *Client) handleListPresets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var presets []service.PresetInfo
	if err := c.apiCall(ctx, "GET", "/api/presets", "", nil, &presets); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := "Available Presets:\n\n"
	for _, p := range presets {
		result += fmt.Sprintf("- %s: %s\n", p.PresetID, p.Name)
		if p.Description != "" {
			result += fmt.Sprintf("  %s\n", p.Description)
		}
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetPreset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := arguments(request)["name"].(string)
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	var preset service.Preset
	if err := c.apiCall(ctx, "GET", "/api/presets/"+url.PathEscape(name), "", nil, &preset); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\nRules: %s\n", preset.Name, preset.Description, preset.Rules)
	if len(preset.Options) > 0 {
		opts := make([]string, 0, len(preset.Options))
		for opt, on := range preset.Options {
			if on {
				opts = append(opts, opt)
			}
		}
		sort.Strings(opts)
		fmt.Fprintf(&b, "Options: %s\n", strings.Join(opts, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `UNO Session Server - Instructions

SESSION LIFECYCLE:
1. create_session: you become the creator and first player. The session is waiting.
2. join_session: other players join while the session is waiting (2 to 4 players).
3. set_ready: every player marks ready. Joining, leaving or un-readying changes who is ready.
4. start_session: the creator starts once everyone is ready. Each player gets 7 cards,
   one card is turned face up on the discard pile and the first player to join takes the first turn.
5. leave_session: leaving mid-game passes the turn on if it was yours. Your cards stay where they are.
6. end_session: the creator finishes the game. A finished session accepts no more commands.

THE DECK (108 cards):
- Numbers 0-9 in red, blue, green and yellow (one 0 and two of 1-9 per color)
- Skip, Reverse and Draw Two, two per color
- Wild and Wild Draw Four, four each

READING STATE:
- list_players shows turn order, ready flags and scores.
- current_player, top_card and scores are public.
- my_hand shows only your own cards.

ERRORS:
Failures carry a code such as NOT_FOUND, NOT_MEMBER, ALREADY_MEMBER, INVALID_STATE,
FORBIDDEN or ROSTER_NOT_READY. CONFLICT means the server was busy: retry the command.`

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\nName: %s\nState: %s\nCreator: %s\nPlayers: %d\n",
		session.ID, session.Name, session.State, session.CreatorID, session.PlayersCount)
	if session.CurrentPlayerID != nil {
		fmt.Fprintf(&b, "Current player: %s\n", *session.CurrentPlayerID)
	}
	if session.TopCard != nil {
		fmt.Fprintf(&b, "Top card: %s\n", session.TopCard.Label)
	}
	if session.Rules != "" {
		fmt.Fprintf(&b, "Rules: %s\n", session.Rules)
	}
	return b.String()
}

func formatCommandResult(result *service.CommandResult) string {
	if result.Session == nil {
		return result.Message
	}
	return result.Message + "\n\n" + formatSessionInfo(result.Session)
}

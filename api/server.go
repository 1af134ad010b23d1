package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/wricardo/uno-server/auth"
	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
	"github.com/wricardo/uno-server/transport/websocket"
)

// CodeUnauthenticated marks requests without a resolvable player.
const CodeUnauthenticated engine.Code = "UNAUTHENTICATED"

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	auth    auth.Authenticator
	router  *mux.Router
}

// NewServer creates a new API server. A nil authenticator trusts the
// X-Player-ID header.
func NewServer(gameService service.GameService, hub *websocket.Hub, authenticator auth.Authenticator) *Server {
	if authenticator == nil {
		authenticator = auth.HeaderAuthenticator{}
	}
	s := &Server{
		service: gameService,
		hub:     hub,
		auth:    authenticator,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// commandFunc runs one lifecycle command on behalf of playerID
type commandFunc func(ctx context.Context, sessionID, playerID string, r *http.Request) (*service.CommandResult, error)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")

	// Lifecycle commands
	api.HandleFunc("/sessions/{id}/join", s.command("join", s.join)).Methods("POST")
	api.HandleFunc("/sessions/{id}/ready", s.command("ready", s.ready)).Methods("POST")
	api.HandleFunc("/sessions/{id}/start", s.command("start", s.start)).Methods("POST")
	api.HandleFunc("/sessions/{id}/leave", s.command("leave", s.leave)).Methods("POST")
	api.HandleFunc("/sessions/{id}/end", s.command("end", s.end)).Methods("POST")

	// Session queries
	api.HandleFunc("/sessions/{id}/players", s.handleGetPlayers).Methods("GET")
	api.HandleFunc("/sessions/{id}/current-player", s.handleGetCurrentPlayer).Methods("GET")
	api.HandleFunc("/sessions/{id}/top-card", s.handleGetTopCard).Methods("GET")
	api.HandleFunc("/sessions/{id}/scores", s.handleGetScores).Methods("GET")
	api.HandleFunc("/sessions/{id}/hand", s.handleGetHand).Methods("GET")

	// House rules
	api.HandleFunc("/presets", s.handleListPresets).Methods("GET")
	api.HandleFunc("/presets/{name}", s.handleGetPreset).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error      string             `json:"error"`
	Code       engine.Code        `json:"code"`
	Violations []engine.Violation `json:"violations,omitempty"`
}

func respondError(w http.ResponseWriter, status int, code engine.Code, message string) {
	respondJSON(w, status, errorBody{Error: message, Code: code})
}

// respondServiceError translates a service error into its HTTP form
func respondServiceError(w http.ResponseWriter, err error) {
	var domainErr *engine.Error
	if !errors.As(err, &domainErr) {
		log.Printf("[API] unexpected error: %v", err)
		respondError(w, http.StatusInternalServerError, websocket.CodeInternal, "internal error")
		return
	}

	status := statusFor(domainErr.Code)
	if domainErr.Code.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s: %v", domainErr.Code, err)
	}
	respondJSON(w, status, errorBody{
		Error:      domainErr.Error(),
		Code:       domainErr.Code,
		Violations: domainErr.Violations,
	})
}

func statusFor(code engine.Code) int {
	switch code {
	case engine.CodeNotFound:
		return http.StatusNotFound
	case engine.CodeNotMember, engine.CodeForbidden:
		return http.StatusForbidden
	case engine.CodeAlreadyMember, engine.CodeInvalidState, engine.CodeRosterNotReady, engine.CodeAlreadyFinished:
		return http.StatusConflict
	case engine.CodeInvalidInput:
		return http.StatusBadRequest
	case engine.CodeConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// playerID resolves the acting player or writes a 401
func (s *Server) playerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := s.auth.Authenticate(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
		return "", false
	}
	return id, true
}

// decodeBody decodes an optional JSON body. An empty body leaves target
// untouched.
func decodeBody(r *http.Request, target interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	playerID, ok := s.playerID(w, r)
	if !ok {
		return
	}

	var req service.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, engine.CodeInvalidInput, "Invalid request body")
		return
	}

	result, err := s.service.CreateSession(r.Context(), req, playerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("[CMD] session=%s player=%s action=create", result.Session.ID, playerID)
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := service.ListOptions{State: engine.State(query.Get("state"))}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, engine.CodeInvalidInput, "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}

	sessions, err := s.service.ListSessions(r.Context(), opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// Command Handlers

// command wraps a lifecycle command with authentication, error mapping and
// a compact log line
func (s *Server) command(action string, run commandFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, ok := s.playerID(w, r)
		if !ok {
			return
		}
		sessionID := mux.Vars(r)["id"]

		result, err := run(r.Context(), sessionID, playerID, r)
		status := "OK"
		if err != nil {
			status = string(engine.CodeOf(err))
		}
		log.Printf("[CMD] session=%s player=%s action=%s status=%s", sessionID, playerID, action, status)

		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func (s *Server) join(ctx context.Context, sessionID, playerID string, r *http.Request) (*service.CommandResult, error) {
	return s.service.JoinSession(ctx, sessionID, playerID)
}

func (s *Server) ready(ctx context.Context, sessionID, playerID string, r *http.Request) (*service.CommandResult, error) {
	var req struct {
		Ready *bool `json:"ready"`
	}
	if err := decodeBody(r, &req); err != nil {
		return nil, engine.Errorf(engine.CodeInvalidInput, "Invalid request body")
	}
	ready := true
	if req.Ready != nil {
		ready = *req.Ready
	}
	return s.service.SetReady(ctx, sessionID, playerID, ready)
}

func (s *Server) start(ctx context.Context, sessionID, playerID string, r *http.Request) (*service.CommandResult, error) {
	return s.service.StartSession(ctx, sessionID, playerID)
}

func (s *Server) leave(ctx context.Context, sessionID, playerID string, r *http.Request) (*service.CommandResult, error) {
	return s.service.LeaveSession(ctx, sessionID, playerID)
}

func (s *Server) end(ctx context.Context, sessionID, playerID string, r *http.Request) (*service.CommandResult, error) {
	return s.service.EndSession(ctx, sessionID, playerID)
}

// Query Handlers

func (s *Server) handleGetPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.service.GetPlayers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, players)
}

func (s *Server) handleGetCurrentPlayer(w http.ResponseWriter, r *http.Request) {
	current, err := s.service.GetCurrentPlayer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, current)
}

func (s *Server) handleGetTopCard(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	card, err := s.service.GetTopCard(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"top_card":   card,
	})
}

func (s *Server) handleGetScores(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	scores, err := s.service.GetScores(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"scores":     scores,
	})
}

func (s *Server) handleGetHand(w http.ResponseWriter, r *http.Request) {
	playerID, ok := s.playerID(w, r)
	if !ok {
		return
	}
	sessionID := mux.Vars(r)["id"]

	hand, err := s.service.GetHand(r.Context(), sessionID, playerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"player_id":  playerID,
		"cards":      hand,
	})
}

// Preset Handlers

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.service.ListPresets(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, presets)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := s.service.GetPreset(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, preset)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusServiceUnavailable, websocket.CodeInternal, "WebSocket is not available")
		return
	}
	playerID, ok := s.playerID(w, r)
	if !ok {
		return
	}

	s.hub.ServeWS(w, r, playerID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

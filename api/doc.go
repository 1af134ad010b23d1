// Package api provides HTTP REST API handlers for the UNO session server.
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create a session; the caller becomes creator and first member
//   - GET /api/sessions - List sessions (?state=waiting&limit=10)
//   - GET /api/sessions/{id} - Get session summary
//
// Lifecycle Commands (authenticated):
//   - POST /api/sessions/{id}/join
//   - POST /api/sessions/{id}/ready - Body {"ready": false} clears the flag; default is true
//   - POST /api/sessions/{id}/start - Creator only; deals seven cards each
//   - POST /api/sessions/{id}/leave
//   - POST /api/sessions/{id}/end - Creator only
//
// Queries:
//   - GET /api/sessions/{id}/players
//   - GET /api/sessions/{id}/current-player
//   - GET /api/sessions/{id}/top-card
//   - GET /api/sessions/{id}/scores
//   - GET /api/sessions/{id}/hand - Caller's own hand only (authenticated)
//
// House Rules:
//   - GET /api/presets
//   - GET /api/presets/{name}
//
// Other:
//   - GET /healthz
//   - GET /ws - WebSocket command channel (authenticated)
//
// Authentication:
//
// The acting player comes from the configured auth.Authenticator: a bearer
// JWT when a secret is configured, otherwise the X-Player-ID header.
//
// Errors:
//
// Failures return {"error": "...", "code": "NOT_FOUND", "violations": [...]}.
// Codes map to 404, 403, 409, 400, 503 (with Retry-After) and 500; a missing
// player is 401.
package api

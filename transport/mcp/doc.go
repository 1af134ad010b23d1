// Package mcp exposes the UNO session server to AI agents over the Model
// Context Protocol.
//
// The Client is a thin proxy: every tool call becomes one REST request
// against the API server, so MCP agents see exactly the same rules and
// errors as HTTP clients.
//
// MCP Tools:
//   - create_session, list_sessions, get_session
//   - join_session, set_ready, start_session, leave_session, end_session
//   - list_players, current_player, top_card, scores, my_hand
//   - list_presets, get_preset
//   - game_instructions
//
// Identity:
//
// Commands take a player_id argument sent as the X-Player-ID header. When
// the API requires JWTs, build the client with WithBearerToken and every
// call acts as the token's subject instead.
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: POST /mcp on the main server, handled by HandleMessage
package mcp

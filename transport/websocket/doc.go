// Package websocket provides a command channel over WebSocket for the UNO
// session server.
//
// Each connection belongs to one authenticated player. The API layer
// resolves the player before the upgrade and hands the ID to Hub.ServeWS;
// the hub never trusts a player ID sent inside a frame.
//
// Message Protocol:
//
// Every frame from the client is one JSON command and gets exactly one JSON
// reply on the same connection:
//
//	-> {"id": "7", "action": "join", "session_id": "abc1"}
//	<- {"id": "7", "ok": true, "result": {"message": "...", "session": {...}}}
//	<- {"id": "7", "ok": false, "error": "...", "code": "NOT_FOUND"}
//
// Actions mirror the REST surface: create, list, get, join, ready, start,
// leave, end, players, current_player, top_card, scores, hand, presets and
// preset. Commands from one connection run in arrival order. Other
// connections, including other players in the same session, receive
// nothing; clients poll for state.
//
// Usage:
//
//	hub := websocket.NewHub(gameService)
//	go hub.Run(ctx)
//	// inside an HTTP handler, after authentication:
//	hub.ServeWS(w, r, playerID)
package websocket

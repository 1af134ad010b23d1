// Package service provides the business logic layer for the UNO session server.
//
// The service package implements:
//   - The five session lifecycle commands plus session creation
//   - Read-only queries (summary, roster, turn holder, top card, scores, hands)
//   - House-rule preset lookup for new sessions
//   - The storage port every session store implements
//
// Core Interfaces:
//
// GameService is the main service interface used by the HTTP, WebSocket and
// MCP transports. SessionStore is the durable storage port; View is its read
// side. PresetManager supplies named house-rule annotations.
//
// Architecture:
//
// Each command runs as one SessionStore.RunAtomic call. Inside the callback
// the service reads the session snapshot through the View, hands it to the
// pure engine functions and returns the resulting Changeset, which the store
// commits all-or-nothing. The service keeps no state between calls and
// performs no logging; errors are *engine.Error values for the request layer
// to translate.
//
// Usage:
//
//	store := session.NewManager()
//	presets, _ := config.NewManager("presets")
//	svc := service.NewGameService(store, presets)
//
//	res, err := svc.CreateSession(ctx, service.CreateRequest{Name: "Friends Night"}, "alice")
//	if err != nil {
//		return err
//	}
//	_, err = svc.JoinSession(ctx, res.Session.ID, "bob")
//
// Concurrency:
//
// Serialization is the store's job. Two joins racing for the last seat run
// one after the other, so the second observes the full roster and fails with
// an InvalidState error rather than overfilling the session.
package service

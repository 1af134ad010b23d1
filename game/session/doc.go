// Package session provides the in-memory session store for the UNO server.
//
// The session package implements:
//   - service.SessionStore backed by process memory
//   - Per-session serialization of commands
//   - Optional write-through JSON persistence, one file per session
//   - Purging of finished sessions
//
// Core Types:
//
// Manager is the store. Record holds the session row, roster and cards of one
// session. SessionPersistence abstracts where records are written, and
// FilePersistence is the JSON file implementation.
//
// Concurrency:
//
// RunAtomic takes a mutex owned by the target session, so two commands on the
// same session never interleave while commands on different sessions run in
// parallel. Changes are applied to a copy of the record and published only
// after the copy has been persisted, so readers always see a committed state
// and a failed write leaves the previous state in place.
//
// Usage:
//
//	persistence, err := session.NewFilePersistence("sessions")
//	if err != nil {
//		log.Fatal(err)
//	}
//	store := session.NewManagerWithPersistence(persistence)
//	if err := store.LoadPersistedSessions(); err != nil {
//		log.Printf("Warning: %v", err)
//	}
//
//	svc := service.NewGameService(store, presets)
//
// Persistence:
//
// A failed write during a command surfaces as a CONFLICT error so the caller
// may retry. Files are written to a temp name and renamed into place.
package session

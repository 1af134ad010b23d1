// Package engine provides the core rules of the UNO session server.
//
// The engine package implements:
//   - Card taxonomy and the canonical 108-card deck
//   - Fisher-Yates shuffling over a pluggable random source
//   - Roster policy (join capacity, ready gating, turn order)
//   - The session state machine (waiting, in_progress, finished)
//   - Dealing hands and the opening discard when a game starts
//   - Typed errors and tagged input validation
//
// Core Types:
//
// Session, RosterEntry and Card mirror the rows a store persists. Every
// lifecycle function takes a snapshot of those rows and returns a Changeset
// describing the writes the command needs. The engine never touches storage
// itself and holds no state between calls, so callers decide how a snapshot
// is read and how a Changeset is committed.
//
// Usage:
//
//	cs, err := engine.NewSession(id, engine.CreateInput{
//		Name:      "Friends Night",
//		CreatorID: "alice",
//	}, time.Now())
//	if err != nil {
//		return err
//	}
//
//	// later, inside one atomic store unit:
//	cs, err = engine.Start(session, roster, deck, "alice", engine.DefaultSource, time.Now())
//
// Errors:
//
// All failures are *Error values with a Code. The package level sentinels
// (ErrNotFound, ErrInvalidState, ...) match any error of the same code under
// errors.Is. Only CodeConflict is retryable.
//
// Dealing:
//
// Start sorts the roster by join time, shuffles the deck and gives each player
// a contiguous block of seven cards. The next card opens the discard pile and
// the remainder stays in the deck ordered by shuffled position.
package engine

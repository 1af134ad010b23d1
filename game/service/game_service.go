package service

import (
	"context"
	"time"

	"github.com/wricardo/uno-server/game/engine"
)

// GameService defines all session operations exposed to request layers
type GameService interface {
	// Lifecycle commands
	CreateSession(ctx context.Context, req CreateRequest, creatorID string) (*CommandResult, error)
	JoinSession(ctx context.Context, sessionID, playerID string) (*CommandResult, error)
	SetReady(ctx context.Context, sessionID, playerID string, ready bool) (*CommandResult, error)
	StartSession(ctx context.Context, sessionID, requesterID string) (*CommandResult, error)
	LeaveSession(ctx context.Context, sessionID, playerID string) (*CommandResult, error)
	EndSession(ctx context.Context, sessionID, requesterID string) (*CommandResult, error)

	// Queries
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context, opts ListOptions) ([]*SessionInfo, error)
	GetPlayers(ctx context.Context, sessionID string) ([]PlayerInfo, error)
	GetCurrentPlayer(ctx context.Context, sessionID string) (*CurrentPlayer, error)
	GetTopCard(ctx context.Context, sessionID string) (*CardInfo, error)
	GetScores(ctx context.Context, sessionID string) (map[string]int, error)
	GetHand(ctx context.Context, sessionID, playerID string) ([]CardInfo, error)

	// House rules
	ListPresets(ctx context.Context) ([]*PresetInfo, error)
	GetPreset(ctx context.Context, name string) (*Preset, error)
}

// View is the read side of a store, scoped to one atomic unit when handed
// to a RunAtomic callback.
type View interface {
	GetSession(ctx context.Context, id string) (engine.Session, error)
	GetRoster(ctx context.Context, sessionID string) ([]engine.RosterEntry, error)
	GetCards(ctx context.Context, sessionID string, filter engine.CardFilter) ([]engine.Card, error)
}

// AtomicFunc reads through the view and returns the writes to commit. A nil
// changeset commits nothing; an error aborts with no writes.
type AtomicFunc func(ctx context.Context, view View) (*engine.Changeset, error)

// SessionStore is the durable storage port for sessions, rosters and cards
type SessionStore interface {
	View

	ListSessions(ctx context.Context, filter engine.SessionFilter) ([]engine.Session, error)

	// RunAtomic executes fn and applies its changeset as one serializable
	// unit per session. Commit failures surface as engine.ErrConflict.
	RunAtomic(ctx context.Context, sessionID string, fn AtomicFunc) error

	// PurgeFinished deletes finished sessions last updated before olderThan.
	PurgeFinished(ctx context.Context, olderThan time.Time) (int, error)
}

// PresetManager handles house-rule preset loading
type PresetManager interface {
	LoadPreset(name string) (*Preset, error)
	ListPresets() ([]*PresetInfo, error)
	GetDefault() *Preset
}

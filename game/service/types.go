package service

import (
	"time"

	"github.com/wricardo/uno-server/game/engine"
)

// CreateRequest carries the parameters of a create command
type CreateRequest struct {
	Name   string `json:"name"`
	Rules  string `json:"rules,omitempty"`
	Preset string `json:"preset,omitempty"` // fills Rules when Rules is empty
}

// SessionInfo summarizes a session for clients
type SessionInfo struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Rules           string       `json:"rules"`
	State           engine.State `json:"state"`
	CreatorID       string       `json:"creator_id"`
	CurrentPlayerID *string      `json:"current_player_id"`
	PlayersCount    int          `json:"players_count"`
	TopCard         *CardInfo    `json:"top_card"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// CommandResult is returned by every lifecycle command
type CommandResult struct {
	Message string       `json:"message"`
	Session *SessionInfo `json:"session"`
}

// PlayerInfo is one roster entry as seen by clients
type PlayerInfo struct {
	PlayerID string    `json:"player_id"`
	Ready    bool      `json:"ready"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joined_at"`
}

// CurrentPlayer reports the turn holder, if any
type CurrentPlayer struct {
	SessionID string       `json:"session_id"`
	State     engine.State `json:"state"`
	PlayerID  *string      `json:"player_id"`
}

// CardInfo is a card as shown to clients
type CardInfo struct {
	ID    int             `json:"id"`
	Type  engine.CardType `json:"type"`
	Value string          `json:"value"`
	Color engine.Color    `json:"color,omitempty"`
	Label string          `json:"label"`
	Order int             `json:"order"`
}

// ListOptions configures session listing
type ListOptions struct {
	State engine.State `json:"state,omitempty"`
	Limit int          `json:"limit,omitempty"`
}

// Preset is a named house-rule annotation
type Preset struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Rules       string          `json:"rules"`
	Options     map[string]bool `json:"options,omitempty"`
}

// PresetInfo provides information about a preset file
type PresetInfo struct {
	Filename    string `json:"filename"`
	PresetID    string `json:"preset_id"` // identifier to use for session creation
	Name        string `json:"name"`
	Description string `json:"description"`
}

func cardInfo(c engine.Card) CardInfo {
	return CardInfo{
		ID:    c.ID,
		Type:  c.Type,
		Value: c.Value,
		Color: c.Color,
		Label: c.Label(),
		Order: c.Order,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

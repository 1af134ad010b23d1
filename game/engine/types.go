package engine

import (
	"fmt"
	"time"
)

// State is a session lifecycle state.
type State string

const (
	StateWaiting    State = "waiting"
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
)

// Valid reports whether s is one of the known lifecycle states.
func (s State) Valid() bool {
	switch s {
	case StateWaiting, StateInProgress, StateFinished:
		return true
	}
	return false
}

// CardType is the face type of a card.
type CardType string

const (
	CardNumber       CardType = "number"
	CardSkip         CardType = "skip"
	CardReverse      CardType = "reverse"
	CardDrawTwo      CardType = "draw_two"
	CardWild         CardType = "wild"
	CardWildDrawFour CardType = "wild_draw_four"
)

// IsWild reports whether cards of this type carry no color.
func (t CardType) IsWild() bool {
	return t == CardWild || t == CardWildDrawFour
}

// Color of a card. Wild cards have ColorNone.
type Color string

const (
	ColorNone   Color = ""
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
)

// Colors lists the four suit colors in deck generation order.
var Colors = []Color{ColorRed, ColorBlue, ColorGreen, ColorYellow}

// Position is where a card currently lives.
type Position string

const (
	PositionDeck    Position = "deck"
	PositionHand    Position = "hand"
	PositionDiscard Position = "discard"
)

// Session is one game from creation to finish.
type Session struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Rules           string    `json:"rules"`
	State           State     `json:"state"`
	CreatorID       string    `json:"creator_id"`
	CurrentPlayerID string    `json:"current_player_id,omitempty"` // empty when no turn holder
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RosterEntry is a player's membership in a session.
type RosterEntry struct {
	SessionID string    `json:"session_id"`
	PlayerID  string    `json:"player_id"`
	Score     int       `json:"score"`
	Ready     bool      `json:"ready"`
	JoinedAt  time.Time `json:"joined_at"`
	Seq       int       `json:"seq"` // breaks ties between equal join timestamps
}

// Card is one physical card of a session's deck.
type Card struct {
	ID        int      `json:"id"`
	SessionID string   `json:"session_id"`
	Type      CardType `json:"type"`
	Value     string   `json:"value"`
	Color     Color    `json:"color,omitempty"`
	Position  Position `json:"position"`
	OwnerID   string   `json:"owner_id,omitempty"`
	Order     int      `json:"order"`
}

// Label renders the card for humans, e.g. "7 of red" or "wild_draw_four".
func (c Card) Label() string {
	if c.Color == ColorNone {
		return c.Value
	}
	return fmt.Sprintf("%s of %s", c.Value, c.Color)
}

// CardFilter selects cards by position and owner. Zero fields match anything.
type CardFilter struct {
	Position Position
	OwnerID  string
}

// Match reports whether c satisfies the filter.
func (f CardFilter) Match(c Card) bool {
	if f.Position != "" && c.Position != f.Position {
		return false
	}
	if f.OwnerID != "" && c.OwnerID != f.OwnerID {
		return false
	}
	return true
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	State State
	Limit int
}

// Changeset is the full set of writes one command produces. A store applies
// it all-or-nothing.
type Changeset struct {
	Session       *Session
	CreateSession bool
	AddEntries    []RosterEntry
	UpdateEntries []RosterEntry
	RemovePlayers []string
	CreateCards   []Card
	UpdateCards   []Card
}

// Empty reports whether the changeset writes nothing.
func (c *Changeset) Empty() bool {
	return c == nil || (c.Session == nil &&
		len(c.AddEntries) == 0 &&
		len(c.UpdateEntries) == 0 &&
		len(c.RemovePlayers) == 0 &&
		len(c.CreateCards) == 0 &&
		len(c.UpdateCards) == 0)
}

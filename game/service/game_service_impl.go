package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wricardo/uno-server/game/engine"
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	store   SessionStore
	presets PresetManager
	now     func() time.Time
	rng     engine.RandomSource
	newID   func() string
}

// Option customizes a game service
type Option func(*gameServiceImpl)

// WithClock overrides the time source used to stamp writes.
func WithClock(now func() time.Time) Option {
	return func(s *gameServiceImpl) { s.now = now }
}

// WithRandomSource overrides the shuffle source used when starting games.
func WithRandomSource(src engine.RandomSource) Option {
	return func(s *gameServiceImpl) { s.rng = src }
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *gameServiceImpl) { s.newID = gen }
}

// NewGameService creates a new game service instance. presets may be nil.
func NewGameService(store SessionStore, presets PresetManager, opts ...Option) GameService {
	s := &gameServiceImpl{
		store:   store,
		presets: presets,
		now:     func() time.Time { return time.Now().UTC() },
		rng:     engine.DefaultSource,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return engine.Errorf(engine.CodeInvalidInput, "%s is required", kind)
	}
	return nil
}

// CreateSession creates a waiting session with the creator seated
func (s *gameServiceImpl) CreateSession(ctx context.Context, req CreateRequest, creatorID string) (*CommandResult, error) {
	rules := req.Rules
	if strings.TrimSpace(rules) == "" && req.Preset != "" {
		preset, err := s.loadPreset(req.Preset, engine.CodeInvalidInput)
		if err != nil {
			return nil, err
		}
		rules = preset.Rules
	}

	id := s.newID()
	input := engine.CreateInput{Name: req.Name, Rules: rules, CreatorID: creatorID}
	err := s.store.RunAtomic(ctx, id, func(ctx context.Context, view View) (*engine.Changeset, error) {
		if _, err := view.GetSession(ctx, id); err == nil {
			return nil, engine.Errorf(engine.CodeConflict, "session id %s already in use", id)
		} else if !errors.Is(err, engine.ErrNotFound) {
			return nil, err
		}
		return engine.NewSession(id, input, s.now())
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, id, "Session created")
}

// JoinSession seats a player in a waiting session
func (s *gameServiceImpl) JoinSession(ctx context.Context, sessionID, playerID string) (*CommandResult, error) {
	if err := requireID("player id", playerID); err != nil {
		return nil, err
	}
	err := s.store.RunAtomic(ctx, sessionID, func(ctx context.Context, view View) (*engine.Changeset, error) {
		sess, roster, err := readSessionAndRoster(ctx, view, sessionID)
		if err != nil {
			return nil, err
		}
		return engine.Join(sess, roster, playerID, s.now())
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, sessionID, "Joined session")
}

// SetReady updates a member's ready flag
func (s *gameServiceImpl) SetReady(ctx context.Context, sessionID, playerID string, ready bool) (*CommandResult, error) {
	if err := requireID("player id", playerID); err != nil {
		return nil, err
	}
	err := s.store.RunAtomic(ctx, sessionID, func(ctx context.Context, view View) (*engine.Changeset, error) {
		sess, roster, err := readSessionAndRoster(ctx, view, sessionID)
		if err != nil {
			return nil, err
		}
		return engine.SetReady(sess, roster, playerID, ready, s.now())
	})
	if err != nil {
		return nil, err
	}
	msg := "Marked ready"
	if !ready {
		msg = "Marked not ready"
	}
	return s.result(ctx, sessionID, msg)
}

// StartSession deals the deck and moves the session into play
func (s *gameServiceImpl) StartSession(ctx context.Context, sessionID, requesterID string) (*CommandResult, error) {
	if err := requireID("player id", requesterID); err != nil {
		return nil, err
	}
	err := s.store.RunAtomic(ctx, sessionID, func(ctx context.Context, view View) (*engine.Changeset, error) {
		sess, roster, err := readSessionAndRoster(ctx, view, sessionID)
		if err != nil {
			return nil, err
		}
		deck, err := view.GetCards(ctx, sessionID, engine.CardFilter{Position: engine.PositionDeck})
		if err != nil {
			return nil, err
		}
		return engine.Start(sess, roster, deck, requesterID, s.rng, s.now())
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, sessionID, "Game started")
}

// LeaveSession removes a player from a session
func (s *gameServiceImpl) LeaveSession(ctx context.Context, sessionID, playerID string) (*CommandResult, error) {
	if err := requireID("player id", playerID); err != nil {
		return nil, err
	}
	err := s.store.RunAtomic(ctx, sessionID, func(ctx context.Context, view View) (*engine.Changeset, error) {
		sess, roster, err := readSessionAndRoster(ctx, view, sessionID)
		if err != nil {
			return nil, err
		}
		return engine.Leave(sess, roster, playerID, s.now())
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, sessionID, "Left session")
}

// EndSession finishes a session on the creator's request
func (s *gameServiceImpl) EndSession(ctx context.Context, sessionID, requesterID string) (*CommandResult, error) {
	if err := requireID("player id", requesterID); err != nil {
		return nil, err
	}
	err := s.store.RunAtomic(ctx, sessionID, func(ctx context.Context, view View) (*engine.Changeset, error) {
		sess, err := view.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return engine.End(sess, requesterID, s.now())
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, sessionID, "Session ended")
}

func readSessionAndRoster(ctx context.Context, view View, sessionID string) (engine.Session, []engine.RosterEntry, error) {
	sess, err := view.GetSession(ctx, sessionID)
	if err != nil {
		return engine.Session{}, nil, err
	}
	roster, err := view.GetRoster(ctx, sessionID)
	if err != nil {
		return engine.Session{}, nil, err
	}
	return sess, roster, nil
}

func (s *gameServiceImpl) result(ctx context.Context, sessionID, message string) (*CommandResult, error) {
	info, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read session after commit: %w", err)
	}
	return &CommandResult{Message: message, Session: info}, nil
}

// GetSession returns the session summary
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, sess)
}

func (s *gameServiceImpl) summarize(ctx context.Context, sess engine.Session) (*SessionInfo, error) {
	roster, err := s.store.GetRoster(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	top, err := s.topCard(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	info := &SessionInfo{
		ID:           sess.ID,
		Name:         sess.Name,
		Rules:        sess.Rules,
		State:        sess.State,
		CreatorID:    sess.CreatorID,
		PlayersCount: len(roster),
		TopCard:      top,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	}
	// A finished session may keep a stale pointer; clients never see it.
	if sess.State == engine.StateInProgress {
		info.CurrentPlayerID = optional(sess.CurrentPlayerID)
	}
	return info, nil
}

// ListSessions returns session summaries, newest first
func (s *gameServiceImpl) ListSessions(ctx context.Context, opts ListOptions) ([]*SessionInfo, error) {
	if opts.State != "" && !opts.State.Valid() {
		return nil, engine.Errorf(engine.CodeInvalidInput, "unknown state %q", opts.State)
	}
	sessions, err := s.store.ListSessions(ctx, engine.SessionFilter{State: opts.State, Limit: opts.Limit})
	if err != nil {
		return nil, err
	}

	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info, err := s.summarize(ctx, sess)
		if err != nil {
			// Purged between list and summary.
			if errors.Is(err, engine.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, info)
	}
	return result, nil
}

// GetPlayers returns the roster in join order
func (s *gameServiceImpl) GetPlayers(ctx context.Context, sessionID string) ([]PlayerInfo, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	roster, err := s.store.GetRoster(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	players := make([]PlayerInfo, len(roster))
	for i, e := range roster {
		players[i] = PlayerInfo{PlayerID: e.PlayerID, Ready: e.Ready, Score: e.Score, JoinedAt: e.JoinedAt}
	}
	return players, nil
}

// GetCurrentPlayer returns the turn holder, nil player when there is none
func (s *gameServiceImpl) GetCurrentPlayer(ctx context.Context, sessionID string) (*CurrentPlayer, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cp := &CurrentPlayer{SessionID: sess.ID, State: sess.State}
	if sess.State == engine.StateInProgress {
		cp.PlayerID = optional(sess.CurrentPlayerID)
	}
	return cp, nil
}

// GetTopCard returns the top of the discard pile, or nil before the deal
func (s *gameServiceImpl) GetTopCard(ctx context.Context, sessionID string) (*CardInfo, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.topCard(ctx, sessionID)
}

func (s *gameServiceImpl) topCard(ctx context.Context, sessionID string) (*CardInfo, error) {
	discard, err := s.store.GetCards(ctx, sessionID, engine.CardFilter{Position: engine.PositionDiscard})
	if err != nil {
		return nil, err
	}
	if len(discard) == 0 {
		return nil, nil
	}
	top := slices.MaxFunc(discard, func(a, b engine.Card) int { return a.Order - b.Order })
	info := cardInfo(top)
	return &info, nil
}

// GetScores returns each seated player's score
func (s *gameServiceImpl) GetScores(ctx context.Context, sessionID string) (map[string]int, error) {
	players, err := s.GetPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]int, len(players))
	for _, p := range players {
		scores[p.PlayerID] = p.Score
	}
	return scores, nil
}

// GetHand returns a member's hand in deal order
func (s *gameServiceImpl) GetHand(ctx context.Context, sessionID, playerID string) ([]CardInfo, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	roster, err := s.store.GetRoster(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if engine.FindEntry(roster, playerID) < 0 {
		return nil, engine.ErrNotMember
	}

	cards, err := s.store.GetCards(ctx, sessionID, engine.CardFilter{Position: engine.PositionHand, OwnerID: playerID})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(cards, func(a, b engine.Card) int { return a.Order - b.Order })

	hand := make([]CardInfo, len(cards))
	for i, c := range cards {
		hand[i] = cardInfo(c)
	}
	return hand, nil
}

// ListPresets returns the available house-rule presets
func (s *gameServiceImpl) ListPresets(ctx context.Context) ([]*PresetInfo, error) {
	if s.presets == nil {
		return []*PresetInfo{}, nil
	}
	return s.presets.ListPresets()
}

// GetPreset loads one house-rule preset
func (s *gameServiceImpl) GetPreset(ctx context.Context, name string) (*Preset, error) {
	return s.loadPreset(name, engine.CodeNotFound)
}

// loadPreset reports a missing preset with the given code: a bad create
// parameter or a missing resource.
func (s *gameServiceImpl) loadPreset(name string, code engine.Code) (*Preset, error) {
	if s.presets == nil {
		return nil, engine.Errorf(code, "preset %q not found", name)
	}
	preset, err := s.presets.LoadPreset(name)
	if err != nil {
		available, listErr := s.presets.ListPresets()
		if listErr == nil && len(available) > 0 {
			ids := make([]string, len(available))
			for i, p := range available {
				ids[i] = p.PresetID
			}
			return nil, engine.Wrap(code, err, fmt.Sprintf("preset %q not available (have %v)", name, ids))
		}
		return nil, engine.Wrap(code, err, fmt.Sprintf("preset %q not available", name))
	}
	return preset, nil
}

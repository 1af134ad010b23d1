package engine

import (
	"slices"
	"time"
)

// NewSession validates input and produces the writes for a fresh waiting
// session: the session row, the creator's roster entry and a full deck.
func NewSession(id string, in CreateInput, now time.Time) (*Changeset, error) {
	if err := ValidateCreate(in).Err(); err != nil {
		return nil, err
	}
	in = in.Normalize()

	s := &Session{
		ID:        id,
		Name:      in.Name,
		Rules:     in.Rules,
		State:     StateWaiting,
		CreatorID: in.CreatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return &Changeset{
		Session:       s,
		CreateSession: true,
		AddEntries: []RosterEntry{{
			SessionID: id,
			PlayerID:  in.CreatorID,
			JoinedAt:  now,
		}},
		CreateCards: GenerateDeck(id),
	}, nil
}

// Join seats playerID if the session is waiting and has room.
func Join(s Session, roster []RosterEntry, playerID string, now time.Time) (*Changeset, error) {
	if !CanJoin(s, roster, MaxPlayers) {
		if s.State != StateWaiting {
			return nil, Errorf(CodeInvalidState, "cannot join: session is %s", s.State)
		}
		return nil, Errorf(CodeInvalidState, "cannot join: session is full")
	}
	if FindEntry(roster, playerID) >= 0 {
		return nil, ErrAlreadyMember
	}

	s.UpdatedAt = now
	return &Changeset{
		Session: &s,
		AddEntries: []RosterEntry{{
			SessionID: s.ID,
			PlayerID:  playerID,
			JoinedAt:  now,
			Seq:       NextSeq(roster),
		}},
	}, nil
}

// SetReady updates a member's ready flag while the session is waiting.
func SetReady(s Session, roster []RosterEntry, playerID string, ready bool, now time.Time) (*Changeset, error) {
	i := FindEntry(roster, playerID)
	if i < 0 {
		return nil, ErrNotMember
	}
	if s.State != StateWaiting {
		return nil, Errorf(CodeInvalidState, "cannot change readiness: session is %s", s.State)
	}

	entry := roster[i]
	entry.Ready = ready
	s.UpdatedAt = now
	return &Changeset{
		Session:       &s,
		UpdateEntries: []RosterEntry{entry},
	}, nil
}

// Start deals the deck and moves the session into play. The earliest joined
// player takes the first turn.
func Start(s Session, roster []RosterEntry, deck []Card, requesterID string, src RandomSource, now time.Time) (*Changeset, error) {
	if requesterID != s.CreatorID {
		return nil, Errorf(CodeForbidden, "only the session creator can start the game")
	}
	if s.State != StateWaiting {
		return nil, Errorf(CodeInvalidState, "cannot start: session is %s", s.State)
	}
	if !CanStart(roster, MinPlayers, MaxPlayers) {
		return nil, Errorf(CodeRosterNotReady, "need %d-%d players, all ready (have %d)", MinPlayers, MaxPlayers, len(roster))
	}

	ordered := slices.Clone(roster)
	SortRoster(ordered)

	deal, err := DealCards(ordered, deck, src)
	if err != nil {
		return nil, err
	}

	s.State = StateInProgress
	s.CurrentPlayerID = ordered[0].PlayerID
	s.UpdatedAt = now
	return &Changeset{
		Session:     &s,
		UpdateCards: deal.Cards(),
	}, nil
}

// Leave removes playerID from the roster. On a finished session it is a
// no-op success and returns a nil changeset, even for non-members.
func Leave(s Session, roster []RosterEntry, playerID string, now time.Time) (*Changeset, error) {
	if s.State == StateFinished {
		return nil, nil
	}
	ordered := slices.Clone(roster)
	SortRoster(ordered)
	if FindEntry(ordered, playerID) < 0 {
		return nil, ErrNotMember
	}

	if s.State == StateInProgress {
		if len(ordered) == 1 {
			s.State = StateFinished
			s.CurrentPlayerID = ""
		} else if s.CurrentPlayerID == playerID {
			s.CurrentPlayerID = NextInTurnOrder(ordered, playerID)
		}
	}

	s.UpdatedAt = now
	return &Changeset{
		Session:       &s,
		RemovePlayers: []string{playerID},
	}, nil
}

// End finishes the session. The turn pointer is left as it was.
func End(s Session, requesterID string, now time.Time) (*Changeset, error) {
	if requesterID != s.CreatorID {
		return nil, Errorf(CodeForbidden, "only the session creator can end the game")
	}
	if s.State == StateFinished {
		return nil, ErrAlreadyFinished
	}

	s.State = StateFinished
	s.UpdatedAt = now
	return &Changeset{Session: &s}, nil
}

// CheckTurnPointer verifies the turn pointer invariant for a snapshot.
func CheckTurnPointer(s Session, roster []RosterEntry) error {
	switch s.State {
	case StateInProgress:
		if FindEntry(roster, s.CurrentPlayerID) < 0 {
			return Errorf(CodeInvariant, "current player %q is not seated", s.CurrentPlayerID)
		}
	case StateWaiting:
		if s.CurrentPlayerID != "" {
			return Errorf(CodeInvariant, "waiting session has a turn holder")
		}
	}
	return nil
}

package engine

import (
	"slices"
)

// Fixed table policy. Capacity is not configurable per session.
const (
	MinPlayers = 2
	MaxPlayers = 4
	HandSize   = 7
)

// CanJoin reports whether another player may join: the session must be
// waiting and below capacity.
func CanJoin(s Session, roster []RosterEntry, maxPlayers int) bool {
	return s.State == StateWaiting && len(roster) < maxPlayers
}

// CanStart reports whether the roster size is within bounds and every entry
// is ready.
func CanStart(roster []RosterEntry, minPlayers, maxPlayers int) bool {
	if len(roster) < minPlayers || len(roster) > maxPlayers {
		return false
	}
	for _, e := range roster {
		if !e.Ready {
			return false
		}
	}
	return true
}

// SortRoster orders entries by join time, then join sequence.
func SortRoster(roster []RosterEntry) {
	slices.SortStableFunc(roster, func(a, b RosterEntry) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return a.Seq - b.Seq
	})
}

// FindEntry returns the index of playerID in roster, or -1.
func FindEntry(roster []RosterEntry, playerID string) int {
	return slices.IndexFunc(roster, func(e RosterEntry) bool {
		return e.PlayerID == playerID
	})
}

// NextSeq returns the join sequence number for the next entry.
func NextSeq(roster []RosterEntry) int {
	next := 0
	for _, e := range roster {
		if e.Seq >= next {
			next = e.Seq + 1
		}
	}
	return next
}

// NextInTurnOrder returns the player who follows playerID in join order,
// wrapping past the end and skipping playerID itself. The roster must be
// sorted and contain playerID. Returns "" when no one else is seated.
func NextInTurnOrder(roster []RosterEntry, playerID string) string {
	i := FindEntry(roster, playerID)
	if i < 0 || len(roster) < 2 {
		return ""
	}
	return roster[(i+1)%len(roster)].PlayerID
}

package engine

import (
	"slices"
)

// Deal is the outcome of dealing a shuffled deck to a roster.
type Deal struct {
	Hands    map[string][]Card
	Discard  Card
	DrawPile []Card
}

// Cards returns every card touched by the deal, ready to be written back.
func (d *Deal) Cards() []Card {
	n := len(d.DrawPile) + 1
	for _, h := range d.Hands {
		n += len(h)
	}
	out := make([]Card, 0, n)
	for _, h := range d.Hands {
		out = append(out, h...)
	}
	out = append(out, d.Discard)
	out = append(out, d.DrawPile...)
	return out
}

// DealCards shuffles the deck and hands HandSize cards to each player in
// roster order as contiguous blocks. The next card opens the discard pile and
// the rest become the draw pile, ordered by their shuffled position.
//
// The roster must already be sorted in join order. A deck too small to serve
// every player plus the discard is an invariant violation.
func DealCards(roster []RosterEntry, deck []Card, src RandomSource) (*Deal, error) {
	need := HandSize*len(roster) + 1
	if len(deck) < need {
		return nil, Errorf(CodeInvariant, "deck has %d cards, need at least %d", len(deck), need)
	}

	// Canonical input order so a seeded source gives a reproducible deal.
	ordered := slices.Clone(deck)
	slices.SortFunc(ordered, func(a, b Card) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return a.ID - b.ID
	})
	shuffled := Shuffle(ordered, src)

	deal := &Deal{Hands: make(map[string][]Card, len(roster))}
	k := 0
	for _, entry := range roster {
		hand := make([]Card, HandSize)
		for slot := 0; slot < HandSize; slot++ {
			c := shuffled[k]
			c.Position = PositionHand
			c.OwnerID = entry.PlayerID
			c.Order = slot
			hand[slot] = c
			k++
		}
		deal.Hands[entry.PlayerID] = hand
	}

	top := shuffled[k]
	top.Position = PositionDiscard
	top.OwnerID = ""
	top.Order = 0
	deal.Discard = top
	k++

	deal.DrawPile = make([]Card, 0, len(shuffled)-k)
	for i, c := range shuffled[k:] {
		c.Position = PositionDeck
		c.OwnerID = ""
		c.Order = i
		deal.DrawPile = append(deal.DrawPile, c)
	}

	return deal, nil
}

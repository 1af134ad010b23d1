package engine

import (
	"math/rand/v2"
	"strconv"
	"sync"
)

// DeckSize is the number of cards in a freshly generated deck.
const DeckSize = 108

var actionTypes = []CardType{CardSkip, CardReverse, CardDrawTwo}

// GenerateDeck returns the canonical 108-card deck for a session, every card
// in the deck position with order 0. Card IDs run from 1 to DeckSize.
func GenerateDeck(sessionID string) []Card {
	deck := make([]Card, 0, DeckSize)
	add := func(t CardType, value string, color Color) {
		deck = append(deck, Card{
			ID:        len(deck) + 1,
			SessionID: sessionID,
			Type:      t,
			Value:     value,
			Color:     color,
			Position:  PositionDeck,
		})
	}

	for _, color := range Colors {
		add(CardNumber, "0", color)
		for n := 1; n <= 9; n++ {
			add(CardNumber, strconv.Itoa(n), color)
			add(CardNumber, strconv.Itoa(n), color)
		}
		for _, t := range actionTypes {
			add(t, string(t), color)
			add(t, string(t), color)
		}
	}
	for i := 0; i < 4; i++ {
		add(CardWild, string(CardWild), ColorNone)
	}
	for i := 0; i < 4; i++ {
		add(CardWildDrawFour, string(CardWildDrawFour), ColorNone)
	}

	return deck
}

// RandomSource draws uniform integers in [0, n).
type RandomSource interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultSource is backed by the runtime's concurrency-safe global generator.
var DefaultSource RandomSource = globalSource{}

// lockedSource serializes access to a seeded generator.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededSource returns a deterministic source, safe for concurrent use.
func NewSeededSource(seed uint64) RandomSource {
	return &lockedSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Shuffle returns a uniformly random permutation of items using Fisher-Yates:
// for i from the last index down to 1, swap i with j drawn from [0, i].
// The input slice is left untouched.
func Shuffle[T any](items []T, src RandomSource) []T {
	if src == nil {
		src = DefaultSource
	}
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

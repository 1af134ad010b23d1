package main

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/uno-server/game/engine"
	"golang.org/x/sync/errgroup"
)

var deckColumns = []engine.CardType{
	engine.CardNumber,
	engine.CardSkip,
	engine.CardReverse,
	engine.CardDrawTwo,
	engine.CardWild,
	engine.CardWildDrawFour,
}

func deckCommand() *cli.Command {
	return &cli.Command{
		Name:  "deck",
		Usage: "print the deck composition by color and type",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			section(cmd, "Deck composition")
			return renderTable(cmd, compositionTable(engine.GenerateDeck("")))
		},
		Commands: []*cli.Command{
			{
				Name:  "shuffle-stats",
				Usage: "shuffle the deck repeatedly and report where the first card lands",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "trials", Usage: "number of shuffles", Value: 10000},
					&cli.IntFlag{Name: "workers", Usage: "concurrent shufflers", Value: runtime.GOMAXPROCS(0)},
					&cli.Uint64Flag{Name: "seed", Usage: "base seed; 0 uses the runtime generator"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					stats, err := shuffleStats(ctx, cmd.Int("trials"), cmd.Int("workers"), cmd.Uint64("seed"))
					if err != nil {
						return err
					}
					section(cmd, fmt.Sprintf("Position of card #1 over %d shuffles", stats.Trials))
					if err := renderTable(cmd, stats.bucketTable(12)); err != nil {
						return err
					}
					render(cmd, pterm.DefaultBox.WithTitle("Uniformity").Sprintf(
						"chi-square: %.1f (df %d, expect about %d)\nmax deviation: %.1f%%",
						stats.ChiSquare, engine.DeckSize-1, engine.DeckSize-1, stats.MaxDeviation*100)+"\n")
					return nil
				},
			},
		},
	}
}

// compositionTable counts cards by color and type
func compositionTable(deck []engine.Card) pterm.TableData {
	counts := map[engine.Color]map[engine.CardType]int{}
	for _, c := range deck {
		if counts[c.Color] == nil {
			counts[c.Color] = map[engine.CardType]int{}
		}
		counts[c.Color][c.Type]++
	}

	header := []string{"Color"}
	for _, t := range deckColumns {
		header = append(header, string(t))
	}
	header = append(header, "Total")
	data := pterm.TableData{header}

	colors := append([]engine.Color{}, engine.Colors...)
	colors = append(colors, engine.ColorNone)
	columnTotals := make([]int, len(deckColumns))
	for _, color := range colors {
		name := string(color)
		if color == engine.ColorNone {
			name = "wild"
		}
		row := []string{name}
		total := 0
		for i, t := range deckColumns {
			n := counts[color][t]
			row = append(row, strconv.Itoa(n))
			total += n
			columnTotals[i] += n
		}
		data = append(data, append(row, strconv.Itoa(total)))
	}

	footer := []string{"Total"}
	for _, n := range columnTotals {
		footer = append(footer, strconv.Itoa(n))
	}
	return append(data, append(footer, strconv.Itoa(len(deck))))
}

// ShuffleStats is the landing histogram of the deck's first card
type ShuffleStats struct {
	Trials       int
	Positions    []int
	ChiSquare    float64
	MaxDeviation float64
}

func shuffleStats(ctx context.Context, trials, workers int, seed uint64) (*ShuffleStats, error) {
	if trials <= 0 {
		return nil, fmt.Errorf("trials must be positive, got %d", trials)
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > trials {
		workers = trials
	}

	deck := engine.GenerateDeck("")
	histograms := make([][]int, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		share := trials / workers
		if w < trials%workers {
			share++
		}
		g.Go(func() error {
			src := engine.DefaultSource
			if seed != 0 {
				src = engine.NewSeededSource(seed + uint64(w))
			}
			hist := make([]int, len(deck))
			for i := 0; i < share; i++ {
				if i%1000 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				shuffled := engine.Shuffle(deck, src)
				for pos, c := range shuffled {
					if c.ID == 1 {
						hist[pos]++
						break
					}
				}
			}
			histograms[w] = hist
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &ShuffleStats{Trials: trials, Positions: make([]int, len(deck))}
	for _, hist := range histograms {
		for pos, n := range hist {
			stats.Positions[pos] += n
		}
	}

	expected := float64(trials) / float64(len(deck))
	for _, n := range stats.Positions {
		diff := float64(n) - expected
		stats.ChiSquare += diff * diff / expected
		stats.MaxDeviation = math.Max(stats.MaxDeviation, math.Abs(diff)/expected)
	}
	return stats, nil
}

// bucketTable groups positions into n equal ranges
func (s *ShuffleStats) bucketTable(n int) pterm.TableData {
	size := (len(s.Positions) + n - 1) / n
	data := pterm.TableData{{"Positions", "Observed", "Expected"}}
	for start := 0; start < len(s.Positions); start += size {
		end := min(start+size, len(s.Positions))
		observed := 0
		for _, c := range s.Positions[start:end] {
			observed += c
		}
		expected := float64(s.Trials) * float64(end-start) / float64(len(s.Positions))
		data = append(data, []string{
			fmt.Sprintf("%d-%d", start+1, end),
			strconv.Itoa(observed),
			fmt.Sprintf("%.0f", expected),
		})
	}
	return data
}

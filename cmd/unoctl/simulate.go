package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/uno-server/game/config"
	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
	"github.com/wricardo/uno-server/game/session"
	"golang.org/x/sync/errgroup"
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "create, fill and start a session in memory, then print the deal",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "players", Usage: "players trying to join, including the creator", Value: 4},
			&cli.Uint64Flag{Name: "seed", Usage: "shuffle seed; 0 uses the runtime generator"},
			&cli.StringFlag{Name: "preset", Usage: "house-rule preset for the session"},
			&cli.StringFlag{Name: "preset-dir", Usage: "preset directory; empty serves only classic", Sources: cli.EnvVars("UNO_PRESET_DIR")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			presets, err := config.NewManager(cmd.String("preset-dir"))
			if err != nil {
				return err
			}
			report, err := simulate(ctx, presets, cmd.String("preset"), cmd.Int("players"), cmd.Uint64("seed"))
			if err != nil {
				return err
			}
			return report.render(cmd)
		},
	}
}

// SimulationReport is the outcome of one simulated setup
type SimulationReport struct {
	Session  *service.SessionInfo
	Rejected map[string]engine.Code
	Hands    map[string][]service.CardInfo
	Players  []service.PlayerInfo
}

// simulate creates a session as p1, lets p2..pN join concurrently, readies
// everyone who got in and starts the game
func simulate(ctx context.Context, presets service.PresetManager, preset string, players int, seed uint64) (*SimulationReport, error) {
	if players < engine.MinPlayers {
		return nil, fmt.Errorf("players must be at least %d, got %d", engine.MinPlayers, players)
	}

	var opts []service.Option
	if seed != 0 {
		opts = append(opts, service.WithRandomSource(engine.NewSeededSource(seed)))
	}
	svc := service.NewGameService(session.NewManager(), presets, opts...)

	created, err := svc.CreateSession(ctx, service.CreateRequest{Name: "Simulated Game", Preset: preset}, "p1")
	if err != nil {
		return nil, err
	}
	sessionID := created.Session.ID

	codes := make([]engine.Code, players+1)
	g, gctx := errgroup.WithContext(ctx)
	for i := 2; i <= players; i++ {
		g.Go(func() error {
			_, err := svc.JoinSession(gctx, sessionID, fmt.Sprintf("p%d", i))
			if err != nil {
				code := engine.CodeOf(err)
				if code == "" {
					return err
				}
				codes[i] = code
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &SimulationReport{
		Rejected: map[string]engine.Code{},
		Hands:    map[string][]service.CardInfo{},
	}
	for i, code := range codes {
		if code != "" {
			report.Rejected[fmt.Sprintf("p%d", i)] = code
		}
	}

	roster, err := svc.GetPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, p := range roster {
		if _, err := svc.SetReady(ctx, sessionID, p.PlayerID, true); err != nil {
			return nil, err
		}
	}

	started, err := svc.StartSession(ctx, sessionID, "p1")
	if err != nil {
		return nil, err
	}
	report.Session = started.Session

	if report.Players, err = svc.GetPlayers(ctx, sessionID); err != nil {
		return nil, err
	}
	for _, p := range report.Players {
		hand, err := svc.GetHand(ctx, sessionID, p.PlayerID)
		if err != nil {
			return nil, err
		}
		report.Hands[p.PlayerID] = hand
	}
	return report, nil
}

func (r *SimulationReport) render(cmd *cli.Command) error {
	section(cmd, "Session "+r.Session.ID)

	current := ""
	if r.Session.CurrentPlayerID != nil {
		current = *r.Session.CurrentPlayerID
	}
	data := pterm.TableData{{"Seat", "Player", "Cards", "Hand"}}
	for i, p := range r.Players {
		name := p.PlayerID
		if name == current {
			name = pterm.Bold.Sprint(name + " *")
		}
		labels := make([]string, len(r.Hands[p.PlayerID]))
		for j, c := range r.Hands[p.PlayerID] {
			labels[j] = c.Label
		}
		data = append(data, []string{
			fmt.Sprint(i + 1),
			name,
			fmt.Sprint(len(labels)),
			strings.Join(labels, ", "),
		})
	}
	if err := renderTable(cmd, data); err != nil {
		return err
	}

	if r.Session.TopCard != nil {
		render(cmd, pterm.Info.Sprintfln("Top card: %s", r.Session.TopCard.Label))
	}
	rejected := make([]string, 0, len(r.Rejected))
	for player := range r.Rejected {
		rejected = append(rejected, player)
	}
	sort.Strings(rejected)
	for _, player := range rejected {
		render(cmd, pterm.Warning.Sprintfln("%s could not join: %s", player, r.Rejected[player]))
	}
	return nil
}

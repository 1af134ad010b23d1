package main

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/uno-server/game/config"
)

func presetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "presets",
		Usage: "work with house-rule preset files",
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "validate every .json preset in a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dir",
						Usage:   "preset directory",
						Value:   "presets",
						Sources: cli.EnvVars("UNO_PRESET_DIR"),
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return validatePresets(cmd, cmd.String("dir"))
				},
			},
		},
	}
}

func validatePresets(cmd *cli.Command, dir string) error {
	results, err := config.ValidateDir(dir)
	if err != nil {
		return err
	}

	section(cmd, "Validating presets in "+dir)
	data := pterm.TableData{{"File", "Name", "Status"}}
	invalid := 0
	for _, r := range results {
		if r.Err != nil {
			invalid++
			data = append(data, []string{r.Filename, "", pterm.Red(r.Err.Error())})
			continue
		}
		data = append(data, []string{r.Filename, r.Preset.Name, pterm.Green("valid")})
	}
	if err := renderTable(cmd, data); err != nil {
		return err
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d presets are invalid", invalid, len(results))
	}
	render(cmd, pterm.Success.Sprintfln("All %d presets are valid", len(results)))
	return nil
}

// Command unoctl is the operator toolbox for the UNO session server: it mints
// development tokens, inspects the deck and shuffle, validates house-rule
// presets and runs an in-process game setup.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "unoctl",
		Usage:  "tools for the UNO session server",
		Writer: out,
		Commands: []*cli.Command{
			tokenCommand(),
			deckCommand(),
			presetsCommand(),
			simulateCommand(),
		},
	}
}

// render writes a pterm-rendered block to the command's writer
func render(cmd *cli.Command, s string) {
	fmt.Fprint(cmd.Root().Writer, s)
}

func renderTable(cmd *cli.Command, data pterm.TableData) error {
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	render(cmd, s+"\n")
	return nil
}

func section(cmd *cli.Command, title string) {
	render(cmd, pterm.DefaultSection.Sprint(title))
}

package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/uno-server/auth"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "mint a development JWT for a player",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "secret",
				Usage:    "HS256 signing secret",
				Sources:  cli.EnvVars("UNO_JWT_SECRET"),
				Required: true,
			},
			&cli.StringFlag{
				Name:     "player",
				Usage:    "player ID placed in the token subject",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "token lifetime",
				Value: 24 * time.Hour,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			authenticator, err := auth.NewTokenAuthenticator(cmd.String("secret"))
			if err != nil {
				return err
			}
			token, err := authenticator.Issue(cmd.String("player"), cmd.Duration("ttl"))
			if err != nil {
				return err
			}
			render(cmd, token+"\n")
			return nil
		},
	}
}

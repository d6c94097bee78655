package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// CancelCommand returns the cancel command. Idempotent.
func CancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a run and kill its worker process tree",
		ArgsUsage: "<runId>",
		Flags: []cli.Flag{
			jsonFlag,
			runsDirFlag,
			&cli.StringFlag{
				Name:  "reason",
				Usage: "Optional cancellation reason recorded on the event",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: mill cancel <runId>", exitFailure)
			}
			rt, err := buildRuntime(c, false)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			outcome, err := rt.launcher().CancelRun(c.Context, c.Args().First(), c.String("reason"))
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			if c.Bool("json") {
				payload := struct {
					Run             any  `json:"run"`
					AlreadyTerminal bool `json:"alreadyTerminal"`
				}{Run: outcome.Run, AlreadyTerminal: outcome.AlreadyTerminal}
				if err := printJSON(payload); err != nil {
					return cli.Exit(err.Error(), exitFailure)
				}
				return nil
			}
			if outcome.AlreadyTerminal {
				fmt.Printf("%s already %s\n", outcome.Run.ID, outcome.Run.Status)
			} else {
				fmt.Printf("%s %s\n", outcome.Run.ID, outcome.Run.Status)
			}
			return nil
		},
	}
}

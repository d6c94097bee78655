package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/millrun/mill/engine"
)

// WaitCommand returns the wait command. A timeout exits with code 2.
func WaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "wait",
		Usage:     "Block until a run reaches a terminal state",
		ArgsUsage: "<runId>",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "timeout",
				Usage:    "Timeout in seconds",
				Required: true,
			},
			jsonFlag,
			runsDirFlag,
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: mill wait <runId> --timeout <seconds>", exitFailure)
			}
			rt, err := buildRuntime(c, false)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}

			timeout := time.Duration(c.Float64("timeout") * float64(time.Second))
			record, err := rt.engine.Wait(c.Context, c.Args().First(), timeout)
			if err != nil {
				if engine.IsWaitTimeout(err) {
					return cli.Exit(err.Error(), exitTimeout)
				}
				return cli.Exit(err.Error(), exitFailure)
			}

			if c.Bool("json") {
				if err := printJSON(record); err != nil {
					return cli.Exit(err.Error(), exitFailure)
				}
				return nil
			}
			fmt.Printf("%s %s\n", record.ID, record.Status)
			return nil
		},
	}
}

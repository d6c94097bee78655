package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Print the current run record",
		ArgsUsage: "<runId>",
		Flags:     []cli.Flag{jsonFlag, runsDirFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: mill status <runId>", exitFailure)
			}
			rt, err := buildRuntime(c, false)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			record, err := rt.engine.Status(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			if c.Bool("json") {
				if err := printJSON(record); err != nil {
					return cli.Exit(err.Error(), exitFailure)
				}
				return nil
			}
			fmt.Printf("%s %s driver=%s executor=%s created=%s\n",
				record.ID, record.Status, record.Driver, record.Executor, record.CreatedAt)
			return nil
		},
	}
}

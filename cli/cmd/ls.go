package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/millrun/mill/types"
)

// LsCommand returns the ls command: enumerate runs, newest first.
func LsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ls",
		Usage: "List runs sorted by creation time, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status: pending, running, complete, failed, cancelled",
			},
			jsonFlag,
			runsDirFlag,
		},
		Action: func(c *cli.Context) error {
			status := types.RunStatus(c.String("status"))
			if status != "" && !status.Valid() {
				return cli.Exit(fmt.Sprintf("unknown status %q", status), exitFailure)
			}
			rt, err := buildRuntime(c, false)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			records, err := rt.engine.List(status)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			if c.Bool("json") {
				if records == nil {
					records = []*types.RunRecord{}
				}
				if err := printJSON(records); err != nil {
					return cli.Exit(err.Error(), exitFailure)
				}
				return nil
			}
			for _, record := range records {
				fmt.Printf("%s  %-9s  %s\n", record.ID, record.Status, record.CreatedAt)
			}
			return nil
		},
	}
}

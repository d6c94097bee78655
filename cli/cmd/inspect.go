package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/millrun/mill/engine"
	"github.com/millrun/mill/types"
)

// InspectCommand returns the inspect command. The ref argument is either a
// runId or runId.spawnId.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the event history of a run or a single spawn",
		ArgsUsage: "<runId | runId.spawnId>",
		Flags: []cli.Flag{
			jsonFlag,
			runsDirFlag,
			&cli.BoolFlag{
				Name:  "session",
				Usage: "Print only session references from spawn results",
			},
		},
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: mill inspect <runId | runId.spawnId>", exitFailure)
	}
	runID, spawnID, _ := strings.Cut(c.Args().First(), ".")

	rt, err := buildRuntime(c, false)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	report, err := rt.engine.Inspect(engine.InspectParams{RunID: runID, SpawnID: spawnID})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	if c.Bool("session") {
		for _, ref := range sessionRefs(report) {
			fmt.Println(ref)
		}
		return nil
	}

	if c.Bool("json") {
		if err := printJSON(report); err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		return nil
	}

	if report.Kind == engine.InspectKindRun {
		fmt.Printf("%s %s\n", report.Run.ID, report.Run.Status)
	} else {
		fmt.Printf("%s %s\n", report.RunID, report.SpawnID)
	}
	for _, ev := range report.Events {
		fmt.Printf("%4d  %-16s  %s\n", ev.Sequence, ev.Type, ev.Timestamp)
	}
	return nil
}

// sessionRefs extracts the session references carried by the report.
func sessionRefs(report *engine.InspectReport) []string {
	var refs []string
	switch result := report.Result.(type) {
	case *types.SpawnResult:
		if result != nil {
			refs = append(refs, result.SessionRef)
		}
	case *types.RunResult:
		if result != nil {
			for _, spawn := range result.Spawns {
				refs = append(refs, spawn.SessionRef)
			}
		}
	}
	return refs
}

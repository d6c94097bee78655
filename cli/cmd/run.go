package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/millrun/mill/types"
)

// syncWaitTimeout bounds --sync waiting. Generous on purpose: agent runs
// are long-lived and the worker enforces no deadline of its own.
const syncWaitTimeout = 24 * time.Hour

// RunCommand returns the run command: submit a program and optionally block
// until it finishes.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Submit a program for execution",
		ArgsUsage: "<programPath>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "Block until the run reaches a terminal state",
			},
			jsonFlag,
			&cli.StringFlag{
				Name:  "driver",
				Usage: "Driver name (defaults to config)",
			},
			&cli.StringFlag{
				Name:  "executor",
				Usage: "Executor name (defaults to config)",
			},
			runsDirFlag,
			&cli.StringFlag{
				Name:  "meta-json",
				Usage: "Run metadata as a JSON object of strings",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: mill run <programPath>", exitFailure)
	}
	programPath := c.Args().First()

	metadata, err := parseMetadata(c.String("meta-json"))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	rt, err := buildRuntime(c, false)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	// The worker resolves the driver itself; submission only validates the
	// name against the catalog.
	if _, err := rt.drivers.Resolve(rt.driverName); err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if _, err := rt.executors.Resolve(rt.executorName); err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	submission, err := rt.launcher().SubmitRun(c.Context, programPath, metadata)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	run := submission.Run

	if !c.Bool("sync") {
		if c.Bool("json") {
			if err := printJSON(run); err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			return nil
		}
		fmt.Printf("submitted %s\n", run.ID)
		return nil
	}

	fmt.Fprintf(os.Stderr, "waiting for %s\n", run.ID)
	record, err := rt.engine.Wait(c.Context, run.ID, syncWaitTimeout)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	result, err := rt.engine.Result(run.ID)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	if c.Bool("json") {
		payload := struct {
			Run    *types.RunRecord `json:"run"`
			Result *types.RunResult `json:"result,omitempty"`
		}{Run: record, Result: result}
		if err := printJSON(payload); err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
	} else {
		fmt.Printf("%s %s\n", record.ID, record.Status)
		if result != nil && result.ErrorMessage != "" {
			fmt.Fprintln(os.Stderr, result.ErrorMessage)
		}
	}

	if record.Status != types.StatusComplete {
		return cli.Exit("", exitFailure)
	}
	return nil
}

func parseMetadata(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, fmt.Errorf("invalid --meta-json: %w", err)
	}
	return metadata, nil
}

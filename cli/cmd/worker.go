package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/millrun/mill/log"
	"github.com/millrun/mill/worker"
)

// WorkerCommand returns the hidden _worker command: the entry point of the
// detached worker process spawned by run submission.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:   "_worker",
		Hidden: true,
		Usage:  "Run one submitted run to completion (internal)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run-id", Required: true},
			&cli.StringFlag{Name: "program", Required: true},
			&cli.StringFlag{Name: "runs-dir", Required: true},
			&cli.StringFlag{Name: "driver", Required: true},
			&cli.StringFlag{Name: "executor", Required: true},
		},
		Action: workerAction,
	}
}

func workerAction(c *cli.Context) error {
	rt, err := buildRuntime(c, true)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	resolvedDriver, err := rt.drivers.Resolve(c.String("driver"))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	resolvedExecutor, err := rt.executors.Resolve(c.String("executor"))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	runID := c.String("run-id")
	_, err = worker.Run(c.Context, worker.Params{
		RunID:         runID,
		ProgramPath:   c.String("program"),
		RunsDirectory: c.String("runs-dir"),
		DriverName:    resolvedDriver.Name,
		ExecutorName:  resolvedExecutor.Name,
		DefaultModel:  rt.cfg.Model,
		Driver:        resolvedDriver.Runtime,
		Executor:      resolvedExecutor.Runtime,
		Extensions:    rt.extensions,
		Logger:        log.NewLogger(runID),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return nil
}

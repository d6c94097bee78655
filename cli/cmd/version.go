package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/millrun/mill/types"
)

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{jsonFlag},
		Action: func(c *cli.Context) error {
			if c.Bool("json") {
				payload := map[string]string{
					"version": types.Version,
					"commit":  commit,
					"go":      runtime.Version(),
				}
				return printJSON(payload)
			}
			fmt.Printf("mill %s (commit: %s, %s)\n", types.Version, commit, runtime.Version())
			return nil
		},
	}
}

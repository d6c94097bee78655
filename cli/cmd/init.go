package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/millrun/mill/config"
)

// InitCommand returns the init command: write a starter config file.
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a starter config to <cwd>/.mill/config.yaml",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "global",
				Usage: "Write to $HOME/.mill/config.yaml instead",
			},
		},
		Action: func(c *cli.Context) error {
			dir, err := os.Getwd()
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			if c.Bool("global") {
				home, err := os.UserHomeDir()
				if err != nil {
					return cli.Exit(fmt.Sprintf("resolve home directory: %v", err), exitFailure)
				}
				dir = home
			}
			path, err := config.WriteStarter(dir)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
}

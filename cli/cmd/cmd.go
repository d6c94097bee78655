// Package cmd provides the mill CLI commands.
//
// Commands accept --json for machine-readable output: payloads go to
// stdout (one JSON value, or one value per line for streaming commands)
// and diagnostics go to stderr.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/millrun/mill/config"
	"github.com/millrun/mill/driver"
	"github.com/millrun/mill/engine"
	"github.com/millrun/mill/executor"
	"github.com/millrun/mill/extension"
	extredis "github.com/millrun/mill/extension/redis"
	extwebhook "github.com/millrun/mill/extension/webhook"
	"github.com/millrun/mill/launch"
	"github.com/millrun/mill/log"
	"github.com/millrun/mill/registry"
)

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1
	exitTimeout = 2
)

// Shared flags.
var (
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "Emit machine-readable JSON on stdout",
	}

	runsDirFlag = &cli.StringFlag{
		Name:  "runs-dir",
		Usage: "Override the runs directory",
	}
)

// appRuntime is the assembled per-invocation wiring: config, registries, and
// the engine.
type appRuntime struct {
	cfg        *config.Config
	cwd        string
	runsDir    string
	drivers    *registry.Registry[driver.Driver]
	executors  *registry.Registry[executor.Runtime]
	extensions []*extension.Registration

	driverName   string
	executorName string
	engine       *engine.Engine
	logger       *log.Logger
}

// buildRuntime loads config and wires the engine. The driver runtime is
// resolved only when withDriver is set; read-only commands skip it.
func buildRuntime(c *cli.Context, withDriver bool) (*appRuntime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}

	rt := &appRuntime{
		cfg:     cfg,
		cwd:     cwd,
		runsDir: cfg.ResolveRunsDir(flagString(c, "runs-dir"), cwd),
		logger:  log.Nop(),
	}

	rt.drivers = buildDriverRegistry(cfg)
	rt.executors = buildExecutorRegistry(cfg)

	rt.extensions, err = buildExtensions(cfg)
	if err != nil {
		return nil, err
	}

	rt.driverName = flagString(c, "driver")
	if rt.driverName == "" {
		rt.driverName = cfg.Driver
	}
	rt.executorName = flagString(c, "executor")
	if rt.executorName == "" {
		rt.executorName = cfg.Executor
	}

	var driverRuntime driver.Driver
	if withDriver {
		resolved, err := rt.drivers.Resolve(rt.driverName)
		if err != nil {
			return nil, err
		}
		rt.driverName = resolved.Name
		driverRuntime = resolved.Runtime
	}

	rt.engine, err = engine.New(engine.Options{
		RunsDirectory: rt.runsDir,
		DriverName:    rt.driverName,
		ExecutorName:  rt.executorName,
		DefaultModel:  cfg.Model,
		Driver:        driverRuntime,
		Extensions:    rt.extensions,
		Logger:        rt.logger,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// launcher builds the submission façade over the runtime's engine.
func (rt *appRuntime) launcher() *launch.Launcher {
	return &launch.Launcher{
		Engine:        rt.engine,
		RunsDirectory: rt.runsDir,
		DriverName:    rt.driverName,
		ExecutorName:  rt.executorName,
		MaxRunDepth:   rt.cfg.MaxRunDepth,
		Depth:         config.RunDepth(),
		Logger:        rt.logger,
	}
}

func buildDriverRegistry(cfg *config.Config) *registry.Registry[driver.Driver] {
	entries := map[string]registry.Registration[driver.Driver]{
		// Always available for smoke runs without an agent command. A
		// configured driver of the same name takes precedence.
		"test": {
			Description: "scripted stub driver",
			Runtime:     &driver.StubDriver{},
		},
	}
	for name, dc := range cfg.Drivers {
		entries[name] = registry.Registration[driver.Driver]{
			Description: "external agent command",
			Runtime:     &driver.SubprocessDriver{Name: name, Command: dc.Command},
		}
	}
	return registry.New(registry.KindDriver, cfg.Driver, entries)
}

func buildExecutorRegistry(cfg *config.Config) *registry.Registry[executor.Runtime] {
	entries := make(map[string]registry.Registration[executor.Runtime])
	for name, ec := range cfg.Executors {
		entries[name] = registry.Registration[executor.Runtime]{
			Description: "local interpreter",
			Runtime:     &executor.Local{Name: name, Command: ec.Command},
		}
	}
	return registry.New(registry.KindExecutor, cfg.Executor, entries)
}

func buildExtensions(cfg *config.Config) ([]*extension.Registration, error) {
	var extensions []*extension.Registration
	if rc := cfg.Extensions.Redis; rc != nil {
		ext, err := extredis.New(extredis.Config{
			URL:     rc.URL,
			Channel: rc.Channel,
			Format:  rc.Format,
		})
		if err != nil {
			return nil, err
		}
		extensions = append(extensions, ext)
	}
	if wc := cfg.Extensions.Webhook; wc != nil {
		ext, err := extwebhook.New(extwebhook.Config{
			URL:     wc.URL,
			Headers: wc.Headers,
			Timeout: wc.WebhookTimeout(),
			Retries: wc.Retries,
		})
		if err != nil {
			return nil, err
		}
		extensions = append(extensions, ext)
	}
	return extensions, nil
}

// flagString reads a string flag that may not be defined on the command.
func flagString(c *cli.Context, name string) string {
	for _, defined := range c.Command.Flags {
		for _, n := range defined.Names() {
			if n == name {
				return c.String(name)
			}
		}
	}
	return ""
}

// printJSON writes one pretty JSON value to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// printJSONLine writes one compact JSON value on a single stdout line.
func printJSONLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Package config loads mill configuration from YAML files and the
// environment. All environment access for the runtime is centralized here.
//
// Resolution order for the config file: <cwd>/.mill/config.yaml, walking up
// parent directories until a .git root; then $HOME/.mill/config.yaml; then
// built-in defaults. Command-line flags override file values at the call
// site, not here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DepthEnv carries the run recursion depth into launched workers.
const DepthEnv = "MILL_RUN_DEPTH"

// DefaultMaxRunDepth bounds nested run submission.
const DefaultMaxRunDepth = 1

// ConfigError reports configuration that could not be resolved or
// validated.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Message
}

// CommandConfig declares an external command for a driver or executor.
type CommandConfig struct {
	Command []string `yaml:"command"`
}

// RedisConfig configures the built-in Redis extension.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
	Format  string `yaml:"format"`
}

// WebhookConfig configures the built-in webhook extension.
type WebhookConfig struct {
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Retries        int               `yaml:"retries"`
}

// ExtensionsConfig groups the built-in extension blocks.
type ExtensionsConfig struct {
	Redis   *RedisConfig   `yaml:"redis"`
	Webhook *WebhookConfig `yaml:"webhook"`
}

// Config is the merged view of file values and defaults.
type Config struct {
	RunsDir     string                   `yaml:"runs_dir"`
	Driver      string                   `yaml:"driver"`
	Executor    string                   `yaml:"executor"`
	Model       string                   `yaml:"model"`
	MaxRunDepth int                      `yaml:"max_run_depth"`
	Drivers     map[string]CommandConfig `yaml:"drivers"`
	Executors   map[string]CommandConfig `yaml:"executors"`
	Extensions  ExtensionsConfig         `yaml:"extensions"`

	// Source is the file the config was loaded from, or "" for defaults.
	Source string `yaml:"-"`
}

// WebhookTimeout returns the configured webhook timeout.
func (w *WebhookConfig) WebhookTimeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Driver:      "subprocess",
		Executor:    "bun",
		MaxRunDepth: DefaultMaxRunDepth,
		Executors: map[string]CommandConfig{
			"bun":  {Command: []string{"bun", "run"}},
			"node": {Command: []string{"node", "--experimental-strip-types"}},
		},
	}
}

// Load resolves the configuration starting from cwd.
func Load(cwd string) (*Config, error) {
	path, err := findConfigFile(cwd)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}
	return loadFile(path)
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("read %s: %v", path, err)}
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("parse %s: %v", path, err)}
	}
	if cfg.MaxRunDepth < 1 {
		return nil, &ConfigError{Message: fmt.Sprintf("%s: max_run_depth must be >= 1", path)}
	}
	cfg.Source = path
	return cfg, nil
}

// findConfigFile walks from cwd up to the nearest .git root looking for
// .mill/config.yaml, then falls back to $HOME/.mill/config.yaml.
func findConfigFile(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, ".mill", "config.yaml")
		if fileExists(candidate) {
			return candidate, nil
		}
		atGitRoot := fileExists(filepath.Join(dir, ".git"))
		parent := filepath.Dir(dir)
		if atGitRoot || parent == dir {
			break
		}
		dir = parent
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	candidate := filepath.Join(home, ".mill", "config.yaml")
	if fileExists(candidate) {
		return candidate, nil
	}
	return "", nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist) && err == nil
}

// ResolveRunsDir picks the runs directory: explicit override, config file
// value, $HOME/.mill/runs, then <cwd>/.mill/runs.
func (c *Config) ResolveRunsDir(override, cwd string) string {
	if override != "" {
		return override
	}
	if c.RunsDir != "" {
		return c.RunsDir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".mill", "runs")
	}
	return filepath.Join(cwd, ".mill", "runs")
}

// RunDepth reads the recursion depth propagated by worker launchers.
// Absent or malformed values count as depth zero.
func RunDepth() int {
	raw := os.Getenv(DepthEnv)
	if raw == "" {
		return 0
	}
	depth, err := strconv.Atoi(raw)
	if err != nil || depth < 0 {
		return 0
	}
	return depth
}

// starterConfig is the file written by `mill init`.
const starterConfig = `# mill configuration
driver: subprocess
executor: bun

# runs_dir: /path/to/runs

drivers:
  subprocess:
    command: ["mill-agent-driver"]

executors:
  bun:
    command: ["bun", "run"]
  node:
    command: ["node", "--experimental-strip-types"]

# extensions:
#   redis:
#     url: redis://localhost:6379
#     channel: mill:events
#     format: json
#   webhook:
#     url: https://example.com/hooks/mill
`

// WriteStarter writes a commented starter config under dir/.mill. Fails if
// the file already exists.
func WriteStarter(dir string) (string, error) {
	millDir := filepath.Join(dir, ".mill")
	if err := os.MkdirAll(millDir, 0o755); err != nil {
		return "", &ConfigError{Message: fmt.Sprintf("create %s: %v", millDir, err)}
	}
	path := filepath.Join(millDir, "config.yaml")
	if fileExists(path) {
		return "", &ConfigError{Message: fmt.Sprintf("%s already exists", path)}
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return "", &ConfigError{Message: fmt.Sprintf("write %s: %v", path, err)}
	}
	return path, nil
}

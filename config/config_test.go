package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolateHome(t)
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "subprocess" || cfg.Executor != "bun" {
		t.Errorf("defaults = %s/%s", cfg.Driver, cfg.Executor)
	}
	if cfg.MaxRunDepth != DefaultMaxRunDepth {
		t.Errorf("MaxRunDepth = %d", cfg.MaxRunDepth)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q for defaults", cfg.Source)
	}
	if _, ok := cfg.Executors["node"]; !ok {
		t.Error("node executor missing from defaults")
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	millDir := filepath.Join(dir, ".mill")
	if err := os.MkdirAll(millDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(millDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, `
driver: stub
model: openai/gpt-5.3-codex
max_run_depth: 3
extensions:
  redis:
    url: redis://localhost:6379
    channel: mill:events
    format: msgpack
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "stub" || cfg.Model != "openai/gpt-5.3-codex" || cfg.MaxRunDepth != 3 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Executor != "bun" {
		t.Errorf("unset fields should keep defaults, executor = %s", cfg.Executor)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q, want %q", cfg.Source, path)
	}
	redis := cfg.Extensions.Redis
	if redis == nil || redis.Channel != "mill:events" || redis.Format != "msgpack" {
		t.Errorf("redis config = %+v", redis)
	}
}

func TestLoadWalksUpToGitRoot(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, root, "driver: stub\n")
	nested := filepath.Join(root, "services", "api")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nested)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "stub" {
		t.Errorf("config from git root not found, driver = %s", cfg.Driver)
	}
}

func TestLoadDoesNotWalkPastGitRoot(t *testing.T) {
	isolateHome(t)
	outer := t.TempDir()
	writeConfig(t, outer, "driver: outer\n")
	repo := filepath.Join(outer, "repo")
	if err := os.MkdirAll(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(repo)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver == "outer" {
		t.Error("search should stop at the git root")
	}
}

func TestLoadHomeFallback(t *testing.T) {
	home := isolateHome(t)
	writeConfig(t, home, "driver: homedriver\n")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "homedriver" {
		t.Errorf("home config not used, driver = %s", cfg.Driver)
	}
}

func TestLoadRejectsInvalidMaxRunDepth(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	writeConfig(t, dir, "max_run_depth: 0\n")

	_, err := Load(dir)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigError, got %v", err)
	}
	if !strings.Contains(cfgErr.Error(), "max_run_depth") {
		t.Errorf("error = %v", cfgErr)
	}
}

func TestLoadRejectsMalformedYaml(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	writeConfig(t, dir, "driver: [unclosed\n")

	var cfgErr *ConfigError
	if _, err := Load(dir); !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func TestResolveRunsDirPrecedence(t *testing.T) {
	home := isolateHome(t)
	cwd := t.TempDir()

	cfg := Default()
	if got := cfg.ResolveRunsDir("/override", cwd); got != "/override" {
		t.Errorf("override ignored: %s", got)
	}

	cfg.RunsDir = "/from-file"
	if got := cfg.ResolveRunsDir("", cwd); got != "/from-file" {
		t.Errorf("file value ignored: %s", got)
	}

	cfg.RunsDir = ""
	if got := cfg.ResolveRunsDir("", cwd); got != filepath.Join(home, ".mill", "runs") {
		t.Errorf("home fallback = %s", got)
	}
}

func TestRunDepth(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"2", 2},
		{"junk", 0},
		{"-1", 0},
	}
	for _, tc := range cases {
		t.Setenv(DepthEnv, tc.raw)
		if got := RunDepth(); got != tc.want {
			t.Errorf("RunDepth(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestWriteStarter(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	path, err := WriteStarter(dir)
	if err != nil {
		t.Fatalf("WriteStarter: %v", err)
	}
	if path != filepath.Join(dir, ".mill", "config.yaml") {
		t.Errorf("path = %s", path)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("starter config should load cleanly: %v", err)
	}
	if cfg.Driver != "subprocess" || cfg.Executor != "bun" {
		t.Errorf("starter config = %s/%s", cfg.Driver, cfg.Executor)
	}

	if _, err := WriteStarter(dir); err == nil {
		t.Error("second WriteStarter should refuse to overwrite")
	}
}

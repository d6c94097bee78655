package cmd

import (
	"testing"

	"github.com/millrun/mill/config"
	"github.com/millrun/mill/driver"
)

func TestDriverRegistryIncludesStub(t *testing.T) {
	reg := buildDriverRegistry(config.Default())

	resolved, err := reg.Resolve("test")
	if err != nil {
		t.Fatalf("Resolve(test): %v", err)
	}
	if _, ok := resolved.Runtime.(*driver.StubDriver); !ok {
		t.Errorf("runtime = %T, want *driver.StubDriver", resolved.Runtime)
	}
}

func TestDriverRegistryConfigOverridesStub(t *testing.T) {
	cfg := config.Default()
	cfg.Drivers = map[string]config.CommandConfig{
		"test": {Command: []string{"my-agent", "--json"}},
	}

	resolved, err := buildDriverRegistry(cfg).Resolve("test")
	if err != nil {
		t.Fatalf("Resolve(test): %v", err)
	}
	if _, ok := resolved.Runtime.(*driver.SubprocessDriver); !ok {
		t.Errorf("runtime = %T, want *driver.SubprocessDriver", resolved.Runtime)
	}
}

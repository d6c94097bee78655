package host

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/millrun/mill/extension"
)

func TestGeneratePreludeInstallsMillGlobal(t *testing.T) {
	prelude := GeneratePrelude(nil)

	for _, want := range []string{
		`const __millSentinel = "__MILL_HOST__";`,
		`spawn: (input: unknown) => __millRequest({ requestType: "spawn", input }),`,
		"// --- user program ---",
	} {
		if !strings.Contains(prelude, want) {
			t.Errorf("prelude missing %q", want)
		}
	}
}

func TestGeneratePreludeExtensionMethodsSorted(t *testing.T) {
	noop := func(context.Context, []any) (any, error) { return nil, nil }
	prelude := GeneratePrelude([]*extension.Registration{{
		Name: "redis",
		API: map[string]extension.APIMethod{
			"publish": noop,
			"get":     noop,
		},
	}})

	get := strings.Index(prelude, "redis_get:")
	publish := strings.Index(prelude, "redis_publish:")
	if get < 0 || publish < 0 {
		t.Fatalf("extension methods missing from prelude:\n%s", prelude)
	}
	if get > publish {
		t.Error("extension methods should be sorted by name")
	}
	if !strings.Contains(prelude, `extensionName: "redis", methodName: "publish"`) {
		t.Error("extension request fields missing")
	}
}

func TestWriteHostFiles(t *testing.T) {
	runDir := t.TempDir()
	programPath := filepath.Join(t.TempDir(), "program.ts")
	program := "await mill.spawn({ agent: \"scout\" });\n"
	if err := os.WriteFile(programPath, []byte(program), 0o644); err != nil {
		t.Fatal(err)
	}

	hostPath, err := WriteHostFiles(runDir, "run_a", "bun", programPath, nil)
	if err != nil {
		t.Fatalf("WriteHostFiles: %v", err)
	}
	if hostPath != filepath.Join(runDir, HostFileName) {
		t.Errorf("host path = %s", hostPath)
	}

	marker, err := os.ReadFile(filepath.Join(runDir, MarkerFileName))
	if err != nil {
		t.Fatal(err)
	}
	wantMarker := "process-host:typescript\nrunId=run_a\nexecutor=bun\nprogramPath=" + programPath + "\n"
	if string(marker) != wantMarker {
		t.Errorf("marker = %q, want %q", marker, wantMarker)
	}

	source, err := os.ReadFile(hostPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(source), program) {
		t.Error("program body should be appended verbatim")
	}
	if !strings.Contains(string(source), "__millSentinel") {
		t.Error("prelude missing from host file")
	}
}

func TestWriteHostFilesMissingProgram(t *testing.T) {
	_, err := WriteHostFiles(t.TempDir(), "run_a", "bun", "/does/not/exist.ts", nil)
	if _, ok := err.(*ProgramHostError); !ok {
		t.Fatalf("want ProgramHostError, got %v", err)
	}
}

func TestRenderValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`"all done"`, "all done"},
		{`{"count":3}`, `{"count":3}`},
		{`42`, "42"},
		{`null`, ""},
		{``, ""},
	}
	for _, tc := range cases {
		if got := renderValue([]byte(tc.in)); got != tc.want {
			t.Errorf("renderValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

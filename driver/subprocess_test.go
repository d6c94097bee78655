package driver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/millrun/mill/types"
)

func shDriver(script string) *SubprocessDriver {
	return &SubprocessDriver{Name: "sh", Command: []string{"sh", "-c", script}}
}

func testRequest() Request {
	return Request{
		RunID:        "run_a",
		SpawnID:      "spawn_1",
		Agent:        "scout",
		SystemPrompt: "be concise",
		Prompt:       "hello",
		Model:        "m",
	}
}

func TestSubprocessSpawnParsesProtocol(t *testing.T) {
	d := shDriver(`
cat > /dev/null
echo 'raw thinking line'
echo '{"kind":"milestone","message":"planning"}'
echo '{"kind":"tool_call","toolName":"grep"}'
echo '{"not":"an event"}'
echo '{"kind":"result","result":{"text":"hi","sessionRef":"session/scout","agent":"scout","model":"m","driver":"sh","exitCode":0}}'
`)

	out, err := d.Spawn(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if len(out.Raw) != 2 {
		t.Errorf("raw lines = %v", out.Raw)
	}
	if len(out.Events) != 2 ||
		out.Events[0].Kind != KindMilestone || out.Events[0].Message != "planning" ||
		out.Events[1].Kind != KindToolCall || out.Events[1].ToolName != "grep" {
		t.Errorf("events = %+v", out.Events)
	}

	var result types.SpawnResult
	if err := json.Unmarshal(out.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Text != "hi" || result.SessionRef != "session/scout" {
		t.Errorf("result = %+v", result)
	}
}

func TestSubprocessSpawnDeliversRequestOnStdin(t *testing.T) {
	// The child echoes the agent field back as the session ref.
	d := shDriver(`
read request
agent=$(printf '%s' "$request" | sed 's/.*"agent":"\([^"]*\)".*/\1/')
printf '{"kind":"result","result":{"text":"","sessionRef":"session/%s","agent":"%s","model":"m","driver":"sh","exitCode":0}}\n' "$agent" "$agent"
`)

	out, err := d.Spawn(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	var result types.SpawnResult
	if err := json.Unmarshal(out.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result.SessionRef != "session/scout" {
		t.Errorf("sessionRef = %q, request not delivered", result.SessionRef)
	}
}

func TestSubprocessSpawnNonzeroExit(t *testing.T) {
	d := shDriver(`cat > /dev/null; echo "quota exceeded" >&2; exit 7`)
	_, err := d.Spawn(context.Background(), testRequest())
	if err == nil {
		t.Fatal("nonzero exit should fail")
	}
	if !strings.Contains(err.Error(), "exited with code 7") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error = %v", err)
	}
}

func TestSubprocessSpawnMissingResult(t *testing.T) {
	d := shDriver(`cat > /dev/null; echo "only raw output"`)
	_, err := d.Spawn(context.Background(), testRequest())
	if err == nil || !strings.Contains(err.Error(), "no result line") {
		t.Fatalf("want missing-result error, got %v", err)
	}
}

func TestSubprocessSpawnEmptyCommand(t *testing.T) {
	d := &SubprocessDriver{Name: "empty"}
	if _, err := d.Spawn(context.Background(), testRequest()); err == nil {
		t.Fatal("empty command should fail")
	}
}

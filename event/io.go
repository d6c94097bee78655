package event

// IoSource identifies the process that produced a tier-2 line.
type IoSource string

// IoStream identifies the stream the line arrived on.
type IoStream string

// Tier-2 source and stream constants.
const (
	IoSourceDriver  IoSource = "driver"
	IoSourceProgram IoSource = "program"

	IoStreamStdout IoStream = "stdout"
	IoStreamStderr IoStream = "stderr"
)

// IoStreamEvent is one ephemeral line of driver or program output.
// Broadcast via the observer hub, never persisted.
type IoStreamEvent struct {
	RunID     string   `json:"runId"`
	Source    IoSource `json:"source"`
	Stream    IoStream `json:"stream"`
	Line      string   `json:"line"`
	Timestamp string   `json:"timestamp"`
	SpawnID   string   `json:"spawnId,omitempty"`
}

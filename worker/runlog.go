package worker

import (
	"time"

	"github.com/millrun/mill/iox"
	"github.com/millrun/mill/log"
)

// runLog appends timestamped entries to a text log. Append failures are
// logged and dropped; the log is informational and never fails the run.
type runLog struct {
	path   string
	clock  func() time.Time
	logger *log.Logger
}

func newRunLog(path string, clock func() time.Time, logger *log.Logger) *runLog {
	return &runLog{path: path, clock: clock, logger: logger}
}

func (l *runLog) append(message string) {
	if err := iox.AppendLogLine(l.path, l.clock(), message); err != nil {
		l.logger.Warn("append run log", map[string]any{"path": l.path, "error": err.Error()})
	}
}

// Package iox provides I/O helpers for resource cleanup and append-only
// text logs.
package iox

import (
	"fmt"
	"io"
	"os"
	"time"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup and b.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Flush) where errors are unactionable:
//
//	defer iox.DiscardErr(w.Flush)
func DiscardErr(fn func() error) { _ = fn() }

// AppendLogLine appends one "<iso-timestamp> <message>\n" entry to the text
// log at path, creating the file if needed.
func AppendLogLine(path string, timestamp time.Time, message string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer DiscardClose(f)
	_, err = fmt.Fprintf(f, "%s %s\n", timestamp.UTC().Format(time.RFC3339Nano), message)
	return err
}

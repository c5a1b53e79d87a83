package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// TestLogEntry records a single log call made against a TestLogger
type TestLogEntry struct {
	Severity string
	Message  string
}

// TestLogger records log entries so tests can assert on them.
// Safe for concurrent use.
type TestLogger struct {
	mu       sync.Mutex
	metadata map[string]interface{}
	entries  []TestLogEntry
}

var _ Logger = (*TestLogger)(nil)

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

// Entries returns a copy of all recorded log entries
func (c *TestLogger) Entries() []TestLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TestLogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Contains reports whether any recorded entry at the given severity
// contains substr in its message
func (c *TestLogger) Contains(severity, substr string) bool {
	for _, e := range c.Entries() {
		if e.Severity == severity && strings.Contains(strings.ToLower(e.Message), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

func (c *TestLogger) record(severity, msg string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, TestLogEntry{severity, fmt.Sprintf(msg, args...)})
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = mergeMetadata(c.metadata, metadata)
	return c
}

func (c *TestLogger) WithPrefix(prefix string) Logger { return c }

func (c *TestLogger) Trace(msg string, args ...interface{}) { c.record("TRACE", msg, args...) }
func (c *TestLogger) Debug(msg string, args ...interface{}) { c.record("DEBUG", msg, args...) }
func (c *TestLogger) Info(msg string, args ...interface{})  { c.record("INFO", msg, args...) }
func (c *TestLogger) Warn(msg string, args ...interface{})  { c.record("WARNING", msg, args...) }
func (c *TestLogger) Error(msg string, args ...interface{}) { c.record("ERROR", msg, args...) }

func (c *TestLogger) Fatal(msg string, args ...interface{}) {
	c.record("FATAL", msg, args...)
	os.Exit(1)
}

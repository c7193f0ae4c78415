package main

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// EventLogger writes timestamped events to a file: connectivity transitions,
// strikes, dropped triggers and peripheral write failures. It is safe for
// concurrent use.
type EventLogger struct {
	filePath string
	mu       sync.Mutex
}

// NewEventLogger creates a logger writing to filePath.
func NewEventLogger(filePath string) *EventLogger {
	return &EventLogger{filePath: filePath}
}

// Log writes a single event with timestamp. Errors are not returned but
// printed to standard error; losing a log line must not take the gong down.
func (el *EventLogger) Log(format string, args ...any) {
	el.mu.Lock()
	defer el.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format(time.RFC3339)
	line := fmt.Sprintf("%s - %s\n", ts, msg)
	f, err := os.OpenFile(el.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log error: %v\n", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		fmt.Fprintf(os.Stderr, "log write error: %v\n", err)
	}
}

// Tail returns up to n trailing bytes of the event log for the HTTP API.
func (el *EventLogger) Tail(n int64) (string, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	f, err := os.Open(el.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	off := st.Size() - n
	if off < 0 {
		off = 0
	}
	buf := make([]byte, st.Size()-off)
	if _, err := f.ReadAt(buf, off); err != nil {
		return "", err
	}
	return string(buf), nil
}

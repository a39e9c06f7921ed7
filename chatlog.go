package main

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"
)

// ChatLog is a rolling in-memory buffer of recent mainchat lines plus an
// append-only on-disk log, for operator review (`!last`-style commands)
// and post-incident audit. Grounded on the teacher's ChannelRecorder: a
// mutex-guarded struct wrapping an *os.File, started once and fed lines
// for the life of the process, generalized from a fixed-duration binary
// recording into an unbounded text log with a bounded in-memory tail.
type ChatLog struct {
	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	lines   []string
	maxTail int
}

// NewChatLog opens (creating if necessary) the mainchat log file at path,
// appending to any existing content.
func NewChatLog(path string, maxTail int) (*ChatLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chat log: %w", err)
	}
	return &ChatLog{
		file:    f,
		w:       bufio.NewWriter(f),
		maxTail: maxTail,
	}, nil
}

// Append records one mainchat line, writing it to disk and keeping it in
// the bounded in-memory tail.
func (c *ChatLog) Append(nick, text string) {
	line := fmt.Sprintf("[%s] <%s> %s", time.Now().Format(time.RFC3339), nick, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.w, line)
	_ = c.w.Flush()

	c.lines = append(c.lines, line)
	if len(c.lines) > c.maxTail {
		c.lines = c.lines[len(c.lines)-c.maxTail:]
	}
}

// Tail returns up to n of the most recent logged lines.
func (c *ChatLog) Tail(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.lines) {
		n = len(c.lines)
	}
	out := make([]string, n)
	copy(out, c.lines[len(c.lines)-n:])
	return out
}

// Close flushes and closes the underlying file.
func (c *ChatLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.w.Flush()
	return c.file.Close()
}

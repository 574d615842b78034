/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent process log lines in memory
// so the dashboard can show them without shell access to the host.
package logbuffer

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is a single captured log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries. It implements
// io.Writer so it can sit behind zerolog as an additional sink.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

// New creates a log buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 5000
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Write parses a zerolog JSON line into an entry. Unparseable lines are
// stored raw in the message field; the Write contract never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	var raw map[string]any
	entry := Entry{Timestamp: time.Now().UTC()}

	if err := json.Unmarshal(p, &raw); err != nil {
		entry.Message = string(p)
	} else {
		if v, ok := raw["level"].(string); ok {
			entry.Level = v
			delete(raw, "level")
		}
		if v, ok := raw["message"].(string); ok {
			entry.Message = v
			delete(raw, "message")
		}
		if v, ok := raw["component"].(string); ok {
			entry.Component = v
			delete(raw, "component")
		}
		if ts, ok := raw["time"].(float64); ok {
			entry.Timestamp = time.Unix(int64(ts), 0).UTC()
			delete(raw, "time")
		}
		if len(raw) > 0 {
			entry.Fields = raw
		}
	}

	b.Add(entry)
	return len(p), nil
}

// Add appends an entry, evicting the oldest when full.
func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Recent returns up to n entries, oldest first. n <= 0 returns all.
func (b *Buffer) Recent(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > b.count {
		n = b.count
	}

	start := b.head - n
	if b.count < b.capacity {
		start = b.count - n
	}
	if start < 0 {
		start += b.capacity
	}

	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = b.entries[(start+i)%b.capacity]
	}
	return out
}

// Len reports how many entries are buffered.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

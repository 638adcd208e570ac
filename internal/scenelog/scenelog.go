// Package scenelog implements the Scene Log: the append-only, bounded
// record of timestamped scene-analysis text that the video path writes and
// the voice path reads as conversational context.
//
// The log is the only long-lived state shared between the two paths. It has
// exactly one writer (the analysis-text link loop) and any number of
// snapshot readers (turn pipelines); readers get copies and can never
// observe a partially written entry or block the writer.
package scenelog

import (
	"sync"
	"time"
)

// Entry is one scene-analysis record. Entries reference the frames they
// were derived from only by time; the frames themselves are never retained.
type Entry struct {
	// Text is the analysis text as received, UTF-8.
	Text string

	// Time is when the entry was appended, not when the analysis ran.
	Time time.Time
}

// Log is an append-only ordered record bounded by entry count and age.
// Oldest entries are evicted on append. All methods are safe for
// concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
	maxAge  time.Duration
}

// New creates a Log retaining at most maxSize entries, evicting entries
// older than maxAge. A maxAge of zero disables age-based eviction.
func New(maxSize int, maxAge time.Duration) *Log {
	return &Log{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
		maxAge:  maxAge,
	}
}

// Append adds an entry stamped with the current time and evicts entries
// beyond the configured bounds. Duplicate text is appended as-is: the log
// records what arrived, and deduplication is explicitly not its job.
func (l *Log) Append(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{Text: text, Time: time.Now()})
	l.evict()
}

// Recent returns up to n of the newest entries in chronological order
// (oldest first). Non-positive n yields an empty slice. The result is a
// copy: later appends never mutate a snapshot already handed out.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Len returns the current number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// evict removes entries that are too old or beyond maxSize.
// Must be called with l.mu held.
//
// Survivors are copied to a fresh backing array so evicted entries do not
// pin memory for the life of the process.
func (l *Log) evict() {
	start := 0
	if l.maxAge > 0 {
		cutoff := time.Now().Add(-l.maxAge)
		for start < len(l.entries) && l.entries[start].Time.Before(cutoff) {
			start++
		}
	}

	keep := l.entries[start:]
	if len(keep) > l.maxSize {
		keep = keep[len(keep)-l.maxSize:]
	}

	if start > 0 || len(keep) < len(l.entries) {
		fresh := make([]Entry, len(keep), l.maxSize)
		copy(fresh, keep)
		l.entries = fresh
	}
}

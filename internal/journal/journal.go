// Package journal records the outcome of every dispatched job.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one dispatched job.
type Entry struct {
	ID         string        `json:"id"`
	RequestID  string        `json:"requestId,omitempty"`
	Mode       string        `json:"mode"`
	Site       string        `json:"site"`
	Code       int           `json:"code"`
	Message    string        `json:"message,omitempty"`
	Duration   time.Duration `json:"durationNs"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// NewID returns a time-ordered identifier for an entry.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Nop discards entries.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Entry) error { return nil }

// Multi fans an entry out to every recorder and joins their errors.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, entry Entry) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ring keeps the most recent entries in memory.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRing creates a ring holding up to size entries. Size <= 0 keeps nothing.
func NewRing(size int) *Ring {
	if size < 0 {
		size = 0
	}
	return &Ring{entries: make([]Entry, size)}
}

// Record implements Recorder.
func (r *Ring) Record(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent returns up to n entries, newest first. n <= 0 returns everything held.
func (r *Ring) Recent(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.next
	if r.full {
		size = len(r.entries)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}

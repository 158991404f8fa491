package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("not found")

// LedgerIOError reports a failure reading or writing durable ledger state.
type LedgerIOError struct {
	Op  string
	Err error
}

func (e *LedgerIOError) Error() string { return fmt.Sprintf("ledger %s: %v", e.Op, e.Err) }
func (e *LedgerIOError) Unwrap() error { return e.Err }

// Backend is the durable store behind a Ledger.
type Backend interface {
	LoadKeys(ctx context.Context) ([]string, error)
	AppendKeys(ctx context.Context, keys []string) error
	Close() error
}

// HistoryEntry describes one published candidate.
type HistoryEntry struct {
	URL      string
	Title    string
	Score    float64
	PostID   string
	PostedAt time.Time
}

// HistoryWriter is implemented by backends that keep a publish history.
type HistoryWriter interface {
	WriteHistory(ctx context.Context, entry HistoryEntry) error
}

// Ledger is the set of already-published keys. Reads are served from memory;
// Record makes a key visible immediately and Persist makes it durable.
type Ledger struct {
	backend Backend
	mu      sync.Mutex
	keys    map[string]struct{}
	pending []string
}

// NewLedger creates an empty ledger over the given backend. Call Load before use.
func NewLedger(backend Backend) *Ledger {
	return &Ledger{
		backend: backend,
		keys:    make(map[string]struct{}),
	}
}

// Load replaces the in-memory set with the backend's keys, keeping any
// recorded keys that are not yet persisted. It returns a copy of the set.
func (l *Ledger) Load(ctx context.Context) (map[string]struct{}, error) {
	stored, err := l.backend.LoadKeys(ctx)
	if err != nil {
		return nil, &LedgerIOError{Op: "load", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make(map[string]struct{}, len(stored)+len(l.pending))
	for _, k := range stored {
		keys[k] = struct{}{}
	}
	for _, k := range l.pending {
		keys[k] = struct{}{}
	}
	l.keys = keys

	out := make(map[string]struct{}, len(keys))
	for k := range keys {
		out[k] = struct{}{}
	}
	return out, nil
}

// Contains reports whether key has been recorded.
func (l *Ledger) Contains(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keys[key]
	return ok
}

// Record adds key to the set. Recording a present key is a no-op.
func (l *Ledger) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; ok {
		return
	}
	l.keys[key] = struct{}{}
	l.pending = append(l.pending, key)
}

// Persist writes recorded keys to the backend. Keys stay pending on failure
// so a later Persist can retry.
func (l *Ledger) Persist(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil
	}
	if err := l.backend.AppendKeys(ctx, l.pending); err != nil {
		return &LedgerIOError{Op: "persist", Err: err}
	}
	l.pending = nil
	return nil
}

// WriteHistory records a publish in the backend's history, if it keeps one.
func (l *Ledger) WriteHistory(ctx context.Context, entry HistoryEntry) error {
	hw, ok := l.backend.(HistoryWriter)
	if !ok {
		return nil
	}
	if err := hw.WriteHistory(ctx, entry); err != nil {
		return &LedgerIOError{Op: "write history", Err: err}
	}
	return nil
}

// Len returns the number of keys in the set.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Close closes the backend.
func (l *Ledger) Close() error {
	return l.backend.Close()
}

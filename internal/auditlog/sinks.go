package auditlog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemorySink keeps entries in memory. Used in tests and local runs.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, entry Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

// Entries returns a copy of everything written so far.
func (s *MemorySink) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *MemorySink) ListByCorrelation(_ context.Context, correlationID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MultiSink fans an entry out to several sinks. Every sink is attempted.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, entry Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

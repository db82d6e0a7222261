package otp

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Record
	tuples map[string][]string
}

// NewMemoryStore builds an in-process code store for tests and local runs.
func NewMemoryStore() Store {
	return &memoryStore{
		byID:   make(map[string]*Record),
		tuples: make(map[string][]string),
	}
}

func tupleKey(target string, channel Channel, purpose Purpose) string {
	return string(channel) + "|" + string(purpose) + "|" + target
}

func (s *memoryStore) Insert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := rec
	s.byID[rec.ID] = &stored
	key := tupleKey(rec.Target, rec.Channel, rec.Purpose)
	s.tuples[key] = append(s.tuples[key], rec.ID)
	return nil
}

func (s *memoryStore) FindLatest(_ context.Context, target string, channel Channel, purpose Purpose) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.tuples[tupleKey(target, channel, purpose)]
	if len(ids) == 0 {
		return Record{}, ErrNotFound
	}
	rec := *s.byID[ids[len(ids)-1]]
	if rec.ConsumedAt != nil {
		at := *rec.ConsumedAt
		rec.ConsumedAt = &at
	}
	return rec, nil
}

func (s *memoryStore) MarkConsumed(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok || rec.ConsumedAt != nil {
		return false, nil
	}
	ids := s.tuples[tupleKey(rec.Target, rec.Channel, rec.Purpose)]
	if ids[len(ids)-1] != id {
		return false, nil
	}
	rec.ConsumedAt = &at
	return true, nil
}

package memory

import (
	"context"
	"sort"
	"sync"

	"sentrybot/internal/auditlog"
)

// InMemoryStore is an append-only record store for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []auditlog.Record
	nextID  int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

// Append stores a copy of the record and assigns the next id.
func (s *InMemoryStore) Append(_ context.Context, record auditlog.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = s.nextID
	s.nextID++
	record.Details = append(auditlog.Details(nil), record.Details...)
	s.records = append(s.records, record)
	return record.ID, nil
}

// All returns every stored record in commit order.
func (s *InMemoryStore) All() []auditlog.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]auditlog.Record{}, s.records...)
}

// ListRecent returns the newest records first, at most limit of them.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]auditlog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]auditlog.Record{}, s.records...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByCommunity returns the newest records of one community first.
func (s *InMemoryStore) ListByCommunity(_ context.Context, communityID string, limit int) ([]auditlog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []auditlog.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].CommunityID != communityID {
			continue
		}
		out = append(out, s.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// CountByType returns how many records of each event type were stored.
func (s *InMemoryStore) CountByType(_ context.Context) (map[auditlog.EventType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[auditlog.EventType]int64)
	for _, r := range s.records {
		counts[r.EventType]++
	}
	return counts, nil
}

// Ping always succeeds.
func (s *InMemoryStore) Ping(_ context.Context) error {
	return nil
}

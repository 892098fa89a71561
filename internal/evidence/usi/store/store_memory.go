package store

import (
	"context"
	"sync"

	"usiverify/pkg/domain"
	"usiverify/pkg/platform/sentinel"
	"usiverify/pkg/requestcontext"
)

// InMemoryStore keeps USI records in process. Suitable for tests and single-node deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.UserID]Record
	owners  map[string]domain.UserID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[domain.UserID]Record),
		owners:  make(map[string]domain.UserID),
	}
}

// ExistsForOtherUser reports whether usi is stored for any user other than userID.
func (s *InMemoryStore) ExistsForOtherUser(_ context.Context, usi string, userID domain.UserID) (bool, error) {
	key, ok := uniqueKey(usi)
	if !ok {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, found := s.owners[key]
	return found && owner != userID, nil
}

// Save upserts the user's value. Returns sentinel.ErrConflict if another user holds the same USI.
func (s *InMemoryStore) Save(ctx context.Context, userID domain.UserID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, unique := uniqueKey(value)
	if unique {
		value = key
		if owner, found := s.owners[key]; found && owner != userID {
			return sentinel.ErrConflict
		}
	}
	if prev, ok := s.records[userID]; ok {
		if prevKey, prevUnique := uniqueKey(prev.Value); prevUnique {
			delete(s.owners, prevKey)
		}
	}
	s.records[userID] = Record{UserID: userID, Value: value, UpdatedAt: requestcontext.Now(ctx)}
	if unique {
		s.owners[key] = userID
	}
	return nil
}

// Find returns the user's record or sentinel.ErrNotFound.
func (s *InMemoryStore) Find(_ context.Context, userID domain.UserID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}

// Delete removes the user's record. Missing records are not an error.
func (s *InMemoryStore) Delete(_ context.Context, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[userID]; ok {
		if key, unique := uniqueKey(prev.Value); unique {
			delete(s.owners, key)
		}
		delete(s.records, userID)
	}
	return nil
}

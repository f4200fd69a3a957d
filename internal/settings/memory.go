package settings

import (
	"context"
	"sync"

	"github.com/cartline/shipping/pkg/carrier"
)

// MemoryStore is an in-memory settings store for tests and DB-less runs.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *Record

	// FailReads forces lookups to fail, simulating a settings-store outage.
	FailReads error
}

// NewMemoryStore creates an empty in-memory settings store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CarrierSettings returns the stored record, or nil when none exists.
func (s *MemoryStore) CarrierSettings(ctx context.Context) (*carrier.Settings, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailReads != nil {
		return nil, s.FailReads
	}
	return toCarrier(s.rec), nil
}

// Save replaces the settings record.
func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &rec
	return nil
}

var _ Store = (*MemoryStore)(nil)

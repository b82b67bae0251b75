package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/betbot/traderelay/internal/domain"
)

// MemoryStore keeps records in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	byHandle map[string]*domain.Order
	byOrder  map[int64]string

	// Writes counts successful Create/Update calls.
	Writes int
	// ErrorOnNext injects one failure per operation name ("find", "create", "update").
	ErrorOnNext map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHandle:    make(map[string]*domain.Order),
		byOrder:     make(map[int64]string),
		ErrorOnNext: make(map[string]error),
	}
}

func (s *MemoryStore) injected(op string) error {
	if err, ok := s.ErrorOnNext[op]; ok {
		delete(s.ErrorOnNext, op)
		return err
	}
	return nil
}

func (s *MemoryStore) FindByOrderID(ctx context.Context, orderID int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("find"); err != nil {
		return domain.Order{}, lookupError("memory: find", err)
	}
	handle, ok := s.byOrder[orderID]
	if !ok {
		return domain.Order{}, ErrRecordNotFound
	}
	return *s.byHandle[handle], nil
}

func (s *MemoryStore) Create(ctx context.Context, order domain.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("create"); err != nil {
		return "", writeError("memory: create", err)
	}
	if _, exists := s.byOrder[order.OrderID]; exists {
		return "", writeError("memory: create", fmt.Errorf("order %d already has a record", order.OrderID))
	}

	handle := uuid.NewString()
	order.RecordHandle = handle
	s.byHandle[handle] = &order
	s.byOrder[order.OrderID] = handle
	s.Writes++
	return handle, nil
}

func (s *MemoryStore) Update(ctx context.Context, recordHandle string, changes domain.Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("update"); err != nil {
		return writeError("memory: update", err)
	}
	o, ok := s.byHandle[recordHandle]
	if !ok {
		return writeError("memory: update", fmt.Errorf("unknown record %q", recordHandle))
	}
	changes.Apply(o)
	s.Writes++
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHandle)
}

func (s *MemoryStore) Close() error { return nil }

package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

// MemoryStore is a map-backed Store for tests and single-process runs.
type MemoryStore struct {
	mu    sync.RWMutex
	swaps map[uuid.UUID]swap.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{swaps: map[uuid.UUID]swap.Record{}}
}

func (s *MemoryStore) CreateSwap(_ context.Context, rec *swap.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.swaps[rec.SwapID]; ok {
		return fmt.Errorf("swap %s already exists", rec.SwapID)
	}
	s.swaps[rec.SwapID] = *rec
	return nil
}

func (s *MemoryStore) UpdateSwap(_ context.Context, rec *swap.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.swaps[rec.SwapID]; !ok {
		return swap.ErrNotFound
	}
	s.swaps[rec.SwapID] = *rec
	return nil
}

func (s *MemoryStore) GetSwap(_ context.Context, swapID uuid.UUID) (*swap.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.swaps[swapID]
	if !ok {
		return nil, swap.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) GetSwapByBid(_ context.Context, bidID uuid.UUID) (*swap.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.swaps {
		if rec.BidID == bidID {
			out := rec
			return &out, nil
		}
	}
	return nil, swap.ErrNotFound
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*swap.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*swap.Record
	for _, rec := range s.swaps {
		if rec.State.Terminal() {
			continue
		}
		r := rec
		out = append(out, &r)
	}
	return out, nil
}

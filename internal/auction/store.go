package auction

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

// Store persists intents and bids. Bid records survive restarts so an
// auction can resume; UpsertBid enforces one active bid per resolver per
// intent, replacing on resubmission.
type Store interface {
	CreateIntent(ctx context.Context, intent *swap.Intent) error
	UpdateIntent(ctx context.Context, intent *swap.Intent) error
	GetIntent(ctx context.Context, intentID uuid.UUID) (*swap.Intent, error)

	UpsertBid(ctx context.Context, bid *swap.Bid) error
	UpdateBid(ctx context.Context, bid *swap.Bid) error
	ActiveBids(ctx context.Context, intentID uuid.UUID) ([]*swap.Bid, error)
	DeactivateBids(ctx context.Context, intentID uuid.UUID) error
}

// MemoryStore is a map-backed Store for tests and single-process runs.
type MemoryStore struct {
	mu      sync.RWMutex
	intents map[uuid.UUID]swap.Intent
	bids    map[uuid.UUID]swap.Bid
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents: map[uuid.UUID]swap.Intent{},
		bids:    map[uuid.UUID]swap.Bid{},
	}
}

func (s *MemoryStore) CreateIntent(_ context.Context, intent *swap.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[intent.ID]; ok {
		return fmt.Errorf("intent %s already exists", intent.ID)
	}
	s.intents[intent.ID] = *intent
	return nil
}

func (s *MemoryStore) UpdateIntent(_ context.Context, intent *swap.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[intent.ID]; !ok {
		return swap.ErrIntentNotFound
	}
	s.intents[intent.ID] = *intent
	return nil
}

func (s *MemoryStore) GetIntent(_ context.Context, intentID uuid.UUID) (*swap.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	intent, ok := s.intents[intentID]
	if !ok {
		return nil, swap.ErrIntentNotFound
	}
	out := intent
	return &out, nil
}

func (s *MemoryStore) UpsertBid(_ context.Context, bid *swap.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Supersede the resolver's existing active bid on this intent.
	for id, b := range s.bids {
		if b.IntentID == bid.IntentID && b.ResolverID == bid.ResolverID && b.Active {
			b.Active = false
			s.bids[id] = b
		}
	}
	s.bids[bid.ID] = *bid
	return nil
}

func (s *MemoryStore) UpdateBid(_ context.Context, bid *swap.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[bid.ID]; !ok {
		return fmt.Errorf("bid %s not found", bid.ID)
	}
	s.bids[bid.ID] = *bid
	return nil
}

func (s *MemoryStore) ActiveBids(_ context.Context, intentID uuid.UUID) ([]*swap.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*swap.Bid
	for _, b := range s.bids {
		if b.IntentID == intentID && b.Active {
			bid := b
			out = append(out, &bid)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeactivateBids(_ context.Context, intentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.bids {
		if b.IntentID == intentID && b.Active {
			b.Active = false
			s.bids[id] = b
		}
	}
	return nil
}

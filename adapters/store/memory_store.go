package store

import (
	"context"
	"sync"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
)

// MemoryStore is an in-memory implementation of the ChallengeStore interface
type MemoryStore struct {
	challenges map[string]core.Challenge
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory challenge store
func NewMemoryStore() ports.ChallengeStore {
	return &MemoryStore{
		challenges: make(map[string]core.Challenge),
	}
}

// Put stores the challenge, replacing any live one for the address
func (s *MemoryStore) Put(ctx context.Context, ch *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[ch.Address] = *ch

	// Drop long-dead entries so the map does not grow without bound
	cutoff := ch.IssuedAt.Add(-core.ChallengeTTL)
	for addr, c := range s.challenges {
		if c.ExpiresAt.Before(cutoff) {
			delete(s.challenges, addr)
		}
	}
	return nil
}

// Get loads the challenge for an address
func (s *MemoryStore) Get(ctx context.Context, address string) (*core.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.challenges[address]
	if !ok {
		return nil, core.ErrChallengeMissing
	}
	return &c, nil
}

// Delete removes the challenge for an address
func (s *MemoryStore) Delete(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, address)
	return nil
}

// Consume deletes the challenge if it still carries nonce
func (s *MemoryStore) Consume(ctx context.Context, address, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[address]
	if !ok || c.Nonce != nonce {
		return false, nil
	}
	delete(s.challenges, address)
	return true, nil
}

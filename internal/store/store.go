// Package store holds the latest published market state.
//
// Store maps every configured (instrument, timeframe) key to its latest
// MarketSnapshot and keeps the latest account posture with its derived risk
// profile. All access goes through short critical sections that only swap or
// copy references; snapshots are cloned on the way in and on the way out so a
// reader never shares backing arrays with the writer.
package store

import (
	"errors"
	"fmt"
	"sync"

	"signal-engine/internal/model"
	"signal-engine/internal/risk"
)

var (
	// ErrUnknownKey is returned when updating a key outside the configured set.
	ErrUnknownKey = errors.New("unknown instrument/timeframe key")

	// ErrStaleSnapshot is returned when a snapshot from an older cycle would
	// overwrite a newer one.
	ErrStaleSnapshot = errors.New("snapshot older than stored cycle")
)

// State is an independent copy of the full store contents.
type State struct {
	Markets map[model.Key]model.MarketSnapshot
	Account *model.AccountPosture
	Risk    model.RiskProfile
}

// Store is the concurrency-safe state store.
type Store struct {
	mu      sync.RWMutex
	keys    map[model.Key]struct{}
	markets map[model.Key]model.MarketSnapshot
	account *model.AccountPosture
	risk    model.RiskProfile
}

// New creates a store accepting exactly the given keys.
func New(keys []model.Key) *Store {
	allowed := make(map[model.Key]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	return &Store{
		keys:    allowed,
		markets: make(map[model.Key]model.MarketSnapshot, len(keys)),
		risk:    risk.ProfileForBalance(0),
	}
}

// Keys returns the configured key set.
func (s *Store) Keys() []model.Key {
	out := make([]model.Key, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}

// Update replaces the snapshot for key.
func (s *Store) Update(key model.Key, snap model.MarketSnapshot) error {
	if _, ok := s.keys[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	owned := snap.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.markets[key]; ok && owned.Cycle < cur.Cycle {
		return fmt.Errorf("%w: %s cycle %d < %d", ErrStaleSnapshot, key, owned.Cycle, cur.Cycle)
	}
	s.markets[key] = owned
	return nil
}

// UpdateAccount replaces the account posture and recomputes the risk profile.
func (s *Store) UpdateAccount(acct model.AccountPosture) {
	profile := risk.ProfileForBalance(acct.Balance)

	s.mu.Lock()
	s.account = &acct
	s.risk = profile
	s.mu.Unlock()
}

// Get returns a copy of the snapshot for key.
func (s *Store) Get(key model.Key) (model.MarketSnapshot, bool) {
	s.mu.RLock()
	snap, ok := s.markets[key]
	s.mu.RUnlock()
	if !ok {
		return model.MarketSnapshot{}, false
	}
	return snap.Clone(), true
}

// Account returns a copy of the account posture (nil before the first
// update) and the current risk profile.
func (s *Store) Account() (*model.AccountPosture, model.RiskProfile) {
	s.mu.RLock()
	acct, profile := s.account, s.risk
	s.mu.RUnlock()
	if acct == nil {
		return nil, profile
	}
	cp := *acct
	return &cp, profile
}

// ReadAll returns an independent copy of the full state.
func (s *Store) ReadAll() State {
	s.mu.RLock()
	markets := make(map[model.Key]model.MarketSnapshot, len(s.markets))
	for k, v := range s.markets {
		markets[k] = v
	}
	acct, profile := s.account, s.risk
	s.mu.RUnlock()

	for k, v := range markets {
		markets[k] = v.Clone()
	}
	st := State{Markets: markets, Risk: profile}
	if acct != nil {
		cp := *acct
		st.Account = &cp
	}
	return st
}

// Package sqlite serves recorded bars, ticks and account data as a
// model.DataSource, for replaying a captured session.
package sqlite

import (
	"context"
	"sync"

	"signal-engine/internal/model"
	"signal-engine/internal/source"
	sqlitestore "signal-engine/internal/store/sqlite"
)

// Source reads from a sqlitestore.DB. Closing the database is left to its owner.
type Source struct {
	db *sqlitestore.DB

	mu        sync.RWMutex
	connected bool
}

// New wraps db.
func New(db *sqlitestore.DB) *Source {
	return &Source{db: db}
}

// Connect verifies the database is reachable.
func (s *Source) Connect(ctx context.Context) error {
	if err := s.db.SQL().PingContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *Source) Disconnect() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *Source) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return source.ErrNotConnected
	}
	return nil
}

func (s *Source) AccountInfo(ctx context.Context) (*model.AccountPosture, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.db.ReadAccount(ctx)
}

func (s *Source) LatestTick(ctx context.Context, instrument string) (model.OptionalFloat, error) {
	if err := s.ready(); err != nil {
		return model.None(), err
	}
	return s.db.LatestTick(ctx, instrument)
}

func (s *Source) Bars(ctx context.Context, instrument string, tf, count int) ([]model.Bar, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.db.ReadBars(ctx, instrument, tf, count)
}

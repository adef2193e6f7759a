package model

import (
	"context"
)

// ── Port Interfaces ──
// These interfaces decouple the refresh pipeline from concrete market data
// connections (mock, broker REST, SQLite) and from downstream publishers
// (Redis mirror, websocket hub).

// DataSource is the upstream market-data connection.
type DataSource interface {
	// Connect establishes the session. An error here aborts loop start.
	Connect(ctx context.Context) error

	// Disconnect releases the session.
	Disconnect() error

	// AccountInfo returns the current account posture, or nil when unavailable.
	AccountInfo(ctx context.Context) (*AccountPosture, error)

	// LatestTick returns the latest traded price; absent when no tick exists.
	LatestTick(ctx context.Context, instrument string) (OptionalFloat, error)

	// Bars returns up to count recent bars for the timeframe, oldest first.
	Bars(ctx context.Context, instrument string, timeframeMinutes, count int) ([]Bar, error)
}

// SnapshotSink receives every snapshot after it has been written to the
// state store. Implementations must not retain or mutate the snapshot's slices.
type SnapshotSink interface {
	PublishSnapshot(ctx context.Context, key Key, snap MarketSnapshot) error
}

// AccountSink is implemented by snapshot sinks that also record the account
// posture fetched at the start of each cycle.
type AccountSink interface {
	PublishAccount(ctx context.Context, acct AccountPosture) error
}

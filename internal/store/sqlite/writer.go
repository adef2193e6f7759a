// Package sqlite stores bars, ticks and the account posture in SQLite.
//
// The tables serve two roles: a recorder sink that captures every published
// snapshot, and the backing store of the replay data source.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"signal-engine/internal/model"
)

// DB wraps the SQLite connection.
type DB struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path with WAL mode and
// ensures the schema exists.
func Open(path string, log zerolog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log = log.With().Str("component", "sqlite").Logger()
	log.Info().Str("path", path).Msg("opened database")
	return &DB{db: db, log: log}, nil
}

// SQL returns the underlying sql.DB for health checks.
func (d *DB) SQL() *sql.DB { return d.db }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			instrument TEXT    NOT NULL,
			tf         INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			PRIMARY KEY (instrument, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS ticks (
			instrument TEXT    PRIMARY KEY,
			price      REAL    NOT NULL,
			ts         INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS account (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			balance     REAL    NOT NULL,
			equity      REAL    NOT NULL,
			free_margin REAL    NOT NULL,
			leverage    INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		);
	`)
	return err
}

// InsertBars upserts bars for one instrument/timeframe in a single transaction.
func (d *DB) InsertBars(ctx context.Context, instrument string, tf int, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (instrument, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, instrument, tf, b.Time.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert bar %s@%dm %d: %w", instrument, tf, b.Time.Unix(), err)
		}
	}
	return tx.Commit()
}

// SetTick replaces the latest tick for an instrument.
func (d *DB) SetTick(ctx context.Context, t model.Tick) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ticks (instrument, price, ts) VALUES (?, ?, ?)
	`, t.Instrument, t.Price, t.TickTS.Unix())
	return err
}

// SetAccount replaces the stored account posture.
func (d *DB) SetAccount(ctx context.Context, a model.AccountPosture) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO account (id, balance, equity, free_margin, leverage, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
	`, a.Balance, a.Equity, a.FreeMargin, a.Leverage, time.Now().Unix())
	return err
}

// PublishSnapshot records the snapshot's bars and last price, so a later run
// can replay them through the SQLite data source.
func (d *DB) PublishSnapshot(ctx context.Context, key model.Key, snap model.MarketSnapshot) error {
	if err := d.InsertBars(ctx, key.Instrument, key.Timeframe, snap.Bars); err != nil {
		return err
	}
	if p, ok := snap.LastPrice.Get(); ok {
		return d.SetTick(ctx, model.Tick{Instrument: key.Instrument, Price: p, TickTS: snap.UpdatedAt})
	}
	return nil
}

// PublishAccount records the account posture.
func (d *DB) PublishAccount(ctx context.Context, acct model.AccountPosture) error {
	return d.SetAccount(ctx, acct)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

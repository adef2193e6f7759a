package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signal-engine/internal/model"
)

// ReadBars returns the trailing count bars for instrument/tf, oldest first.
func (d *DB) ReadBars(ctx context.Context, instrument string, tf, count int) ([]model.Bar, error) {
	if count <= 0 {
		return nil, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM bars
			WHERE instrument = ? AND tf = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, instrument, tf, count)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	bars := make([]model.Bar, 0, count)
	for rows.Next() {
		var b model.Bar
		var ts int64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.Time = time.Unix(ts, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestTick returns the stored tick price, absent if none.
func (d *DB) LatestTick(ctx context.Context, instrument string) (model.OptionalFloat, error) {
	var price float64
	err := d.db.QueryRowContext(ctx, `SELECT price FROM ticks WHERE instrument = ?`, instrument).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return model.None(), nil
	}
	if err != nil {
		return model.None(), fmt.Errorf("sqlite query tick: %w", err)
	}
	return model.Some(price), nil
}

// ReadAccount returns the stored account posture, nil if none.
func (d *DB) ReadAccount(ctx context.Context) (*model.AccountPosture, error) {
	var a model.AccountPosture
	err := d.db.QueryRowContext(ctx, `
		SELECT balance, equity, free_margin, leverage FROM account WHERE id = 1
	`).Scan(&a.Balance, &a.Equity, &a.FreeMargin, &a.Leverage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query account: %w", err)
	}
	return &a, nil
}

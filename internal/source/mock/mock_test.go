package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"signal-engine/internal/source"
)

var now = time.Date(2024, 6, 3, 10, 7, 30, 0, time.UTC)

func connected(t *testing.T, opts ...Option) *Source {
	t.Helper()
	s := New(append([]Option{WithSeed(7), WithClock(func() time.Time { return now })}, opts...)...)
	assert.NoError(t, s.Connect(context.Background()))
	return s
}

func TestSource_RequiresConnect(t *testing.T) {
	s := New(WithSeed(1))
	ctx := context.Background()

	_, err := s.AccountInfo(ctx)
	assert.True(t, errors.Is(err, source.ErrNotConnected))
	_, err = s.LatestTick(ctx, "X")
	assert.True(t, errors.Is(err, source.ErrNotConnected))
	_, err = s.Bars(ctx, "X", 1, 10)
	assert.True(t, errors.Is(err, source.ErrNotConnected))

	assert.NoError(t, s.Connect(ctx))
	assert.NoError(t, s.Disconnect())
	_, err = s.Bars(ctx, "X", 1, 10)
	assert.True(t, errors.Is(err, source.ErrNotConnected))
}

func TestSource_Account(t *testing.T) {
	s := connected(t)
	acct, err := s.AccountInfo(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, acct.Balance, float64(1000))
	assert.Equal(t, acct.Equity, 1000*1.01)
	assert.Equal(t, acct.FreeMargin, float64(800))
	assert.Equal(t, acct.Leverage, 1000)
}

func TestSource_BarsShape(t *testing.T) {
	s := connected(t)
	bars, err := s.Bars(context.Background(), "X", 5, 120)
	assert.NoError(t, err)
	assert.Equal(t, len(bars), 120)

	// 10:07:30 truncated to 5m is 10:05; the last bar opens one step earlier.
	assert.Equal(t, bars[119].Time, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC))
	for i, b := range bars {
		assert.True(t, b.Low <= b.Open && b.Low <= b.Close)
		assert.True(t, b.High >= b.Open && b.High >= b.Close)
		assert.True(t, b.Volume >= 100 && b.Volume < 2000)
		if i > 0 {
			assert.Equal(t, b.Open, bars[i-1].Close)
			assert.Equal(t, b.Time.Sub(bars[i-1].Time), 5*time.Minute)
		}
	}
}

func TestSource_WalkContinues(t *testing.T) {
	s := connected(t)
	ctx := context.Background()
	bars, _ := s.Bars(ctx, "X", 1, 10)
	tick, err := s.LatestTick(ctx, "X")
	assert.NoError(t, err)
	last := bars[len(bars)-1].Close
	assert.True(t, tick.Value >= last-0.5 && tick.Value <= last+0.5)
}

func TestSource_Deterministic(t *testing.T) {
	a, _ := connected(t).Bars(context.Background(), "X", 1, 30)
	b, _ := connected(t).Bars(context.Background(), "X", 1, 30)
	assert.Equal(t, a, b)
}

func TestSource_EmptyRequests(t *testing.T) {
	s := connected(t)
	bars, err := s.Bars(context.Background(), "X", 1, 0)
	assert.NoError(t, err)
	assert.Equal(t, len(bars), 0)
}

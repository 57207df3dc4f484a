package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_CreateAndFetch(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	id, err := j.CreateTrade(ctx, "BTC/USDT", "MEAN_REVERSION", "LONG", 50000, 0.01)
	require.NoError(t, err)
	require.Positive(t, id)

	trade, err := j.TradeByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", trade.Symbol)
	assert.Equal(t, "MEAN_REVERSION", trade.Strategy)
	assert.Equal(t, "LONG", trade.Side)
	assert.InDelta(t, 50000, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 0.01, trade.Size, 1e-9)
	assert.True(t, trade.Open())
}

func TestJournal_TradeByIDNotFound(t *testing.T) {
	j := newTestJournal(t)

	_, err := j.TradeByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestJournal_CloseLongComputesPnL(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	id, err := j.CreateTrade(ctx, "ETH/USDT", "TREND_SNIPER", "LONG", 100, 2)
	require.NoError(t, err)

	trade, err := j.CloseTrade(ctx, id, 110)
	require.NoError(t, err)

	// Long from 100 to 110: +10%, absolute = 0.10 * 100 * 2 = 20.
	assert.InDelta(t, 0.10, trade.PnLPercent.Float64, 1e-9)
	assert.InDelta(t, 20, trade.PnLAbsolute.Float64, 1e-9)
	assert.False(t, trade.Open())
}

func TestJournal_CloseShortComputesPnL(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	id, err := j.CreateTrade(ctx, "ETH/USDT", "MEAN_REVERSION", "SHORT", 100, 2)
	require.NoError(t, err)

	trade, err := j.CloseTrade(ctx, id, 110)
	require.NoError(t, err)

	// Short from 100 closed at 110: -10%, absolute = -20.
	assert.InDelta(t, -0.10, trade.PnLPercent.Float64, 1e-9)
	assert.InDelta(t, -20, trade.PnLAbsolute.Float64, 1e-9)
}

func TestJournal_CloseTwiceFails(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	id, err := j.CreateTrade(ctx, "BTC/USDT", "TREND_SNIPER", "SHORT", 50000, 0.01)
	require.NoError(t, err)

	_, err = j.CloseTrade(ctx, id, 49000)
	require.NoError(t, err)

	_, err = j.CloseTrade(ctx, id, 48000)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestJournal_OpenTradeByStrategy(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	got, err := j.OpenTradeByStrategy(ctx, "MEAN_REVERSION")
	require.NoError(t, err)
	assert.Nil(t, got)

	id, err := j.CreateTrade(ctx, "BTC/USDT", "MEAN_REVERSION", "LONG", 50000, 0.01)
	require.NoError(t, err)
	_, err = j.CreateTrade(ctx, "BTC/USDT", "TREND_SNIPER", "SHORT", 50000, 0.02)
	require.NoError(t, err)

	got, err = j.OpenTradeByStrategy(ctx, "MEAN_REVERSION")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)

	_, err = j.CloseTrade(ctx, id, 51000)
	require.NoError(t, err)

	got, err = j.OpenTradeByStrategy(ctx, "MEAN_REVERSION")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJournal_OpenAndClosedListings(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	// Deterministic clock so ordering by time is stable.
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}

	first, err := j.CreateTrade(ctx, "BTC/USDT", "MEAN_REVERSION", "LONG", 100, 1)
	require.NoError(t, err)
	second, err := j.CreateTrade(ctx, "BTC/USDT", "TREND_SNIPER", "LONG", 100, 1)
	require.NoError(t, err)

	open, err := j.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, first, open[0].ID)
	assert.Equal(t, second, open[1].ID)

	_, err = j.CloseTrade(ctx, first, 105)
	require.NoError(t, err)
	_, err = j.CloseTrade(ctx, second, 95)
	require.NoError(t, err)

	closed, err := j.ClosedTrades(ctx, 0)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	// Newest exit first.
	assert.Equal(t, second, closed[0].ID)

	closed, err = j.ClosedTrades(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, closed, 1)

	mr, err := j.ClosedTradesByStrategy(ctx, "MEAN_REVERSION")
	require.NoError(t, err)
	require.Len(t, mr, 1)
	assert.Equal(t, first, mr[0].ID)
}

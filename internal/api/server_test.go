package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typhoonlabs/typhoon/internal/bot"
	_ "github.com/typhoonlabs/typhoon/internal/metrics"
	"github.com/typhoonlabs/typhoon/internal/regime"
	"github.com/typhoonlabs/typhoon/internal/store"
	"github.com/typhoonlabs/typhoon/internal/strategy"
)

type stubTrades struct {
	trades []store.Trade
	err    error
}

func (s *stubTrades) ClosedTrades(_ context.Context, limit int) ([]store.Trade, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.trades) {
		return s.trades[:limit], nil
	}
	return s.trades, nil
}

func newTestServer(trades TradeReader) (*Server, *bot.StatusBoard) {
	board := bot.NewStatusBoard("BTC/USDT", true)
	return NewServer(":0", board, trades, zerolog.Nop()), board
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(&stubTrades{})
	rec := get(t, s, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReflectsBoard(t *testing.T) {
	s, board := newTestServer(&stubTrades{})
	board.Update(
		regime.Status{Regime: regime.Trending, ADX: 31.2},
		"TREND_SNIPER",
		[]strategy.PositionInfo{{Symbol: "BTC/USDT", Side: strategy.Long, EntryPrice: 50000}},
		9500,
	)

	rec := get(t, s, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap bot.StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "BTC/USDT", snap.Symbol)
	assert.Equal(t, regime.Trending, snap.Regime.Regime)
	assert.Equal(t, "TREND_SNIPER", snap.ActiveStrategy)
	assert.InDelta(t, 9500, snap.AvailableBalance, 1e-9)
	assert.Len(t, snap.Positions, 1)
}

func TestPositionsEmptyByDefault(t *testing.T) {
	s, _ := newTestServer(&stubTrades{})
	rec := get(t, s, "/api/positions")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestTrades(t *testing.T) {
	closed := store.Trade{
		ID: 1, Symbol: "BTC/USDT", Strategy: "MEAN_REVERSION", Side: "LONG",
		EntryPrice: 100, Size: 1,
		ExitPrice:   sql.NullFloat64{Float64: 110, Valid: true},
		PnLPercent:  sql.NullFloat64{Float64: 0.1, Valid: true},
		PnLAbsolute: sql.NullFloat64{Float64: 10, Valid: true},
	}
	s, _ := newTestServer(&stubTrades{trades: []store.Trade{closed, closed}})

	rec := get(t, s, "/api/trades?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []store.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 1)
}

func TestTradesBadLimit(t *testing.T) {
	s, _ := newTestServer(&stubTrades{})
	rec := get(t, s, "/api/trades?limit=banana")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTradesJournalError(t *testing.T) {
	s, _ := newTestServer(&stubTrades{err: errors.New("db locked")})
	rec := get(t, s, "/api/trades")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPerformance(t *testing.T) {
	closed := store.Trade{
		Strategy:    "TREND_SNIPER",
		ExitPrice:   sql.NullFloat64{Float64: 110, Valid: true},
		PnLPercent:  sql.NullFloat64{Float64: 0.1, Valid: true},
		PnLAbsolute: sql.NullFloat64{Float64: 10, Valid: true},
	}
	s, _ := newTestServer(&stubTrades{trades: []store.Trade{closed}})

	rec := get(t, s, "/api/performance")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TREND_SNIPER")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(&stubTrades{})
	rec := get(t, s, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "typhoon_iterations_total")
}

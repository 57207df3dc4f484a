package analysis

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typhoonlabs/typhoon/internal/store"
)

func closedTrade(strategy string, pnlAbs, pnlPct float64) store.Trade {
	return store.Trade{
		Strategy:    strategy,
		ExitPrice:   sql.NullFloat64{Float64: 1, Valid: true},
		PnLAbsolute: sql.NullFloat64{Float64: pnlAbs, Valid: true},
		PnLPercent:  sql.NullFloat64{Float64: pnlPct, Valid: true},
	}
}

func TestBuild_Aggregates(t *testing.T) {
	trades := []store.Trade{
		closedTrade("MEAN_REVERSION", 20, 0.10),
		closedTrade("MEAN_REVERSION", -10, -0.05),
		closedTrade("TREND_SNIPER", 40, 0.08),
		{Strategy: "TREND_SNIPER"}, // open, must be ignored
	}

	r := Build(trades)
	require.Len(t, r.Strategies, 2)
	assert.InDelta(t, 50, r.TotalPnL, 1e-9)

	mr := r.Strategies[0]
	assert.Equal(t, "MEAN_REVERSION", mr.Strategy)
	assert.Equal(t, 2, mr.Trades)
	assert.Equal(t, 1, mr.Wins)
	assert.Equal(t, 1, mr.Losses)
	assert.InDelta(t, 0.5, mr.WinRate, 1e-9)
	assert.InDelta(t, 10, mr.TotalPnL, 1e-9)
	assert.InDelta(t, 0.025, mr.AvgPnLPercent, 1e-9)
	assert.InDelta(t, 0.10, mr.BestPercent, 1e-9)
	assert.InDelta(t, -0.05, mr.WorstPercent, 1e-9)

	ts := r.Strategies[1]
	assert.Equal(t, "TREND_SNIPER", ts.Strategy)
	assert.Equal(t, 1, ts.Trades)
	assert.InDelta(t, 0.08, ts.BestPercent, 1e-9)
	assert.InDelta(t, 0.08, ts.WorstPercent, 1e-9)
}

func TestBuild_Empty(t *testing.T) {
	r := Build(nil)
	assert.Empty(t, r.Strategies)
	assert.Contains(t, Render(r), "no closed trades")
}

func TestRender_ContainsStrategies(t *testing.T) {
	r := Build([]store.Trade{closedTrade("TREND_SNIPER", 40, 0.08)})
	out := Render(r)
	assert.Contains(t, out, "TREND_SNIPER")
	assert.Contains(t, out, "100.0% win rate")
	assert.Contains(t, out, "overall pnl: +40.00")
}

package strategy

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typhoonlabs/typhoon/internal/market"
)

func mrTestConfig() MeanReversionConfig {
	return MeanReversionConfig{
		Timeframe:     "15m",
		BBPeriod:      20,
		BBStdDev:      2.0,
		RSIPeriod:     14,
		RSIOversold:   30,
		RSIOverbought: 70,
		ATRPeriod:     14,
		ATRStopMult:   1.5,
	}
}

// seriesFromCloses builds a series with a fixed half-point bar range around
// each close.
func seriesFromCloses(closes []float64) market.Series {
	s := make(market.Series, len(closes))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    100,
		}
	}
	return s
}

func flatThen(n int, level, last float64) market.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = level
	}
	closes[n-1] = last
	return seriesFromCloses(closes)
}

func TestMeanReversion_LongEntryOnOversoldDrop(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())

	// Flat at 100, then a hard drop: close well under the lower band, RSI
	// pinned low.
	sig, err := mr.CheckEntry(flatThen(40, 100, 90))
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, Long, sig.Direction)
	assert.Equal(t, 90.0, sig.EntryPrice)
	assert.Less(t, sig.StopLoss, 90.0)
	assert.NotEmpty(t, sig.Reason)
	assert.Contains(t, sig.Indicators, "RSI")
	assert.Less(t, sig.Indicators["RSI"], 30.0)
}

func TestMeanReversion_ShortEntryOnOverboughtSpike(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())

	sig, err := mr.CheckEntry(flatThen(40, 100, 110))
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, Short, sig.Direction)
	assert.Equal(t, 110.0, sig.EntryPrice)
	assert.Greater(t, sig.StopLoss, 110.0)
	assert.Greater(t, sig.Indicators["RSI"], 70.0)
}

func TestMeanReversion_NoSignalInsideBands(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())

	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i%2) // mild chop, stays inside the bands
	}
	sig, err := mr.CheckEntry(seriesFromCloses(closes))
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestMeanReversion_UndefinedRSIIsNoSignal(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())

	sig, err := mr.CheckEntry(flatThen(10, 100, 90))
	require.NoError(t, err)
	assert.Nil(t, sig)

	sig, err = mr.CheckEntry(market.Series{})
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestMeanReversion_AtMostOneSignalPerFrame(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())
	rng := rand.New(rand.NewSource(7))

	closes := make([]float64, 0, 300)
	price := 100.0
	for i := 0; i < 300; i++ {
		price += rng.Float64()*4 - 2
		closes = append(closes, price)
	}

	for i := 40; i <= len(closes); i++ {
		sig, err := mr.CheckEntry(seriesFromCloses(closes[:i]))
		require.NoError(t, err, "window ending at %d", i)
		if sig != nil {
			assert.Contains(t, []Direction{Long, Short}, sig.Direction)
		}
	}
}

func TestMeanReversion_ExitStopLossBeforeTarget(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())
	s := flatThen(40, 100, 100) // SMA sits at 100

	pos := PositionInfo{Symbol: "BTC/USDT", Side: Long, EntryPrice: 96, Size: 1, StopLoss: 102}

	// Price breaches the stop and the target at once: the stop wins.
	exit, reason := mr.CheckExit(s, pos, 101)
	require.True(t, exit)
	assert.Contains(t, reason, "stop loss")
}

func TestMeanReversion_ExitLong(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())
	s := flatThen(40, 100, 100)

	pos := PositionInfo{Side: Long, EntryPrice: 96, Size: 1, StopLoss: 90}

	exit, _ := mr.CheckExit(s, pos, 95)
	assert.False(t, exit)

	exit, reason := mr.CheckExit(s, pos, 89)
	require.True(t, exit)
	assert.Contains(t, reason, "stop loss")

	exit, reason = mr.CheckExit(s, pos, 100.5)
	require.True(t, exit)
	assert.Contains(t, reason, "take profit")
}

func TestMeanReversion_ExitShort(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())
	s := flatThen(40, 100, 100)

	pos := PositionInfo{Side: Short, EntryPrice: 104, Size: 1, StopLoss: 110}

	exit, _ := mr.CheckExit(s, pos, 105)
	assert.False(t, exit)

	exit, reason := mr.CheckExit(s, pos, 111)
	require.True(t, exit)
	assert.Contains(t, reason, "stop loss")

	exit, reason = mr.CheckExit(s, pos, 99)
	require.True(t, exit)
	assert.Contains(t, reason, "take profit")
}

func TestMeanReversion_StopLossFallbackWithoutATR(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())
	short := flatThen(5, 100, 100) // too short for ATR

	assert.InDelta(t, 98.0, mr.StopLoss(short, Long, 100), 1e-9)
	assert.InDelta(t, 102.0, mr.StopLoss(short, Short, 100), 1e-9)
}

func TestMeanReversion_UnrecognizedSidePanics(t *testing.T) {
	mr := NewMeanReversion(mrTestConfig(), zerolog.Nop())
	s := flatThen(40, 100, 100)

	assert.Panics(t, func() {
		mr.CheckExit(s, PositionInfo{Side: "SIDEWAYS"}, 100)
	})
}

package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/typhoonlabs/typhoon/internal/indicator"
	"github.com/typhoonlabs/typhoon/internal/market"
)

// TrendSniperName identifies the trending-market strategy in the journal and
// the positions map.
const TrendSniperName = "TREND_SNIPER"

// TrendSniperConfig holds the channel and filter periods for the breakout
// engine.
type TrendSniperConfig struct {
	Timeframe      string
	DonchianPeriod int
	EMAPeriod      int
}

// TrendSniper rides breakouts while the market is trending: it enters when
// price clears the prior bar's channel extreme on the right side of the EMA
// filter, and trails the position with the opposite channel bound.
//
// The entry compares against the prior bar's channel: the current bar's
// channel already contains the breakout candle, which would inflate the
// level it is supposed to break.
type TrendSniper struct {
	cfg TrendSniperConfig
	log zerolog.Logger
}

// NewTrendSniper builds the trending-market engine.
func NewTrendSniper(cfg TrendSniperConfig, log zerolog.Logger) *TrendSniper {
	return &TrendSniper{cfg: cfg, log: log}
}

func (t *TrendSniper) Name() string      { return TrendSniperName }
func (t *TrendSniper) Timeframe() string { return t.cfg.Timeframe }

// tsFrame is the latest row of the indicator-augmented window.
type tsFrame struct {
	close        float64
	ema          float64
	donchianHigh float64
	donchianLow  float64
	prevHigh     float64
	prevLow      float64
}

func (t *TrendSniper) frame(s market.Series) (tsFrame, bool) {
	if s.Len() == 0 {
		return tsFrame{}, false
	}
	highs, lows, closes := s.Highs(), s.Lows(), s.Closes()
	upper, lower := indicator.Donchian(highs, lows, t.cfg.DonchianPeriod)
	prevUpper := indicator.Shift(upper, 1)
	prevLower := indicator.Shift(lower, 1)
	ema := indicator.EMA(closes, t.cfg.EMAPeriod)

	i := s.Len() - 1
	return tsFrame{
		close:        closes[i],
		ema:          ema[i],
		donchianHigh: upper[i],
		donchianLow:  lower[i],
		prevHigh:     prevUpper[i],
		prevLow:      prevLower[i],
	}, true
}

// CheckEntry fires LONG when the close clears the prior bar's channel high
// above the EMA filter, SHORT when it clears the prior channel low below it.
// The EMA filter makes the two directions mutually exclusive by
// construction.
func (t *TrendSniper) CheckEntry(s market.Series) (*Signal, error) {
	if s.Len() < t.cfg.EMAPeriod+1 {
		return nil, nil
	}
	f, ok := t.frame(s)
	if !ok || !indicator.Defined(f.ema) || !indicator.Defined(f.prevHigh) {
		return nil, nil
	}

	indicators := map[string]float64{
		"Close":         f.close,
		"EMA":           f.ema,
		"Donchian_High": f.donchianHigh,
		"Donchian_Low":  f.donchianLow,
	}
	t.log.Debug().
		Float64("close", f.close).
		Float64("ema", f.ema).
		Float64("prev_channel_high", f.prevHigh).
		Float64("prev_channel_low", f.prevLow).
		Msg("breakout conditions evaluated")

	if f.close > f.prevHigh && f.close > f.ema {
		return &Signal{
			Direction:  Long,
			EntryPrice: f.close,
			StopLoss:   t.StopLoss(s, Long, f.close),
			Reason: fmt.Sprintf("bullish breakout: close (%.2f) > channel high (%.2f), above EMA (%.2f)",
				f.close, f.prevHigh, f.ema),
			Indicators: indicators,
		}, nil
	}
	if f.close < f.prevLow && f.close < f.ema {
		return &Signal{
			Direction:  Short,
			EntryPrice: f.close,
			StopLoss:   t.StopLoss(s, Short, f.close),
			Reason: fmt.Sprintf("bearish breakout: close (%.2f) < channel low (%.2f), below EMA (%.2f)",
				f.close, f.prevLow, f.ema),
			Indicators: indicators,
		}, nil
	}
	return nil, nil
}

// CheckExit treats the current channel as the trailing stop: a LONG exits at
// or below the channel low, a SHORT at or above the channel high. The check
// runs against the stop the position carried into this iteration, before any
// trailing update.
func (t *TrendSniper) CheckExit(s market.Series, pos PositionInfo, currentPrice float64) (bool, string) {
	mustValidSide(pos.Side)
	f, ok := t.frame(s)
	if !ok {
		return false, ""
	}

	switch pos.Side {
	case Long:
		if indicator.Defined(f.donchianLow) && currentPrice <= f.donchianLow {
			return true, fmt.Sprintf("trailing stop: price (%.2f) <= channel low (%.2f)", currentPrice, f.donchianLow)
		}
	case Short:
		if indicator.Defined(f.donchianHigh) && currentPrice >= f.donchianHigh {
			return true, fmt.Sprintf("trailing stop: price (%.2f) >= channel high (%.2f)", currentPrice, f.donchianHigh)
		}
	}
	return false, ""
}

// StopLoss places the initial stop at the opposite channel bound, with a 3%
// fallback when the channel is still undefined.
func (t *TrendSniper) StopLoss(s market.Series, dir Direction, entryPrice float64) float64 {
	f, ok := t.frame(s)
	if dir == Long {
		if ok && indicator.Defined(f.donchianLow) {
			return f.donchianLow
		}
		return entryPrice * 0.97
	}
	if ok && indicator.Defined(f.donchianHigh) {
		return f.donchianHigh
	}
	return entryPrice * 1.03
}

// UpdateTrailingStop ratchets the stop with the channel: up only for LONG
// (max of channel low and the existing stop), down only for SHORT. An
// undefined channel leaves the stop untouched.
func (t *TrendSniper) UpdateTrailingStop(s market.Series, pos PositionInfo) float64 {
	mustValidSide(pos.Side)
	f, ok := t.frame(s)
	if !ok {
		return pos.StopLoss
	}

	if pos.Side == Long {
		if indicator.Defined(f.donchianLow) && f.donchianLow > pos.StopLoss {
			return f.donchianLow
		}
		return pos.StopLoss
	}
	if indicator.Defined(f.donchianHigh) && f.donchianHigh < pos.StopLoss {
		return f.donchianHigh
	}
	return pos.StopLoss
}

package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/typhoonlabs/typhoon/internal/indicator"
	"github.com/typhoonlabs/typhoon/internal/market"
)

// MeanReversionName identifies the ranging-market strategy in the journal
// and the positions map.
const MeanReversionName = "MEAN_REVERSION"

// MeanReversionConfig holds the indicator periods and thresholds for the
// mean-reversion engine.
type MeanReversionConfig struct {
	Timeframe     string
	BBPeriod      int
	BBStdDev      float64
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64
	ATRPeriod     int
	ATRStopMult   float64
}

// MeanReversion fades band extremes while the market is range-bound: it buys
// closes below the lower volatility band on an oversold oscillator and sells
// closes above the upper band on an overbought one, targeting the middle
// band with an ATR stop.
type MeanReversion struct {
	cfg MeanReversionConfig
	log zerolog.Logger
}

// NewMeanReversion builds the ranging-market engine.
func NewMeanReversion(cfg MeanReversionConfig, log zerolog.Logger) *MeanReversion {
	return &MeanReversion{cfg: cfg, log: log}
}

func (m *MeanReversion) Name() string      { return MeanReversionName }
func (m *MeanReversion) Timeframe() string { return m.cfg.Timeframe }

// mrFrame is the latest row of the indicator-augmented window.
type mrFrame struct {
	close   float64
	rsi     float64
	bbLower float64
	bbMid   float64
	bbUpper float64
	atr     float64
}

func (m *MeanReversion) frame(s market.Series) (mrFrame, bool) {
	if s.Len() == 0 {
		return mrFrame{}, false
	}
	closes := s.Closes()
	lower, middle, upper := indicator.BollingerBands(closes, m.cfg.BBPeriod, m.cfg.BBStdDev)
	rsi := indicator.RSI(closes, m.cfg.RSIPeriod)
	atr := indicator.ATR(s.Highs(), s.Lows(), closes, m.cfg.ATRPeriod)

	i := s.Len() - 1
	return mrFrame{
		close:   closes[i],
		rsi:     rsi[i],
		bbLower: lower[i],
		bbMid:   middle[i],
		bbUpper: upper[i],
		atr:     atr[i],
	}, true
}

// CheckEntry fires LONG on close below the lower band with an oversold RSI,
// SHORT on close above the upper band with an overbought RSI. An undefined
// RSI means no signal. Both conditions holding at once is an asserted
// impossibility and surfaces as ErrConflictingSignal.
func (m *MeanReversion) CheckEntry(s market.Series) (*Signal, error) {
	f, ok := m.frame(s)
	if !ok || !indicator.Defined(f.rsi) {
		return nil, nil
	}

	long := f.close < f.bbLower && f.rsi < m.cfg.RSIOversold
	short := f.close > f.bbUpper && f.rsi > m.cfg.RSIOverbought
	if long && short {
		return nil, ErrConflictingSignal
	}
	m.log.Debug().
		Float64("close", f.close).
		Float64("rsi", f.rsi).
		Float64("bb_lower", f.bbLower).
		Float64("bb_upper", f.bbUpper).
		Bool("long", long).
		Bool("short", short).
		Msg("entry conditions evaluated")

	indicators := map[string]float64{
		"RSI":      f.rsi,
		"BB_Lower": f.bbLower,
		"BB_Upper": f.bbUpper,
		"Close":    f.close,
	}

	if long {
		return &Signal{
			Direction:  Long,
			EntryPrice: f.close,
			StopLoss:   m.StopLoss(s, Long, f.close),
			Reason: fmt.Sprintf("oversold: close (%.2f) < lower band (%.2f), RSI (%.1f) < %.1f",
				f.close, f.bbLower, f.rsi, m.cfg.RSIOversold),
			Indicators: indicators,
		}, nil
	}
	if short {
		return &Signal{
			Direction:  Short,
			EntryPrice: f.close,
			StopLoss:   m.StopLoss(s, Short, f.close),
			Reason: fmt.Sprintf("overbought: close (%.2f) > upper band (%.2f), RSI (%.1f) > %.1f",
				f.close, f.bbUpper, f.rsi, m.cfg.RSIOverbought),
			Indicators: indicators,
		}, nil
	}
	return nil, nil
}

// CheckExit closes on a stop-loss breach first, then on price reaching the
// middle band in the favorable direction. Both checks look at the latest bar
// only.
func (m *MeanReversion) CheckExit(s market.Series, pos PositionInfo, currentPrice float64) (bool, string) {
	mustValidSide(pos.Side)
	f, ok := m.frame(s)
	if !ok {
		return false, ""
	}

	switch pos.Side {
	case Long:
		if currentPrice <= pos.StopLoss {
			return true, fmt.Sprintf("stop loss hit: price (%.2f) <= SL (%.2f)", currentPrice, pos.StopLoss)
		}
		if indicator.Defined(f.bbMid) && currentPrice >= f.bbMid {
			return true, fmt.Sprintf("take profit: price (%.2f) reached SMA (%.2f)", currentPrice, f.bbMid)
		}
	case Short:
		if currentPrice >= pos.StopLoss {
			return true, fmt.Sprintf("stop loss hit: price (%.2f) >= SL (%.2f)", currentPrice, pos.StopLoss)
		}
		if indicator.Defined(f.bbMid) && currentPrice <= f.bbMid {
			return true, fmt.Sprintf("take profit: price (%.2f) reached SMA (%.2f)", currentPrice, f.bbMid)
		}
	}
	return false, ""
}

// StopLoss places the stop an ATR multiple away from entry, with a 2%
// fallback when ATR is still undefined.
func (m *MeanReversion) StopLoss(s market.Series, dir Direction, entryPrice float64) float64 {
	f, ok := m.frame(s)
	atr := entryPrice * 0.02
	if ok && indicator.Defined(f.atr) {
		atr = f.atr * m.cfg.ATRStopMult
	}
	if dir == Long {
		return entryPrice - atr
	}
	return entryPrice + atr
}

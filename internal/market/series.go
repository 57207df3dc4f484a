package market

import (
	"fmt"
	"time"
)

// Candle is a single OHLCV bar.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Series is an ordered OHLCV window with strictly increasing timestamps.
// A series is immutable once fetched; every iteration works on a fresh window.
type Series []Candle

// Len returns the number of bars in the series.
func (s Series) Len() int { return len(s) }

// Last returns the most recent bar. It panics on an empty series; callers
// must check Len first.
func (s Series) Last() Candle { return s[len(s)-1] }

// Closes returns the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high column.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

// Lows returns the low column.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

// Validate checks the strictly-increasing timestamp invariant.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("series not strictly ordered at index %d: %s !> %s",
				i, s[i].Timestamp.Format(time.RFC3339), s[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Package strategy contains the per-regime signal engines. A strategy turns
// an indicator-augmented OHLCV window plus an optional open position into an
// entry signal, an exit decision, or a trailing-stop update. Strategies hold
// no position state of their own; the coordinator owns positions.
package strategy

import (
	"errors"
	"fmt"

	"github.com/typhoonlabs/typhoon/internal/market"
)

// Direction is the side of a signal or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// ErrConflictingSignal reports that a frame satisfied both the long and the
// short entry condition at once. The band/oscillator construction makes that
// impossible on well-formed data, so it is asserted instead of silently
// resolved in favor of one side.
var ErrConflictingSignal = errors.New("frame satisfies both long and short entry conditions")

// Signal is a one-shot entry proposal. It is produced by a strategy and
// consumed exactly once by the coordinator; trade records are derived from
// it, the signal itself is never persisted.
type Signal struct {
	Direction  Direction
	EntryPrice float64
	StopLoss   float64
	Reason     string
	Indicators map[string]float64
}

// PositionInfo is the coordinator-owned record of an open position. StopLoss
// is the only field mutated after creation (by trailing-stop updates), and
// only the coordinator holds a writable reference.
type PositionInfo struct {
	TradeID    int64
	Symbol     string
	Side       Direction
	EntryPrice float64
	Size       float64
	StopLoss   float64
}

// Strategy is the contract shared by both signal engines.
//
// CheckEntry returns (nil, nil) whenever the window is too short or an
// indicator is still warming up — data insufficiency is no-signal, never an
// error. CheckExit evaluates the latest bar only, with the stop value the
// position carried into this iteration.
type Strategy interface {
	Name() string
	Timeframe() string
	CheckEntry(s market.Series) (*Signal, error)
	CheckExit(s market.Series, pos PositionInfo, currentPrice float64) (bool, string)
	StopLoss(s market.Series, dir Direction, entryPrice float64) float64
}

// TrailingStopper is implemented by strategies whose stop follows the market.
// The returned stop only ever ratchets in the position's favor.
type TrailingStopper interface {
	UpdateTrailingStop(s market.Series, pos PositionInfo) float64
}

// mustValidSide is the fail-fast guard for the position-side invariant. A
// side that is neither LONG nor SHORT is a programming error, not a runtime
// condition to recover from.
func mustValidSide(side Direction) {
	if side != Long && side != Short {
		panic(fmt.Sprintf("position has unrecognized side %q", side))
	}
}

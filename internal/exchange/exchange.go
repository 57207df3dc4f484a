// Package exchange provides market data, account state and order routing
// against a trading venue, plus the paper-trading broker used in dry-run
// mode. The coordinator only sees the interfaces here and is agnostic to
// whether orders hit a live venue or the simulated ledger.
package exchange

import (
	"context"

	"github.com/typhoonlabs/typhoon/internal/market"
)

// Side is the order direction at the venue boundary.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the side that flattens a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderRequest describes a market order. Tag carries the strategy name so
// the paper broker can account margin per strategy; live venues ignore it.
type OrderRequest struct {
	Symbol string
	Side   Side
	Amount float64
	Tag    string
}

// CloseRequest flattens an open position.
type CloseRequest struct {
	Symbol     string
	Side       Side // side of the open position, not of the closing order
	Size       float64
	EntryPrice float64
	Tag        string
}

// OrderResult is the confirmed fill for an order.
type OrderResult struct {
	OrderID     string
	Symbol      string
	Side        Side
	Amount      float64
	FilledPrice float64
	DryRun      bool
}

// MarketData fetches OHLCV windows and spot prices. Implementations handle
// their own retry and rate limiting; a returned error means the iteration
// should be abandoned.
type MarketData interface {
	FetchSeries(ctx context.Context, symbol, timeframe string, limit int) (market.Series, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Account exposes balance and venue order limits.
type Account interface {
	AvailableBalance(ctx context.Context) (float64, error)
	MinOrderSize(symbol string) float64
}

// Executor routes orders. A nil error guarantees a confirmed fill; the
// coordinator must not record a position on any error.
type Executor interface {
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	ClosePosition(ctx context.Context, req CloseRequest) (*OrderResult, error)
}

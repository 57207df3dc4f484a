package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ledger is the simulated account used in dry-run mode: a cash balance with
// margin reserved per open position and PnL realized on close. It is an
// explicitly constructed instance passed into the broker, not a process
// global, so tests can run ledgers side by side.
type Ledger struct {
	mu      sync.Mutex
	initial float64
	balance float64
	margin  map[string]float64 // reserved notional per position tag
}

// NewLedger creates a ledger with the given starting balance.
func NewLedger(initialBalance float64) *Ledger {
	return &Ledger{
		initial: initialBalance,
		balance: initialBalance,
		margin:  make(map[string]float64),
	}
}

// Available returns balance minus margin-in-use.
func (l *Ledger) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance - l.marginInUseLocked()
}

// Equity returns the total balance, ignoring reserved margin.
func (l *Ledger) Equity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// TotalPnL returns realized profit since the ledger was created or reset.
func (l *Ledger) TotalPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance - l.initial
}

func (l *Ledger) marginInUseLocked() float64 {
	total := 0.0
	for _, m := range l.margin {
		total += m
	}
	return total
}

// Reserve locks notional margin for a new position under the given tag.
func (l *Ledger) Reserve(tag string, notional float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.margin[tag]; exists {
		return fmt.Errorf("margin already reserved for %q", tag)
	}
	if notional > l.balance-l.marginInUseLocked() {
		return fmt.Errorf("insufficient balance: need %.2f, available %.2f",
			notional, l.balance-l.marginInUseLocked())
	}
	l.margin[tag] = notional
	return nil
}

// Release frees the margin held under tag and credits realized PnL.
func (l *Ledger) Release(tag string, pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.margin, tag)
	l.balance += pnl
}

// Reset flattens the ledger back to a fresh balance.
func (l *Ledger) Reset(balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.initial = balance
	l.balance = balance
	l.margin = make(map[string]float64)
}

// Summary is a read-only snapshot for observability surfaces.
type Summary struct {
	InitialBalance   float64 `json:"initial_balance"`
	Equity           float64 `json:"equity"`
	AvailableBalance float64 `json:"available_balance"`
	MarginInUse      float64 `json:"margin_in_use"`
	TotalPnL         float64 `json:"total_pnl"`
	PnLPercent       float64 `json:"pnl_percent"`
}

// Summary returns the ledger's current state.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	margin := l.marginInUseLocked()
	pnl := l.balance - l.initial
	pct := 0.0
	if l.initial > 0 {
		pct = pnl / l.initial * 100
	}
	return Summary{
		InitialBalance:   l.initial,
		Equity:           l.balance,
		AvailableBalance: l.balance - margin,
		MarginInUse:      margin,
		TotalPnL:         pnl,
		PnLPercent:       pct,
	}
}

// PaperBroker fills orders against live market prices but settles them on
// the simulated ledger. It satisfies Account and Executor so the coordinator
// cannot tell it apart from a live venue.
type PaperBroker struct {
	data         MarketData
	ledger       *Ledger
	minOrderSize float64
	log          zerolog.Logger
}

// NewPaperBroker wires a broker to the given market data source and ledger.
func NewPaperBroker(data MarketData, ledger *Ledger, minOrderSize float64, log zerolog.Logger) *PaperBroker {
	return &PaperBroker{data: data, ledger: ledger, minOrderSize: minOrderSize, log: log}
}

// Ledger exposes the underlying ledger for observability surfaces.
func (p *PaperBroker) Ledger() *Ledger { return p.ledger }

func (p *PaperBroker) AvailableBalance(context.Context) (float64, error) {
	return p.ledger.Available(), nil
}

func (p *PaperBroker) MinOrderSize(string) float64 { return p.minOrderSize }

// PlaceMarketOrder fills instantly at the current market price and reserves
// 1x notional margin under the order's tag.
func (p *PaperBroker) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	price, err := p.data.CurrentPrice(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("paper fill price: %w", err)
	}
	if err := p.ledger.Reserve(req.Tag, req.Amount*price); err != nil {
		return nil, err
	}

	p.log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("tag", req.Tag).
		Float64("amount", req.Amount).
		Float64("price", price).
		Msg("paper order filled")

	return &OrderResult{
		OrderID:     "paper-" + uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Amount:      req.Amount,
		FilledPrice: price,
		DryRun:      true,
	}, nil
}

// ClosePosition fills the flattening order at the current market price,
// releases the reserved margin and credits the realized PnL.
func (p *PaperBroker) ClosePosition(ctx context.Context, req CloseRequest) (*OrderResult, error) {
	price, err := p.data.CurrentPrice(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("paper close price: %w", err)
	}

	var pnl float64
	switch req.Side {
	case Buy:
		pnl = (price - req.EntryPrice) * req.Size
	case Sell:
		pnl = (req.EntryPrice - price) * req.Size
	default:
		return nil, fmt.Errorf("close request has unrecognized side %q", req.Side)
	}
	p.ledger.Release(req.Tag, pnl)

	p.log.Info().
		Str("symbol", req.Symbol).
		Str("tag", req.Tag).
		Float64("exit_price", price).
		Float64("pnl", pnl).
		Msg("paper position closed")

	return &OrderResult{
		OrderID:     "paper-" + uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side.Opposite(),
		Amount:      req.Size,
		FilledPrice: price,
		DryRun:      true,
	}, nil
}

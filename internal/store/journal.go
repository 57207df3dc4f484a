// Package store persists the trade journal in SQLite. The journal is the
// source of truth for open positions across restarts and the input to the
// performance report.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrTradeNotFound is returned when a trade ID does not exist or the trade
// is already closed.
var ErrTradeNotFound = errors.New("trade not found")

// Trade is one journal row. Exit fields are NULL while the position is open.
type Trade struct {
	ID          int64           `db:"id" json:"id"`
	Symbol      string          `db:"symbol" json:"symbol"`
	Strategy    string          `db:"strategy" json:"strategy"`
	Side        string          `db:"side" json:"side"`
	EntryPrice  float64         `db:"entry_price" json:"entry_price"`
	ExitPrice   sql.NullFloat64 `db:"exit_price" json:"exit_price,omitempty"`
	Size        float64         `db:"size" json:"size"`
	PnLAbsolute sql.NullFloat64 `db:"pnl_absolute" json:"pnl_absolute,omitempty"`
	PnLPercent  sql.NullFloat64 `db:"pnl_percent" json:"pnl_percent,omitempty"`
	EntryTime   time.Time       `db:"entry_time" json:"entry_time"`
	ExitTime    sql.NullTime    `db:"exit_time" json:"exit_time,omitempty"`
}

// Open reports whether the trade is still an open position.
func (t Trade) Open() bool { return !t.ExitPrice.Valid }

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol       TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	side         TEXT NOT NULL CHECK (side IN ('LONG', 'SHORT')),
	entry_price  REAL NOT NULL,
	exit_price   REAL,
	size         REAL NOT NULL,
	pnl_absolute REAL,
	pnl_percent  REAL,
	entry_time   TIMESTAMP NOT NULL,
	exit_time    TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trades_strategy_open
	ON trades (strategy) WHERE exit_price IS NULL;
`

// Journal is the SQLite-backed trade log.
type Journal struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

// Open connects to the SQLite database at path (":memory:" for tests) and
// creates the schema if missing.
func Open(path string) (*Journal, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// SQLite serializes writers; a second connection would only contend.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db, timeout: 5 * time.Second, now: time.Now}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error { return j.db.Close() }

// CreateTrade records a new open position and returns its journal ID.
func (j *Journal) CreateTrade(ctx context.Context, symbol, strategy, side string, entryPrice, size float64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	res, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (symbol, strategy, side, entry_price, size, entry_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		symbol, strategy, side, entryPrice, size, j.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("trade id: %w", err)
	}
	return id, nil
}

// CloseTrade stamps the exit on an open trade and computes its PnL. Percent
// PnL is relative to the entry price; absolute PnL is percent times entry
// notional.
func (j *Journal) CloseTrade(ctx context.Context, id int64, exitPrice float64) (*Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	trade, err := j.TradeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !trade.Open() {
		return nil, fmt.Errorf("trade %d: %w", id, ErrTradeNotFound)
	}

	var pnlPercent float64
	switch trade.Side {
	case "LONG":
		pnlPercent = (exitPrice - trade.EntryPrice) / trade.EntryPrice
	case "SHORT":
		pnlPercent = (trade.EntryPrice - exitPrice) / trade.EntryPrice
	default:
		return nil, fmt.Errorf("trade %d has unrecognized side %q", id, trade.Side)
	}
	pnlAbsolute := pnlPercent * trade.EntryPrice * trade.Size
	exitTime := j.now().UTC()

	_, err = j.db.ExecContext(ctx, `
		UPDATE trades
		SET exit_price = ?, pnl_absolute = ?, pnl_percent = ?, exit_time = ?
		WHERE id = ?`,
		exitPrice, pnlAbsolute, pnlPercent, exitTime, id)
	if err != nil {
		return nil, fmt.Errorf("close trade %d: %w", id, err)
	}

	trade.ExitPrice = sql.NullFloat64{Float64: exitPrice, Valid: true}
	trade.PnLAbsolute = sql.NullFloat64{Float64: pnlAbsolute, Valid: true}
	trade.PnLPercent = sql.NullFloat64{Float64: pnlPercent, Valid: true}
	trade.ExitTime = sql.NullTime{Time: exitTime, Valid: true}
	return trade, nil
}

// TradeByID fetches a single trade.
func (j *Journal) TradeByID(ctx context.Context, id int64) (*Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	var trade Trade
	err := j.db.GetContext(ctx, &trade, `SELECT * FROM trades WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trade %d: %w", id, ErrTradeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %d: %w", id, err)
	}
	return &trade, nil
}

// OpenTradeByStrategy returns the strategy's open position, or nil when the
// strategy is flat.
func (j *Journal) OpenTradeByStrategy(ctx context.Context, strategy string) (*Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	var trade Trade
	err := j.db.GetContext(ctx, &trade, `
		SELECT * FROM trades
		WHERE strategy = ? AND exit_price IS NULL
		ORDER BY entry_time DESC
		LIMIT 1`, strategy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trade for %s: %w", strategy, err)
	}
	return &trade, nil
}

// OpenTrades returns all open positions, oldest entry first.
func (j *Journal) OpenTrades(ctx context.Context) ([]Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	var trades []Trade
	err := j.db.SelectContext(ctx, &trades, `
		SELECT * FROM trades
		WHERE exit_price IS NULL
		ORDER BY entry_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("list open trades: %w", err)
	}
	return trades, nil
}

// ClosedTrades returns completed trades, newest exit first, capped at limit
// (0 means no cap).
func (j *Journal) ClosedTrades(ctx context.Context, limit int) ([]Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	query := `
		SELECT * FROM trades
		WHERE exit_price IS NOT NULL
		ORDER BY exit_time DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var trades []Trade
	if err := j.db.SelectContext(ctx, &trades, query, args...); err != nil {
		return nil, fmt.Errorf("list closed trades: %w", err)
	}
	return trades, nil
}

// ClosedTradesByStrategy returns a strategy's completed trades, oldest exit
// first, the order the performance report consumes them in.
func (j *Journal) ClosedTradesByStrategy(ctx context.Context, strategy string) ([]Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	var trades []Trade
	err := j.db.SelectContext(ctx, &trades, `
		SELECT * FROM trades
		WHERE strategy = ? AND exit_price IS NOT NULL
		ORDER BY exit_time ASC`, strategy)
	if err != nil {
		return nil, fmt.Errorf("closed trades for %s: %w", strategy, err)
	}
	return trades, nil
}

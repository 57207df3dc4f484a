// Package bot runs the trading loop: regime detection, exit and trailing
// checks for open positions, and entry evaluation for the strategy matching
// the current regime. The coordinator is the single writer of position state.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/typhoonlabs/typhoon/internal/exchange"
	"github.com/typhoonlabs/typhoon/internal/market"
	"github.com/typhoonlabs/typhoon/internal/metrics"
	"github.com/typhoonlabs/typhoon/internal/regime"
	"github.com/typhoonlabs/typhoon/internal/risk"
	"github.com/typhoonlabs/typhoon/internal/store"
	"github.com/typhoonlabs/typhoon/internal/strategy"
)

// Journal is the slice of the trade store the coordinator needs. The SQLite
// journal satisfies it; tests substitute an in-memory fake.
type Journal interface {
	CreateTrade(ctx context.Context, symbol, strategyName, side string, entryPrice, size float64) (int64, error)
	CloseTrade(ctx context.Context, id int64, exitPrice float64) (*store.Trade, error)
	OpenTrades(ctx context.Context) ([]store.Trade, error)
}

// Config holds the loop parameters.
type Config struct {
	Symbol          string
	RegimeTimeframe string
	LoopInterval    time.Duration
	// SeriesLimit is the number of candles fetched per timeframe. It must
	// cover the slowest indicator's warm-up (the EMA period plus one bar).
	SeriesLimit int
}

// Coordinator owns the position map and drives one strategy per regime:
// mean reversion while ranging, trend breakout while trending.
type Coordinator struct {
	cfg      Config
	data     exchange.MarketData
	account  exchange.Account
	exec     exchange.Executor
	detector *regime.Detector
	ranging  strategy.Strategy
	trending strategy.Strategy
	sizer    risk.Sizer
	journal  Journal
	board    *StatusBoard
	log      zerolog.Logger

	positions map[string]*strategy.PositionInfo // keyed by strategy name
}

// New wires a coordinator. The ranging strategy trades while the regime is
// RANGING, the trending strategy while it is TRENDING.
func New(
	cfg Config,
	data exchange.MarketData,
	account exchange.Account,
	exec exchange.Executor,
	detector *regime.Detector,
	ranging, trending strategy.Strategy,
	sizer risk.Sizer,
	journal Journal,
	board *StatusBoard,
	log zerolog.Logger,
) *Coordinator {
	if cfg.SeriesLimit <= 0 {
		cfg.SeriesLimit = 300
	}
	return &Coordinator{
		cfg:       cfg,
		data:      data,
		account:   account,
		exec:      exec,
		detector:  detector,
		ranging:   ranging,
		trending:  trending,
		sizer:     sizer,
		journal:   journal,
		board:     board,
		log:       log,
		positions: make(map[string]*strategy.PositionInfo),
	}
}

// Reconcile rebuilds the position map from open journal trades. Stops are
// recomputed from current data because they are not persisted.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	open, err := c.journal.OpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	for _, t := range open {
		strat := c.strategyByName(t.Strategy)
		if strat == nil {
			c.log.Warn().Str("strategy", t.Strategy).Int64("trade_id", t.ID).
				Msg("open trade belongs to unknown strategy, skipping")
			continue
		}
		series, err := c.data.FetchSeries(ctx, t.Symbol, strat.Timeframe(), c.cfg.SeriesLimit)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", t.Strategy, err)
		}
		pos := &strategy.PositionInfo{
			TradeID:    t.ID,
			Symbol:     t.Symbol,
			Side:       strategy.Direction(t.Side),
			EntryPrice: t.EntryPrice,
			Size:       t.Size,
			StopLoss:   strat.StopLoss(series, strategy.Direction(t.Side), t.EntryPrice),
		}
		c.positions[t.Strategy] = pos
		c.log.Info().
			Str("strategy", t.Strategy).
			Int64("trade_id", t.ID).
			Str("side", string(pos.Side)).
			Float64("entry", pos.EntryPrice).
			Float64("stop", pos.StopLoss).
			Msg("restored open position")
	}
	return nil
}

// Run drives iterations until the context is cancelled. Iteration errors are
// logged and counted; they never stop the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info().
		Str("symbol", c.cfg.Symbol).
		Dur("interval", c.cfg.LoopInterval).
		Msg("trading loop started")

	for {
		start := time.Now()
		if err := c.RunIteration(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.IterationErrors.Inc()
			c.board.SetLastError(err)
			c.log.Error().Err(err).Msg("iteration failed")
		}

		sleep := c.cfg.LoopInterval - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			c.log.Info().Msg("trading loop stopped")
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// RunIteration executes one pass: detect regime, run exit checks and
// trailing updates on every open position, then evaluate entries for the
// active strategy. Any error abandons the rest of the pass; position state
// is only mutated after the corresponding order is confirmed.
func (c *Coordinator) RunIteration(ctx context.Context) error {
	metrics.Iterations.Inc()

	series := make(map[string]market.Series)
	fetch := func(timeframe string) (market.Series, error) {
		if s, ok := series[timeframe]; ok {
			return s, nil
		}
		s, err := c.data.FetchSeries(ctx, c.cfg.Symbol, timeframe, c.cfg.SeriesLimit)
		if err != nil {
			return nil, fmt.Errorf("fetch %s series: %w", timeframe, err)
		}
		series[timeframe] = s
		return s, nil
	}

	regimeSeries, err := fetch(c.cfg.RegimeTimeframe)
	if err != nil {
		return err
	}
	current, changed := c.detector.Detect(regimeSeries)
	if changed {
		metrics.RegimeTransitions.Inc()
	}
	if current == regime.Trending {
		metrics.RegimeGauge.Set(1)
	} else {
		metrics.RegimeGauge.Set(0)
	}

	price, err := c.data.CurrentPrice(ctx, c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("current price: %w", err)
	}

	// Exit checks run for every open position regardless of regime or
	// cooldown, against the stop value the position carried into this pass.
	for _, strat := range []strategy.Strategy{c.ranging, c.trending} {
		pos, ok := c.positions[strat.Name()]
		if !ok {
			continue
		}
		s, err := fetch(strat.Timeframe())
		if err != nil {
			return err
		}
		if exit, reason := strat.CheckExit(s, *pos, price); exit {
			if err := c.closePosition(ctx, strat.Name(), pos, reason); err != nil {
				return err
			}
			continue
		}
		if trailer, ok := strat.(strategy.TrailingStopper); ok {
			if updated := trailer.UpdateTrailingStop(s, *pos); updated != pos.StopLoss {
				c.log.Info().
					Str("strategy", strat.Name()).
					Float64("old_stop", pos.StopLoss).
					Float64("new_stop", updated).
					Msg("trailing stop moved")
				pos.StopLoss = updated
			}
		}
	}

	active := c.activeStrategy(current)
	if _, hasPosition := c.positions[active.Name()]; !hasPosition {
		if c.detector.InCooldown() {
			c.log.Debug().
				Int("remaining_seconds", c.detector.CooldownRemaining()).
				Msg("entry blocked by regime cooldown")
		} else if err := c.tryEntry(ctx, active, fetch); err != nil {
			return err
		}
	}

	c.publishStatus(ctx)
	return nil
}

func (c *Coordinator) tryEntry(ctx context.Context, strat strategy.Strategy, fetch func(string) (market.Series, error)) error {
	s, err := fetch(strat.Timeframe())
	if err != nil {
		return err
	}
	sig, err := strat.CheckEntry(s)
	if err != nil {
		return fmt.Errorf("%s entry check: %w", strat.Name(), err)
	}
	if sig == nil {
		return nil
	}

	balance, err := c.account.AvailableBalance(ctx)
	if err != nil {
		return fmt.Errorf("available balance: %w", err)
	}
	amount := c.sizer.Size(balance, sig.EntryPrice, c.account.MinOrderSize(c.cfg.Symbol))
	if amount == 0 {
		c.log.Warn().
			Str("strategy", strat.Name()).
			Float64("balance", balance).
			Msg("signal skipped, size below venue minimum")
		return nil
	}

	res, err := c.exec.PlaceMarketOrder(ctx, exchange.OrderRequest{
		Symbol: c.cfg.Symbol,
		Side:   sideFor(sig.Direction),
		Amount: amount,
		Tag:    strat.Name(),
	})
	if err != nil {
		return fmt.Errorf("%s entry order: %w", strat.Name(), err)
	}
	metrics.OrdersSubmitted.WithLabelValues(strat.Name()).Inc()

	tradeID, err := c.journal.CreateTrade(ctx, c.cfg.Symbol, strat.Name(),
		string(sig.Direction), res.FilledPrice, res.Amount)
	if err != nil {
		return fmt.Errorf("journal entry: %w", err)
	}

	// The stop is recomputed from the actual fill, not the signal's
	// close-derived entry estimate.
	pos := &strategy.PositionInfo{
		TradeID:    tradeID,
		Symbol:     c.cfg.Symbol,
		Side:       sig.Direction,
		EntryPrice: res.FilledPrice,
		Size:       res.Amount,
		StopLoss:   strat.StopLoss(s, sig.Direction, res.FilledPrice),
	}
	c.positions[strat.Name()] = pos

	c.log.Info().
		Str("strategy", strat.Name()).
		Str("side", string(sig.Direction)).
		Int64("trade_id", tradeID).
		Float64("entry", pos.EntryPrice).
		Float64("size", pos.Size).
		Float64("stop", pos.StopLoss).
		Str("reason", sig.Reason).
		Msg("position opened")
	return nil
}

func (c *Coordinator) closePosition(ctx context.Context, name string, pos *strategy.PositionInfo, reason string) error {
	res, err := c.exec.ClosePosition(ctx, exchange.CloseRequest{
		Symbol:     pos.Symbol,
		Side:       sideFor(pos.Side),
		Size:       pos.Size,
		EntryPrice: pos.EntryPrice,
		Tag:        name,
	})
	if err != nil {
		return fmt.Errorf("%s close order: %w", name, err)
	}
	metrics.OrdersSubmitted.WithLabelValues(name).Inc()

	trade, err := c.journal.CloseTrade(ctx, pos.TradeID, res.FilledPrice)
	if err != nil {
		return fmt.Errorf("journal close: %w", err)
	}
	delete(c.positions, name)

	c.log.Info().
		Str("strategy", name).
		Int64("trade_id", pos.TradeID).
		Str("reason", reason).
		Float64("exit", res.FilledPrice).
		Float64("pnl", trade.PnLAbsolute.Float64).
		Float64("pnl_percent", trade.PnLPercent.Float64*100).
		Msg("position closed")
	return nil
}

func (c *Coordinator) activeStrategy(r regime.Regime) strategy.Strategy {
	if r == regime.Trending {
		return c.trending
	}
	return c.ranging
}

func (c *Coordinator) strategyByName(name string) strategy.Strategy {
	switch name {
	case c.ranging.Name():
		return c.ranging
	case c.trending.Name():
		return c.trending
	}
	return nil
}

func (c *Coordinator) publishStatus(ctx context.Context) {
	open := make([]strategy.PositionInfo, 0, len(c.positions))
	for _, strat := range []strategy.Strategy{c.ranging, c.trending} {
		count := 0.0
		if pos, ok := c.positions[strat.Name()]; ok {
			open = append(open, *pos)
			count = 1
		}
		metrics.PositionsOpen.WithLabelValues(strat.Name()).Set(count)
	}

	balance, err := c.account.AvailableBalance(ctx)
	if err == nil {
		metrics.EquityGauge.Set(balance)
	}
	c.board.Update(c.detector.Status(), c.activeStrategy(c.detector.Current()).Name(), open, balance)
}

func sideFor(dir strategy.Direction) exchange.Side {
	if dir == strategy.Short {
		return exchange.Sell
	}
	return exchange.Buy
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/typhoonlabs/typhoon/internal/analysis"
	"github.com/typhoonlabs/typhoon/internal/api"
	"github.com/typhoonlabs/typhoon/internal/bot"
	"github.com/typhoonlabs/typhoon/internal/config"
	"github.com/typhoonlabs/typhoon/internal/exchange"
	"github.com/typhoonlabs/typhoon/internal/regime"
	"github.com/typhoonlabs/typhoon/internal/risk"
	"github.com/typhoonlabs/typhoon/internal/store"
	"github.com/typhoonlabs/typhoon/internal/strategy"
)

const (
	appName = "typhoon"
	version = "v1.0.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Regime-switching crypto trading bot",
		Version: version,
		Long: `Typhoon trades one pair with two strategies and lets the market pick
which one is live: mean reversion while the market ranges, trend
breakouts while it trends. Regime is classified from ADX with
hysteresis so the bot does not flip-flop at the boundary.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the trading loop and status API",
		RunE:  runBot,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print per-strategy performance from the trade journal",
		RunE:  runAnalyze,
	}

	paperCmd := &cobra.Command{
		Use:   "paper",
		Short: "Paper trading utilities",
	}
	paperResetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the trade journal and start paper trading fresh",
		RunE:  runPaperReset,
	}
	paperCmd.AddCommand(paperResetCmd)

	rootCmd.AddCommand(runCmd, analyzeCmd, paperCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.LogLevel)

	journal, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer journal.Close()

	binance := exchange.NewBinance(exchange.BinanceConfig{
		BaseURL:      cfg.BinanceBaseURL,
		APIKey:       cfg.BinanceAPIKey,
		Secret:       cfg.BinanceSecret,
		QuoteAsset:   cfg.QuoteAsset,
		MinOrderSize: cfg.MinOrderSize,
	}, logger.With().Str("component", "binance").Logger())

	var (
		account  exchange.Account  = binance
		executor exchange.Executor = binance
	)
	if cfg.DryRun {
		broker := exchange.NewPaperBroker(
			binance,
			exchange.NewLedger(cfg.SimulatedBalance),
			cfg.MinOrderSize,
			logger.With().Str("component", "paper").Logger(),
		)
		account, executor = broker, broker
		logger.Info().Float64("balance", cfg.SimulatedBalance).Msg("dry run: orders settle on the paper ledger")
	} else {
		logger.Warn().Msg("live trading enabled")
	}

	detector := regime.New(regime.Config{
		ADXPeriod:   cfg.ADXPeriod,
		TrendStart:  cfg.ADXTrendStart,
		RangeReturn: cfg.ADXRangeReturn,
		Cooldown:    cfg.RegimeCooldown,
	}, logger.With().Str("component", "regime").Logger())

	meanReversion := strategy.NewMeanReversion(strategy.MeanReversionConfig{
		Timeframe:     cfg.MeanReversionTimeframe,
		BBPeriod:      cfg.BBPeriod,
		BBStdDev:      cfg.BBStdDev,
		RSIPeriod:     cfg.RSIPeriod,
		RSIOversold:   cfg.RSIOversold,
		RSIOverbought: cfg.RSIOverbought,
		ATRPeriod:     cfg.ATRPeriod,
		ATRStopMult:   cfg.ATRStopMultiplier,
	}, logger.With().Str("strategy", strategy.MeanReversionName).Logger())
	trendSniper := strategy.NewTrendSniper(strategy.TrendSniperConfig{
		Timeframe:      cfg.TrendTimeframe,
		DonchianPeriod: cfg.DonchianPeriod,
		EMAPeriod:      cfg.EMAPeriod,
	}, logger.With().Str("strategy", strategy.TrendSniperName).Logger())

	board := bot.NewStatusBoard(cfg.TradingPair, cfg.DryRun)
	coordinator := bot.New(
		bot.Config{
			Symbol:          cfg.TradingPair,
			RegimeTimeframe: cfg.RegimeTimeframe,
			LoopInterval:    cfg.LoopInterval,
			SeriesLimit:     cfg.EMAPeriod + 100,
		},
		binance, account, executor, detector,
		meanReversion, trendSniper,
		risk.Sizer{PositionSizePercent: cfg.PositionSizePercent},
		journal, board,
		logger.With().Str("component", "coordinator").Logger(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coordinator.Reconcile(ctx); err != nil {
		return err
	}

	server := api.NewServer(cfg.ListenAddr, board, journal,
		logger.With().Str("component", "api").Logger())
	errc := make(chan error, 2)
	go func() { errc <- server.Start(ctx) }()
	go func() { errc <- coordinator.Run(ctx) }()

	err = <-errc
	stop()
	<-errc
	if err == context.Canceled {
		return nil
	}
	return err
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	journal, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer journal.Close()

	trades, err := journal.ClosedTrades(cmd.Context(), 0)
	if err != nil {
		return err
	}
	fmt.Print(analysis.Render(analysis.Build(trades)))
	return nil
}

func runPaperReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := os.Remove(cfg.DatabasePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove journal: %w", err)
	}
	log.Info().Str("path", cfg.DatabasePath).Msg("trade journal reset")
	return nil
}

func buildLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return log.Logger.Level(lvl)
}

package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/typhoonlabs/typhoon/internal/market"
)

// BinanceConfig configures the spot REST client. Market data endpoints are
// keyless; account and order endpoints need the API credentials.
type BinanceConfig struct {
	BaseURL      string
	APIKey       string
	Secret       string
	QuoteAsset   string  // balance currency, e.g. USDT
	MinOrderSize float64 // venue minimum order amount in base currency
}

// Binance is the live venue client. It rate-limits all calls through a
// token bucket, trips a circuit breaker on sustained failures and retries
// transient errors with exponential backoff.
type Binance struct {
	cfg     BinanceConfig
	httpc   *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewBinance creates the client. An empty BaseURL selects the public spot
// API.
func NewBinance(cfg BinanceConfig, log zerolog.Logger) *Binance {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	return &Binance{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "binance",
			Interval: time.Minute,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).
					Str("from", from.String()).Str("to", to.String()).
					Msg("circuit breaker state change")
			},
		}),
		log: log,
	}
}

// transientError marks a response worth retrying.
func transientError(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// request performs one HTTP call through the rate limiter, circuit breaker
// and retry policy, and decodes the JSON body into out.
func (b *Binance) request(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	operation := func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		_, err := b.breaker.Execute(func() (any, error) {
			return nil, b.do(ctx, method, path, params, signed, out)
		})
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("binance %s %s: %w", method, path, err)
	}
	return nil
}

func (b *Binance) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", b.sign(params.Encode()))
	}

	fullURL := b.cfg.BaseURL + path
	var body io.Reader
	if method == http.MethodGet {
		fullURL += "?" + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return backoff.Permanent(err)
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", b.cfg.APIKey)
	}

	resp, err := b.httpc.Do(req)
	if err != nil {
		return err // network errors are retryable
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		if transientError(resp.StatusCode) {
			return err
		}
		return backoff.Permanent(err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (b *Binance) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(b.cfg.Secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// venueSymbol converts "BTC/USDT" to the venue's "BTCUSDT".
func venueSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// FetchSeries pulls a kline window. The venue returns bars oldest-first,
// which matches the series ordering invariant directly.
func (b *Binance) FetchSeries(ctx context.Context, symbol, timeframe string, limit int) (market.Series, error) {
	params := url.Values{}
	params.Set("symbol", venueSymbol(symbol))
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	var rows [][]any
	if err := b.request(ctx, http.MethodGet, "/api/v3/klines", params, false, &rows); err != nil {
		return nil, err
	}

	series := make(market.Series, 0, len(rows))
	for _, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("parse kline: %w", err)
		}
		series = append(series, candle)
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}

func parseKline(row []any) (market.Candle, error) {
	if len(row) < 6 {
		return market.Candle{}, fmt.Errorf("kline row has %d fields, want >= 6", len(row))
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return market.Candle{}, fmt.Errorf("kline open time %v is not numeric", row[0])
	}
	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		s, ok := row[i].(string)
		if !ok {
			return market.Candle{}, fmt.Errorf("kline field %d (%v) is not a string", i, row[i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, err
		}
		fields[i-1] = v
	}
	return market.Candle{
		Timestamp: time.UnixMilli(int64(openTime)).UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

// CurrentPrice returns the latest traded price for the symbol.
func (b *Binance) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", venueSymbol(symbol))

	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := b.request(ctx, http.MethodGet, "/api/v3/ticker/price", params, false, &out); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", out.Price, err)
	}
	return price, nil
}

// AvailableBalance returns the free balance of the configured quote asset.
func (b *Binance) AvailableBalance(ctx context.Context) (float64, error) {
	var out struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := b.request(ctx, http.MethodGet, "/api/v3/account", nil, true, &out); err != nil {
		return 0, err
	}
	for _, bal := range out.Balances {
		if bal.Asset == b.cfg.QuoteAsset {
			free, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("parse balance %q: %w", bal.Free, err)
			}
			return free, nil
		}
	}
	return 0, nil
}

// MinOrderSize returns the venue minimum order amount for the symbol.
func (b *Binance) MinOrderSize(string) float64 { return b.cfg.MinOrderSize }

// PlaceMarketOrder submits a live market order and reports the average fill
// price.
func (b *Binance) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", venueSymbol(req.Symbol))
	params.Set("side", string(req.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(req.Amount, 'f', -1, 64))

	var out struct {
		OrderID int64 `json:"orderId"`
		Fills   []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"fills"`
	}
	if err := b.request(ctx, http.MethodPost, "/api/v3/order", params, true, &out); err != nil {
		return nil, err
	}

	price, err := averageFillPrice(out.Fills)
	if err != nil {
		return nil, err
	}
	if price == 0 {
		if price, err = b.CurrentPrice(ctx, req.Symbol); err != nil {
			return nil, err
		}
	}

	b.log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("amount", req.Amount).
		Float64("price", price).
		Msg("market order filled")

	return &OrderResult{
		OrderID:     strconv.FormatInt(out.OrderID, 10),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Amount:      req.Amount,
		FilledPrice: price,
	}, nil
}

func averageFillPrice(fills []struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}) (float64, error) {
	var notional, qty float64
	for _, f := range fills {
		p, err := strconv.ParseFloat(f.Price, 64)
		if err != nil {
			return 0, err
		}
		q, err := strconv.ParseFloat(f.Qty, 64)
		if err != nil {
			return 0, err
		}
		notional += p * q
		qty += q
	}
	if qty == 0 {
		return 0, nil
	}
	return notional / qty, nil
}

// ClosePosition flattens an open position with an opposite market order.
func (b *Binance) ClosePosition(ctx context.Context, req CloseRequest) (*OrderResult, error) {
	return b.PlaceMarketOrder(ctx, OrderRequest{
		Symbol: req.Symbol,
		Side:   req.Side.Opposite(),
		Amount: req.Size,
		Tag:    req.Tag,
	})
}

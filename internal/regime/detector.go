// Package regime classifies market character as RANGING or TRENDING from the
// ADX trend-strength reading, with hysteresis and a post-flip cooldown.
package regime

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/typhoonlabs/typhoon/internal/indicator"
	"github.com/typhoonlabs/typhoon/internal/market"
)

// Regime is the detector's classification of current market character.
type Regime string

const (
	Ranging  Regime = "RANGING"
	Trending Regime = "TRENDING"
)

// Config holds the detector's thresholds.
//
// TrendStart must be greater than RangeReturn: readings between the two form
// a dead zone in which the current regime is kept, which is what prevents
// rapid flip-flopping around a single boundary.
type Config struct {
	ADXPeriod   int
	TrendStart  float64
	RangeReturn float64
	Cooldown    time.Duration
}

// Detector is the hysteresis state machine. It owns the current regime; all
// other components read it through Detect or Status. Not safe for concurrent
// use — the single coordinator loop is the only writer.
type Detector struct {
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
	current    Regime
	lastChange time.Time // zero until the first transition
	lastADX    float64
}

// New creates a detector starting in RANGING with no cooldown pending.
func New(cfg Config, log zerolog.Logger) *Detector {
	return &Detector{
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		current: Ranging,
	}
}

// WithClock overrides the time source. Tests use this to step through
// cooldown windows deterministically.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Current returns the current regime without re-evaluating it.
func (d *Detector) Current() Regime { return d.current }

// LastADX returns the most recent defined ADX reading.
func (d *Detector) LastADX() float64 { return d.lastADX }

// InCooldown reports whether a regime change happened less than the cooldown
// window ago. Cooldown blocks new entries only; exits and trailing-stop
// updates always run.
func (d *Detector) InCooldown() bool {
	if d.lastChange.IsZero() {
		return false
	}
	return d.now().Before(d.lastChange.Add(d.cfg.Cooldown))
}

// CooldownRemaining returns the whole seconds left in the cooldown window,
// or 0 when not in cooldown.
func (d *Detector) CooldownRemaining() int {
	if !d.InCooldown() {
		return 0
	}
	remaining := d.lastChange.Add(d.cfg.Cooldown).Sub(d.now()).Seconds()
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// Detect computes ADX over the series and applies the hysteresis rule:
// RANGING flips to TRENDING only above TrendStart, TRENDING flips back only
// below RangeReturn. An undefined ADX (short or gap-ridden series) never
// causes a transition; the previous reading is kept instead.
func (d *Detector) Detect(s market.Series) (Regime, bool) {
	return d.apply(d.computeADX(s))
}

// apply runs one hysteresis step against a trend-strength reading.
func (d *Detector) apply(adx float64) (Regime, bool) {
	previous := d.current
	changed := false

	switch d.current {
	case Ranging:
		if adx > d.cfg.TrendStart {
			d.transition(Trending, adx)
			changed = true
		}
	case Trending:
		if adx < d.cfg.RangeReturn {
			d.transition(Ranging, adx)
			changed = true
		}
	}

	if !changed {
		d.log.Debug().
			Str("regime", string(previous)).
			Float64("adx", adx).
			Float64("range_return", d.cfg.RangeReturn).
			Float64("trend_start", d.cfg.TrendStart).
			Msg("regime unchanged")
	}
	return d.current, changed
}

func (d *Detector) transition(to Regime, adx float64) {
	from := d.current
	d.current = to
	d.lastChange = d.now()
	d.log.Info().
		Str("old", string(from)).
		Str("new", string(to)).
		Float64("adx", adx).
		Msg("regime change detected")
}

// computeADX returns the latest ADX value, falling back to the stored last
// reading when the series is too short or the tail value is undefined. A
// data gap can therefore never flip the regime on its own.
func (d *Detector) computeADX(s market.Series) float64 {
	if s.Len() < d.cfg.ADXPeriod+1 {
		d.log.Warn().Int("bars", s.Len()).Msg("insufficient data for ADX")
		return d.lastADX
	}
	values := indicator.ADX(s.Highs(), s.Lows(), s.Closes(), d.cfg.ADXPeriod)
	latest := values[len(values)-1]
	if !indicator.Defined(latest) {
		d.log.Warn().Msg("ADX undefined, keeping previous reading")
		return d.lastADX
	}
	d.lastADX = latest
	return latest
}

// Status is the detector's observable state, consumed by the status API.
type Status struct {
	Regime            Regime  `json:"regime"`
	ADX               float64 `json:"adx"`
	InCooldown        bool    `json:"in_cooldown"`
	CooldownRemaining int     `json:"cooldown_remaining"`
	TrendStart        float64 `json:"trend_start"`
	RangeReturn       float64 `json:"range_return"`
}

// Status returns a read-only snapshot for observability surfaces.
func (d *Detector) Status() Status {
	return Status{
		Regime:            d.current,
		ADX:               d.lastADX,
		InCooldown:        d.InCooldown(),
		CooldownRemaining: d.CooldownRemaining(),
		TrendStart:        d.cfg.TrendStart,
		RangeReturn:       d.cfg.RangeReturn,
	}
}

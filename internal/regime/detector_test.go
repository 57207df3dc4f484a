package regime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typhoonlabs/typhoon/internal/market"
)

func testConfig() Config {
	return Config{
		ADXPeriod:   14,
		TrendStart:  25,
		RangeReturn: 20,
		Cooldown:    900 * time.Second,
	}
}

func newTestDetector(t *testing.T) (*Detector, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := New(testConfig(), zerolog.Nop()).WithClock(func() time.Time { return now })
	return d, &now
}

func trendingSeries(n int) market.Series {
	s := make(market.Series, n)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range s {
		close := 100 + float64(i)
		s[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      close - 0.5,
			High:      close + 0.5,
			Low:       close - 0.5,
			Close:     close,
			Volume:    10,
		}
	}
	return s
}

func TestDetector_InitialState(t *testing.T) {
	d, _ := newTestDetector(t)

	assert.Equal(t, Ranging, d.Current())
	assert.False(t, d.InCooldown())
	assert.Equal(t, 0, d.CooldownRemaining())
}

func TestDetector_HysteresisScenario(t *testing.T) {
	// [18, 22, 26, 24, 19] with trend_start=25, range_return=20: flips to
	// TRENDING at 26, holds through the 24 dead zone, returns at 19.
	d, _ := newTestDetector(t)

	steps := []struct {
		adx     float64
		want    Regime
		changed bool
	}{
		{18, Ranging, false},
		{22, Ranging, false},
		{26, Trending, true},
		{24, Trending, false},
		{19, Ranging, true},
	}
	for _, step := range steps {
		got, changed := d.apply(step.adx)
		assert.Equal(t, step.want, got, "adx=%v", step.adx)
		assert.Equal(t, step.changed, changed, "adx=%v", step.adx)
	}
}

func TestDetector_DeadZoneNeverTransitions(t *testing.T) {
	d, _ := newTestDetector(t)

	// Values strictly between range_return and trend_start hold RANGING...
	for _, adx := range []float64{20.5, 22, 24.9, 21, 23.3} {
		got, changed := d.apply(adx)
		assert.Equal(t, Ranging, got)
		assert.False(t, changed)
	}

	// ...and hold TRENDING too once we cross over.
	_, changed := d.apply(30)
	require.True(t, changed)
	for _, adx := range []float64{24.9, 20.5, 23.3, 22} {
		got, changed := d.apply(adx)
		assert.Equal(t, Trending, got)
		assert.False(t, changed)
	}
}

func TestDetector_ThresholdsAreStrict(t *testing.T) {
	d, _ := newTestDetector(t)

	// Exactly trend_start does not flip (rule is strictly greater).
	_, changed := d.apply(25)
	assert.False(t, changed)
	assert.Equal(t, Ranging, d.Current())

	_, changed = d.apply(25.01)
	assert.True(t, changed)

	// Exactly range_return does not flip back (rule is strictly less).
	_, changed = d.apply(20)
	assert.False(t, changed)
	assert.Equal(t, Trending, d.Current())

	_, changed = d.apply(19.99)
	assert.True(t, changed)
}

func TestDetector_CooldownCountdown(t *testing.T) {
	d, now := newTestDetector(t)

	_, changed := d.apply(30)
	require.True(t, changed)

	assert.True(t, d.InCooldown())
	assert.Equal(t, 900, d.CooldownRemaining())

	*now = now.Add(400 * time.Second)
	assert.True(t, d.InCooldown())
	assert.Equal(t, 500, d.CooldownRemaining())

	*now = now.Add(500 * time.Second)
	assert.False(t, d.InCooldown())
	assert.Equal(t, 0, d.CooldownRemaining())

	// Stays out of cooldown until the next transition.
	*now = now.Add(time.Hour)
	assert.False(t, d.InCooldown())

	_, changed = d.apply(10)
	require.True(t, changed)
	assert.True(t, d.InCooldown())
	assert.Equal(t, 900, d.CooldownRemaining())
}

func TestDetector_ShortSeriesIsSafe(t *testing.T) {
	d, _ := newTestDetector(t)

	got, changed := d.Detect(trendingSeries(5))
	assert.Equal(t, Ranging, got)
	assert.False(t, changed)
	assert.Equal(t, 0.0, d.LastADX())
}

func TestDetector_UndefinedADXKeepsPreviousReading(t *testing.T) {
	d, _ := newTestDetector(t)

	// A full window produces a real reading and a transition.
	got, changed := d.Detect(trendingSeries(100))
	require.Equal(t, Trending, got)
	require.True(t, changed)
	adx := d.LastADX()
	require.Greater(t, adx, 25.0)

	// A window long enough to pass the minimum-bars guard but too short for
	// ADX warm-up leaves the reading and the regime untouched.
	got, changed = d.Detect(trendingSeries(20))
	assert.Equal(t, Trending, got)
	assert.False(t, changed)
	assert.Equal(t, adx, d.LastADX())
}

func TestDetector_DetectFromSeries(t *testing.T) {
	d, _ := newTestDetector(t)

	got, changed := d.Detect(trendingSeries(100))
	assert.Equal(t, Trending, got)
	assert.True(t, changed)
	assert.Greater(t, d.LastADX(), 25.0)

	status := d.Status()
	assert.Equal(t, Trending, status.Regime)
	assert.True(t, status.InCooldown)
	assert.Equal(t, 900, status.CooldownRemaining)
}

package bot

import (
	"sync"
	"time"

	"github.com/typhoonlabs/typhoon/internal/regime"
	"github.com/typhoonlabs/typhoon/internal/strategy"
)

// StatusSnapshot is the point-in-time state served by the status API.
type StatusSnapshot struct {
	Symbol           string                  `json:"symbol"`
	DryRun           bool                    `json:"dry_run"`
	Regime           regime.Status           `json:"regime"`
	ActiveStrategy   string                  `json:"active_strategy"`
	Positions        []strategy.PositionInfo `json:"positions"`
	AvailableBalance float64                 `json:"available_balance"`
	LastIteration    time.Time               `json:"last_iteration"`
	LastError        string                  `json:"last_error,omitempty"`
	StartedAt        time.Time               `json:"started_at"`
}

// StatusBoard is the mutex-guarded snapshot the coordinator publishes to and
// the HTTP API reads from. It decouples the API handlers from loop state.
type StatusBoard struct {
	mu   sync.RWMutex
	snap StatusSnapshot
}

// NewStatusBoard creates a board with static identity fields filled in.
func NewStatusBoard(symbol string, dryRun bool) *StatusBoard {
	return &StatusBoard{snap: StatusSnapshot{
		Symbol:    symbol,
		DryRun:    dryRun,
		Positions: []strategy.PositionInfo{},
		StartedAt: time.Now().UTC(),
	}}
}

// Update publishes the state of a completed iteration.
func (b *StatusBoard) Update(r regime.Status, activeStrategy string, positions []strategy.PositionInfo, balance float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Regime = r
	b.snap.ActiveStrategy = activeStrategy
	b.snap.Positions = positions
	b.snap.AvailableBalance = balance
	b.snap.LastIteration = time.Now().UTC()
	b.snap.LastError = ""
}

// SetLastError records a failed iteration without touching the rest of the
// snapshot.
func (b *StatusBoard) SetLastError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.LastError = err.Error()
}

// Snapshot returns a copy of the current state.
func (b *StatusBoard) Snapshot() StatusSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := b.snap
	snap.Positions = append([]strategy.PositionInfo(nil), b.snap.Positions...)
	return snap
}

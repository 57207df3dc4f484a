// Package analysis summarizes the trade journal into per-strategy
// performance reports.
package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/typhoonlabs/typhoon/internal/store"
)

// StrategyReport aggregates the closed trades of one strategy.
type StrategyReport struct {
	Strategy      string  `json:"strategy"`
	Trades        int     `json:"trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AvgPnLPercent float64 `json:"avg_pnl_percent"`
	BestPercent   float64 `json:"best_percent"`
	WorstPercent  float64 `json:"worst_percent"`
}

// Report is the full performance summary.
type Report struct {
	Strategies []StrategyReport `json:"strategies"`
	TotalPnL   float64          `json:"total_pnl"`
}

// Build aggregates closed trades into a report. Trades still open are
// skipped. Strategies appear in alphabetical order.
func Build(trades []store.Trade) Report {
	byStrategy := make(map[string][]store.Trade)
	for _, t := range trades {
		if t.Open() {
			continue
		}
		byStrategy[t.Strategy] = append(byStrategy[t.Strategy], t)
	}

	names := make([]string, 0, len(byStrategy))
	for name := range byStrategy {
		names = append(names, name)
	}
	sort.Strings(names)

	var report Report
	for _, name := range names {
		sr := buildStrategy(name, byStrategy[name])
		report.Strategies = append(report.Strategies, sr)
		report.TotalPnL += sr.TotalPnL
	}
	return report
}

func buildStrategy(name string, trades []store.Trade) StrategyReport {
	sr := StrategyReport{Strategy: name, Trades: len(trades)}

	var sumPercent float64
	for i, t := range trades {
		pct := t.PnLPercent.Float64
		sumPercent += pct
		sr.TotalPnL += t.PnLAbsolute.Float64
		if pct > 0 {
			sr.Wins++
		} else {
			sr.Losses++
		}
		if i == 0 || pct > sr.BestPercent {
			sr.BestPercent = pct
		}
		if i == 0 || pct < sr.WorstPercent {
			sr.WorstPercent = pct
		}
	}
	if sr.Trades > 0 {
		sr.WinRate = float64(sr.Wins) / float64(sr.Trades)
		sr.AvgPnLPercent = sumPercent / float64(sr.Trades)
	}
	return sr
}

// Render formats the report as the plain-text table printed by the analyze
// command.
func Render(r Report) string {
	var b strings.Builder
	b.WriteString("Strategy performance\n")
	b.WriteString("====================\n")
	if len(r.Strategies) == 0 {
		b.WriteString("no closed trades yet\n")
		return b.String()
	}
	for _, s := range r.Strategies {
		fmt.Fprintf(&b, "\n%s\n", s.Strategy)
		fmt.Fprintf(&b, "  trades:    %d (%d won / %d lost, %.1f%% win rate)\n",
			s.Trades, s.Wins, s.Losses, s.WinRate*100)
		fmt.Fprintf(&b, "  total pnl: %+.2f\n", s.TotalPnL)
		fmt.Fprintf(&b, "  avg pnl:   %+.2f%%\n", s.AvgPnLPercent*100)
		fmt.Fprintf(&b, "  best:      %+.2f%%  worst: %+.2f%%\n",
			s.BestPercent*100, s.WorstPercent*100)
	}
	fmt.Fprintf(&b, "\noverall pnl: %+.2f\n", r.TotalPnL)
	return b.String()
}

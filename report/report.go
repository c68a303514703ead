// Package report turns simulation snapshots into text for the terminal,
// the status server and the log.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/samber/lo"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/memo"
	"github.com/domino14/bjsim/stats"
	"github.com/domino14/bjsim/strategy"
)

// Confidence is the confidence level, in percent, of the reported edge
// interval.
const Confidence = 99

var severityNames = [3]string{"considerable", "concerning", "critical"}

// upcards is the column order of the deviation grid, matching the charts.
var upcards = append(append([]deck.Rank{}, deck.Ranks[1:]...), deck.Ace)

// Render formats a snapshot, followed by the given memo table stats.
func Render(snap stats.Snapshot, memos ...memo.Stats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rules: %s  Method: %s  Elapsed: %s\n", snap.Rules, snap.Method,
		snap.Elapsed.Round(1e6))
	fmt.Fprintf(&sb, "Rounds: %d  Hands: %d  Shoes: %d  (%.0f hands/sec)\n",
		snap.Rounds, snap.Hands, snap.Shoes, snap.HandsPerSecond())
	fmt.Fprintf(&sb, "Units wagered: %.1f  returned: %.1f\n", snap.UnitsWagered, snap.UnitsReturned)
	low, high := snap.EdgeInterval(Confidence)
	fmt.Fprintf(&sb, "Edge: %+.4f%% per round (%d%% interval %+.4f%% to %+.4f%%)\n",
		100*snap.Edge(), Confidence, 100*low, 100*high)

	if snap.Decision > 0 {
		fmt.Fprintf(&sb, "Decisions: %d  Deviations: %d (%.3f%%)\n", snap.Decision,
			snap.Deviations, 100*snap.DeviationRate())
		fmt.Fprintf(&sb, "EV gain over chart: %+.6f per round\n", snap.GainPerRound())
		parts := make([]string, len(severityNames))
		for i, n := range severityNames {
			parts[i] = fmt.Sprintf("%s %d", n, snap.Severity[i])
		}
		fmt.Fprintf(&sb, "Notable deviations: %s\n", strings.Join(parts, ", "))
	}
	if snap.InsuranceOffered > 0 {
		fmt.Fprintf(&sb, "Insurance: offered %d, taken %d, won %d, net %+.2f, EV %+.4f\n",
			snap.InsuranceOffered, snap.InsuranceTaken, snap.InsuranceWon,
			snap.InsuranceNet, snap.InsuranceEV)
	}
	if snap.Deviations > 0 {
		sb.WriteString("\nDeviations by hand and upcard:\n")
		sb.WriteString(Grid(snap.DeviationMap))
	}
	if len(memos) > 0 {
		sb.WriteString("\n")
		for _, m := range memos {
			fmt.Fprintf(&sb, "Memo %-7s lookups %d, hit rate %.2f%%, size %d, evictions %d\n",
				m.Name, m.Lookups, 100*m.HitRate, m.Size, m.Evictions)
		}
	}
	return sb.String()
}

// Grid renders the rows of g that have any nonzero cell, one column per
// upcard.
func Grid(g stats.Grid) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-8s", "")
	for _, u := range upcards {
		fmt.Fprintf(&sb, "%7s", u)
	}
	sb.WriteString("\n")
	rows := lo.Filter(lo.Range(strategy.NumCategories), func(i, _ int) bool {
		return lo.SomeBy(g[i][:], func(n int64) bool { return n != 0 })
	})
	for _, i := range rows {
		fmt.Fprintf(&sb, "%-8s", strategy.CategoryAt(i))
		for _, u := range upcards {
			if n := g[i][u]; n != 0 {
				fmt.Fprintf(&sb, "%7d", n)
			} else {
				fmt.Fprintf(&sb, "%7s", ".")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Histogram draws the distribution of deviation EV gains.
func Histogram(gains []float64, bins int) (string, error) {
	if len(gains) == 0 {
		return "no deviations yet\n", nil
	}
	if bins < 1 {
		bins = 1
	}
	var buf bytes.Buffer
	hist := histogram.Hist(bins, gains)
	if err := histogram.Fprint(&buf, hist, histogram.Linear(40)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

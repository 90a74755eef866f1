package engine

import (
	"sort"

	"github.com/thoas/go-funk"
)

// MinPerformance is the entry qualification bar for Select.
type MinPerformance struct {
	AvgConfidence float64
}

// RankedAdapter pairs one live adapter with its computed selection score.
type RankedAdapter struct {
	Adapter Adapter
	Score   float64
	Metrics MetricsSnapshot
}

const (
	scoreConfidenceWeight = 0.4
	scoreSuccessWeight    = 30.0
	scoreLatencyCap       = 30.0
	scoreLatencyWeight    = 0.2
	scorePreferenceWeight = 0.1
	preferenceBonusStep   = 25.0
	preferenceBonusMax    = 100.0
)

// Rank scores every initialized adapter for the given document type and
// returns them in descending score order, ties broken by registration order.
func (r *Registry) Rank(docType string) []RankedAdapter {
	regs := r.initializedRegs()
	prefs := r.preferenceFor(docType)

	ranked := make([]RankedAdapter, 0, len(regs))
	orders := make(map[string]int, len(regs))
	for _, reg := range regs {
		snap := reg.metrics.Snapshot()
		orders[reg.adapter.Name()] = reg.order
		ranked = append(ranked, RankedAdapter{
			Adapter: reg.adapter,
			Score:   selectionScore(snap, preferenceBonus(prefs, reg.adapter.Name())),
			Metrics: snap,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return orders[ranked[i].Adapter.Name()] < orders[ranked[j].Adapter.Name()]
	})
	return ranked
}

// Select returns the first ranked adapter for docType that supports the
// format and meets minPerf, falling back to any initialized adapter when
// none qualifies. It returns nil when no adapter is initialized.
func (r *Registry) Select(docType string, minPerf MinPerformance) Adapter {
	ranked := r.Rank(docType)
	candidates := funk.Filter(ranked, func(ra RankedAdapter) bool {
		return ra.Adapter.SupportsFormat(docType)
	}).([]RankedAdapter)

	for _, ra := range candidates {
		if ra.Metrics.AvgConfidence >= minPerf.AvgConfidence {
			return ra.Adapter
		}
	}
	if len(candidates) > 0 {
		return candidates[0].Adapter
	}
	if len(ranked) > 0 {
		return ranked[0].Adapter
	}
	return nil
}

func selectionScore(snap MetricsSnapshot, prefBonus float64) float64 {
	latencyTerm := scoreLatencyCap
	if secs := snap.AvgProcessingTime.Seconds(); secs > 0 {
		latencyTerm = scoreLatencyCap / secs
		if latencyTerm > scoreLatencyCap {
			latencyTerm = scoreLatencyCap
		}
	}
	return scoreConfidenceWeight*snap.AvgConfidence +
		scoreSuccessWeight*snap.SuccessRate() +
		latencyTerm*scoreLatencyWeight +
		prefBonus*scorePreferenceWeight
}

// preferenceBonus rewards adapters by their position in the document-type
// preference list: 100 for the first entry, 25 less per position, floor 0.
func preferenceBonus(prefs []string, name string) float64 {
	for i, p := range prefs {
		if p == name {
			bonus := preferenceBonusMax - preferenceBonusStep*float64(i)
			if bonus < 0 {
				return 0
			}
			return bonus
		}
	}
	return 0
}

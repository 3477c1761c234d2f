package attribution

import (
	"sort"

	"github.com/danielpatrickdp/driftguard/internal/drift"
)

// #region entry

// Entry is a single feature's share of the overall drift score.
// Contributions sum to at most 1 across all entries of a detection run.
type Entry struct {
	FeatureName  string  `json:"feature_name"`
	Contribution float64 `json:"contribution"`
}

// #endregion entry

// #region rank

// Rank orders feature drifts by their contribution to the aggregate drift
// score. Contribution is each feature's PSI share of the PSI total; ties
// break by feature name for determinism. Pure function, no side effects.
func Rank(drifts []drift.FeatureDrift) ([]drift.FeatureDrift, []Entry) {
	var psiTotal float64
	for _, d := range drifts {
		psiTotal += d.PSIScore
	}

	entries := make([]Entry, len(drifts))
	ordered := make([]drift.FeatureDrift, len(drifts))
	copy(ordered, drifts)

	for i, d := range drifts {
		contribution := 0.0
		if psiTotal > 0 {
			contribution = d.PSIScore / psiTotal
		}
		entries[i] = Entry{FeatureName: d.FeatureName, Contribution: contribution}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Contribution != entries[j].Contribution {
			return entries[i].Contribution > entries[j].Contribution
		}
		return entries[i].FeatureName < entries[j].FeatureName
	})
	sort.SliceStable(ordered, func(i, j int) bool {
		pi := contributionOf(ordered[i], psiTotal)
		pj := contributionOf(ordered[j], psiTotal)
		if pi != pj {
			return pi > pj
		}
		return ordered[i].FeatureName < ordered[j].FeatureName
	})

	return ordered, entries
}

func contributionOf(d drift.FeatureDrift, psiTotal float64) float64 {
	if psiTotal == 0 {
		return 0
	}
	return d.PSIScore / psiTotal
}

// #endregion rank

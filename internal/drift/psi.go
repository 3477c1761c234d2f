package drift

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// binFloor keeps bin percentages away from zero so ln(cur/ref) stays finite.
const binFloor = 1e-4

// #region psi

// PSI computes the Population Stability Index between reference and current
// values using quantile bins derived from the reference distribution.
func PSI(reference, current []float64, bins int) float64 {
	if len(reference) == 0 || len(current) == 0 || bins < 2 {
		return 0
	}

	sortedRef := make([]float64, len(reference))
	copy(sortedRef, reference)
	sort.Float64s(sortedRef)

	// Interior bin edges at reference quantiles 1/bins .. (bins-1)/bins.
	edges := make([]float64, bins-1)
	for i := 1; i < bins; i++ {
		edges[i-1] = stat.Quantile(float64(i)/float64(bins), stat.Empirical, sortedRef, nil)
	}

	refPct := binFractions(reference, edges, bins)
	curPct := binFractions(current, edges, bins)

	var psi float64
	for b := 0; b < bins; b++ {
		rp := math.Max(refPct[b], binFloor)
		cp := math.Max(curPct[b], binFloor)
		psi += (cp - rp) * math.Log(cp/rp)
	}
	return psi
}

// #endregion psi

// #region bin-fractions

// binFractions counts the fraction of values falling in each bin defined by
// the interior edges. Values above the last edge land in the final bin.
func binFractions(values []float64, edges []float64, bins int) []float64 {
	counts := make([]float64, bins)
	for _, v := range values {
		b := sort.SearchFloat64s(edges, v)
		// SearchFloat64s returns the insertion index, which is the bin index:
		// values <= edges[0] land in bin 0, values > edges[len-1] in the last bin.
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}
	n := float64(len(values))
	for b := range counts {
		counts[b] /= n
	}
	return counts
}

// #endregion bin-fractions

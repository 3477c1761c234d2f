package drift

import (
	"math"
	"sort"
)

// #region ks-statistic

// KSStatistic computes the two-sample Kolmogorov-Smirnov statistic:
// D = max |F1(x) - F2(x)| over the merged empirical CDFs.
func KSStatistic(sample1, sample2 []float64) float64 {
	if len(sample1) == 0 || len(sample2) == 0 {
		return 0
	}

	s1 := make([]float64, len(sample1))
	s2 := make([]float64, len(sample2))
	copy(s1, sample1)
	copy(s2, sample2)
	sort.Float64s(s1)
	sort.Float64s(s2)

	n1, n2 := float64(len(s1)), float64(len(s2))

	i, j := 0, 0
	maxD := 0.0
	for i < len(s1) && j < len(s2) {
		d := math.Abs(float64(i)/n1 - float64(j)/n2)
		if d > maxD {
			maxD = d
		}
		switch {
		case s1[i] < s2[j]:
			i++
		case s2[j] < s1[i]:
			j++
		default:
			i++
			j++
		}
	}
	for i < len(s1) {
		d := math.Abs(float64(i)/n1 - 1.0)
		if d > maxD {
			maxD = d
		}
		i++
	}
	for j < len(s2) {
		d := math.Abs(1.0 - float64(j)/n2)
		if d > maxD {
			maxD = d
		}
		j++
	}
	return maxD
}

// #endregion ks-statistic

// #region ks-pvalue

// KSPValue approximates the two-sample KS p-value from the Kolmogorov
// distribution given the statistic and both sample sizes.
func KSPValue(statistic float64, n1, n2 int) float64 {
	if n1 == 0 || n2 == 0 || statistic <= 0 {
		return 1.0
	}
	// Effective sample size
	ne := float64(n1) * float64(n2) / float64(n1+n2)
	lambda := math.Sqrt(ne) * statistic

	// P(D > x) ≈ 2 * sum_{k=1}^∞ (-1)^{k-1} * exp(-2k²x²), first 10 terms
	sum := 0.0
	for k := 1; k <= 10; k++ {
		sign := 1.0
		if k%2 == 0 {
			sign = -1.0
		}
		sum += sign * math.Exp(-2*float64(k*k)*lambda*lambda)
	}

	p := 2 * sum
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// #endregion ks-pvalue

package drift

import (
	"context"
	"math"
	"testing"
)

// gaussianish builds a deterministic sample that follows the standard normal
// shape by evaluating the inverse CDF at evenly spaced quantiles.
func gaussianish(n int, mean, std float64) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		p := (float64(i) + 0.5) / float64(n)
		out[i] = mean + std*math.Sqrt2*math.Erfinv(2*p-1)
	}
	return out
}

// buildMatrix assembles a samples×features matrix from feature columns.
func buildMatrix(cols [][]float64) [][]float64 {
	n := len(cols[0])
	m := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(cols))
		for j := range cols {
			row[j] = cols[j][i]
		}
		m[i] = row
	}
	return m
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

func TestDetectIdenticalMatrices(t *testing.T) {
	cols := make([][]float64, 5)
	for j := range cols {
		cols[j] = gaussianish(500, 0, 1)
	}
	m := buildMatrix(cols)

	result, err := Detect(context.Background(), "model-1", m, m, names(5), DefaultDriftConfig())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if result.DriftScore > 0.01 {
		t.Fatalf("expected near-zero drift score, got %f", result.DriftScore)
	}
	if result.DriftType != DriftNone {
		t.Fatalf("expected none, got %s", result.DriftType)
	}
	if result.IsDriftDetected {
		t.Fatal("should not detect drift on identical matrices")
	}
	for _, d := range result.FeatureDrifts {
		if d.IsDrifted {
			t.Fatalf("feature %s falsely drifted", d.FeatureName)
		}
	}
}

func TestDetectSingleShiftedFeatureIsPrior(t *testing.T) {
	// 10 features, 1000 samples each. Feature index 3 shifted to N(3,1),
	// everything else identical.
	refCols := make([][]float64, 10)
	curCols := make([][]float64, 10)
	for j := range refCols {
		refCols[j] = gaussianish(1000, 0, 1)
		if j == 3 {
			curCols[j] = gaussianish(1000, 3, 1)
		} else {
			curCols[j] = gaussianish(1000, 0, 1)
		}
	}

	result, err := Detect(context.Background(), "model-1",
		buildMatrix(refCols), buildMatrix(curCols), names(10), DefaultDriftConfig())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	if !result.IsDriftDetected {
		t.Fatal("expected drift detected")
	}
	if result.DriftType != DriftPrior {
		t.Fatalf("expected prior, got %s", result.DriftType)
	}
	for j, d := range result.FeatureDrifts {
		if j == 3 && !d.IsDrifted {
			t.Fatal("shifted feature not flagged")
		}
		if j != 3 && d.IsDrifted {
			t.Fatalf("feature %d falsely flagged", j)
		}
	}
	if result.FeatureDrifts[3].MeanShift < 2.5 {
		t.Fatalf("expected mean shift near 3, got %f", result.FeatureDrifts[3].MeanShift)
	}
}

func TestDetectBroadUniformShiftIsCovariate(t *testing.T) {
	// 7 of 10 features shifted by the same magnitude.
	refCols := make([][]float64, 10)
	curCols := make([][]float64, 10)
	for j := range refCols {
		refCols[j] = gaussianish(500, 0, 1)
		if j < 7 {
			curCols[j] = gaussianish(500, 1.5, 1)
		} else {
			curCols[j] = gaussianish(500, 0, 1)
		}
	}

	result, err := Detect(context.Background(), "model-1",
		buildMatrix(refCols), buildMatrix(curCols), names(10), DefaultDriftConfig())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if result.DriftType != DriftCovariate {
		t.Fatalf("expected covariate, got %s", result.DriftType)
	}
}

func TestDetectScatteredVaryingShiftIsConcept(t *testing.T) {
	// 3 of 10 features shifted by widely varying magnitudes.
	shifts := map[int]float64{1: 0.6, 4: 2.0, 8: 5.0}
	refCols := make([][]float64, 10)
	curCols := make([][]float64, 10)
	for j := range refCols {
		refCols[j] = gaussianish(500, 0, 1)
		curCols[j] = gaussianish(500, shifts[j], 1)
	}

	result, err := Detect(context.Background(), "model-1",
		buildMatrix(refCols), buildMatrix(curCols), names(10), DefaultDriftConfig())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if result.DriftType != DriftConcept {
		t.Fatalf("expected concept, got %s", result.DriftType)
	}
}

func TestDetectCancellation(t *testing.T) {
	cols := [][]float64{gaussianish(100, 0, 1)}
	m := buildMatrix(cols)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Detect(ctx, "model-1", m, m, names(1), DefaultDriftConfig())
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestDetectMismatchedNames(t *testing.T) {
	cols := [][]float64{gaussianish(50, 0, 1)}
	m := buildMatrix(cols)

	_, err := Detect(context.Background(), "model-1", m, m, names(3), DefaultDriftConfig())
	if err == nil {
		t.Fatal("expected error for mismatched feature names")
	}
}

func TestDetectRaggedRows(t *testing.T) {
	ref := [][]float64{{1, 2}, {3, 4}}
	cur := [][]float64{{1, 2}, {3}}

	_, err := Detect(context.Background(), "model-1", ref, cur, names(2), DefaultDriftConfig())
	if err == nil {
		t.Fatal("expected error for ragged current matrix")
	}

	_, err = Detect(context.Background(), "model-1", cur, ref, names(2), DefaultDriftConfig())
	if err == nil {
		t.Fatal("expected error for ragged reference matrix")
	}
}

func TestKSIdenticalSamples(t *testing.T) {
	s := gaussianish(200, 0, 1)
	if d := KSStatistic(s, s); d > 1e-9 {
		t.Fatalf("expected zero KS statistic, got %f", d)
	}
	if p := KSPValue(0, 200, 200); p != 1.0 {
		t.Fatalf("expected p-value 1.0, got %f", p)
	}
}

func TestKSDisjointSamples(t *testing.T) {
	a := gaussianish(200, 0, 1)
	b := gaussianish(200, 100, 1)
	d := KSStatistic(a, b)
	if d < 0.99 {
		t.Fatalf("expected KS statistic near 1, got %f", d)
	}
	if p := KSPValue(d, 200, 200); p > 1e-6 {
		t.Fatalf("expected tiny p-value, got %f", p)
	}
}

func TestPSIShiftIncreasesWithMagnitude(t *testing.T) {
	ref := gaussianish(500, 0, 1)
	small := PSI(ref, gaussianish(500, 0.5, 1), 10)
	large := PSI(ref, gaussianish(500, 3.0, 1), 10)
	if small <= 0 {
		t.Fatalf("expected positive PSI for shifted sample, got %f", small)
	}
	if large <= small {
		t.Fatalf("expected PSI to grow with shift: %f vs %f", small, large)
	}
}

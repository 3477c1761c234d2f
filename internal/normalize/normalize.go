package normalize

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// minStd floors the reference standard deviation to avoid division by zero
// on constant features.
const minStd = 1e-6

// #region errors

// InsufficientDataError reports empty or shape-mismatched input matrices.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s", e.Reason)
}

// #endregion errors

// #region stats

// Stats holds per-feature mean and population standard deviation,
// always derived from the reference matrix.
type Stats struct {
	Means []float64
	Stds  []float64
}

// #endregion stats

// #region normalize

// Normalize standardizes both matrices using statistics computed from the
// reference matrix only. Normalizing each matrix independently would erase
// the very shift being measured, so the current matrix is always centered
// and scaled with reference-derived mean/std.
func Normalize(reference, current [][]float64) ([][]float64, [][]float64, Stats, error) {
	if len(reference) == 0 {
		return nil, nil, Stats{}, &InsufficientDataError{Reason: "reference matrix has no rows"}
	}
	if len(current) == 0 {
		return nil, nil, Stats{}, &InsufficientDataError{Reason: "current matrix has no rows"}
	}
	nFeatures := len(reference[0])
	if nFeatures == 0 {
		return nil, nil, Stats{}, &InsufficientDataError{Reason: "reference matrix has no columns"}
	}
	if len(current[0]) != nFeatures {
		return nil, nil, Stats{}, &InsufficientDataError{
			Reason: fmt.Sprintf("feature count mismatch: reference has %d, current has %d", nFeatures, len(current[0])),
		}
	}
	for i, row := range reference {
		if len(row) != nFeatures {
			return nil, nil, Stats{}, &InsufficientDataError{
				Reason: fmt.Sprintf("reference row %d has %d values, want %d", i, len(row), nFeatures),
			}
		}
	}
	for i, row := range current {
		if len(row) != nFeatures {
			return nil, nil, Stats{}, &InsufficientDataError{
				Reason: fmt.Sprintf("current row %d has %d values, want %d", i, len(row), nFeatures),
			}
		}
	}

	stats := Stats{
		Means: make([]float64, nFeatures),
		Stds:  make([]float64, nFeatures),
	}
	for j := 0; j < nFeatures; j++ {
		col := Column(reference, j)
		stats.Means[j] = stat.Mean(col, nil)
		std := stat.PopStdDev(col, nil)
		if std < minStd {
			std = minStd
		}
		stats.Stds[j] = std
	}

	normRef := apply(reference, stats)
	normCur := apply(current, stats)
	return normRef, normCur, stats, nil
}

// #endregion normalize

// #region apply

func apply(matrix [][]float64, stats Stats) [][]float64 {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		normRow := make([]float64, len(row))
		for j, x := range row {
			normRow[j] = (x - stats.Means[j]) / stats.Stds[j]
		}
		out[i] = normRow
	}
	return out
}

// #endregion apply

// #region column

// Column extracts feature column j as a fresh slice.
func Column(matrix [][]float64, j int) []float64 {
	col := make([]float64, len(matrix))
	for i, row := range matrix {
		col[i] = row[j]
	}
	return col
}

// #endregion column

// #region column-stats

// ColumnStats computes mean and population std for one feature column.
func ColumnStats(matrix [][]float64, j int) (mean, std float64) {
	col := Column(matrix, j)
	mean = stat.Mean(col, nil)
	std = stat.PopStdDev(col, nil)
	if std < minStd {
		std = minStd
	}
	return mean, std
}

// #endregion column-stats

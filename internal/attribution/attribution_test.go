package attribution

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/driftguard/internal/drift"
)

func TestRankOrdersByContribution(t *testing.T) {
	drifts := []drift.FeatureDrift{
		{FeatureName: "age", PSIScore: 0.1},
		{FeatureName: "income", PSIScore: 0.6},
		{FeatureName: "tenure", PSIScore: 0.3},
	}

	ordered, entries := Rank(drifts)

	if ordered[0].FeatureName != "income" || ordered[1].FeatureName != "tenure" || ordered[2].FeatureName != "age" {
		t.Fatalf("unexpected order: %v %v %v",
			ordered[0].FeatureName, ordered[1].FeatureName, ordered[2].FeatureName)
	}
	if math.Abs(entries[0].Contribution-0.6) > 1e-9 {
		t.Fatalf("expected top contribution 0.6, got %f", entries[0].Contribution)
	}

	var total float64
	for _, e := range entries {
		total += e.Contribution
	}
	if math.Abs(total-1.0) > 1e-9 {
		t.Fatalf("contributions should sum to 1, got %f", total)
	}
}

func TestRankAllZeroScores(t *testing.T) {
	drifts := []drift.FeatureDrift{
		{FeatureName: "b", PSIScore: 0},
		{FeatureName: "a", PSIScore: 0},
	}

	ordered, entries := Rank(drifts)

	for _, e := range entries {
		if e.Contribution != 0 {
			t.Fatalf("expected zero contribution, got %f", e.Contribution)
		}
	}
	// Name tie-break for determinism
	if ordered[0].FeatureName != "a" || entries[0].FeatureName != "a" {
		t.Fatalf("expected name tie-break, got %s / %s", ordered[0].FeatureName, entries[0].FeatureName)
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	drifts := []drift.FeatureDrift{
		{FeatureName: "x", PSIScore: 0.1},
		{FeatureName: "y", PSIScore: 0.9},
	}
	Rank(drifts)
	if drifts[0].FeatureName != "x" {
		t.Fatal("input slice was reordered")
	}
}

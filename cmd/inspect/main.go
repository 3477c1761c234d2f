package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/driftguard/internal/patch"
	"github.com/danielpatrickdp/driftguard/internal/provenance"
	"github.com/danielpatrickdp/driftguard/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to driftguard.db")
	model := flag.String("model", "default", "model ID to inspect")
	last := flag.Int("last", 20, "show N most recent rows")
	patchID := flag.String("patch", "", "show single patch detail with provenance")
	driftID := flag.String("drift", "", "show single drift result detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/driftguard.db [--model id] [--last N] [--patch id] [--drift id] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch {
	case *patchID != "":
		err = runPatchDetail(st, *patchID, *jsonOut)
	case *driftID != "":
		err = runDriftDetail(st, *driftID, *jsonOut)
	default:
		err = runListMode(st, *model, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listOutput struct {
	DriftResults []driftRow `json:"drift_results"`
	Patches      []patchRow `json:"patches"`
}

type driftRow struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Type      string  `json:"type"`
	Detected  bool    `json:"detected"`
	Features  int     `json:"features"`
	Timestamp string  `json:"timestamp"`
}

type patchRow struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Safety    float64 `json:"safety"`
	CreatedAt string  `json:"created_at"`
}

func runListMode(st *store.Store, model string, last int, jsonOut bool) error {
	results, err := st.ListDriftResults(model, last)
	if err != nil {
		return err
	}
	patches, err := st.ListPatches(model, last)
	if err != nil {
		return err
	}
	if len(results) == 0 && len(patches) == 0 {
		fmt.Fprintf(os.Stderr, "no rows found for model %s\n", model)
		return nil
	}

	out := listOutput{}
	for _, r := range results {
		out.DriftResults = append(out.DriftResults, driftRow{
			ID:        r.ID,
			Score:     r.DriftScore,
			Type:      string(r.DriftType),
			Detected:  r.IsDriftDetected,
			Features:  len(r.FeatureDrifts),
			Timestamp: r.Timestamp.Format("2006-01-02T15:04:05Z"),
		})
	}
	for _, p := range patches {
		out.Patches = append(out.Patches, patchRow{
			ID:        p.ID,
			Type:      string(p.Type),
			Status:    string(p.Status),
			Safety:    p.SafetyScore,
			CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Drift results (%s):\n", model)
	fmt.Printf("%-10s  %8s  %-10s  %-9s  %8s  %s\n",
		"ID", "Score", "Type", "Detected", "Features", "Time")
	for _, r := range out.DriftResults {
		fmt.Printf("%-10s  %8.4f  %-10s  %-9v  %8d  %s\n",
			shortID(r.ID), r.Score, r.Type, r.Detected, r.Features, r.Timestamp)
	}

	fmt.Printf("\nPatches (%s):\n", model)
	fmt.Printf("%-10s  %-22s  %-12s  %8s  %s\n",
		"ID", "Type", "Status", "Safety", "Created")
	for _, p := range out.Patches {
		fmt.Printf("%-10s  %-22s  %-12s  %8.4f  %s\n",
			shortID(p.ID), p.Type, p.Status, p.Safety, p.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region patch-detail

type patchDetail struct {
	Patch      patch.Patch        `json:"patch"`
	Provenance []provenanceDetail `json:"provenance,omitempty"`
}

type provenanceDetail struct {
	TriggerType string `json:"trigger_type"`
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func runPatchDetail(st *store.Store, patchID string, jsonOut bool) error {
	p, err := st.GetPatch(patchID)
	if err != nil {
		return err
	}
	entries, err := provenance.ListBySubject(st.DB(), patchID)
	if err != nil {
		return err
	}

	out := patchDetail{Patch: p}
	for _, e := range entries {
		out.Provenance = append(out.Provenance, provenanceDetail{
			TriggerType: e.TriggerType,
			Decision:    e.Decision,
			Reason:      e.Reason,
			CreatedAt:   e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Patch:       %s\n", p.ID)
	fmt.Printf("Model:       %s\n", p.ModelID)
	fmt.Printf("Drift:       %s\n", p.DriftResultID)
	fmt.Printf("Type:        %s\n", p.Type)
	fmt.Printf("Status:      %s\n", p.Status)
	fmt.Printf("Safety:      %.4f\n", p.SafetyScore)
	fmt.Printf("Created:     %s\n", p.CreatedAt.Format("2006-01-02T15:04:05Z"))
	if p.AppliedAt != nil {
		fmt.Printf("Applied:     %s\n", p.AppliedAt.Format("2006-01-02T15:04:05Z"))
	}
	if p.RolledBackAt != nil {
		fmt.Printf("Rolled back: %s\n", p.RolledBackAt.Format("2006-01-02T15:04:05Z"))
	}

	if v := p.ValidationResult; v != nil {
		fmt.Printf("\nValidation:\n")
		fmt.Printf("  Valid:       %v\n", v.IsValid)
		fmt.Printf("  Drift:       %.4f → %.4f\n", v.DriftScoreBefore, v.DriftScoreAfter)
		fmt.Printf("  Accuracy:    %.4f\n", v.Accuracy)
		fmt.Printf("  F1:          %.4f\n", v.F1)
		fmt.Printf("  Safety:      %.4f\n", v.SafetyScore)
		for _, msg := range v.Errors {
			fmt.Printf("  Note:        %s\n", msg)
		}
	}

	if len(out.Provenance) > 0 {
		fmt.Printf("\nProvenance:\n")
		for _, e := range out.Provenance {
			fmt.Printf("  %s  %-12s  %-14s  %s\n", e.CreatedAt, e.TriggerType, e.Decision, e.Reason)
		}
	}
	return nil
}

// #endregion patch-detail

// #region drift-detail

func runDriftDetail(st *store.Store, driftID string, jsonOut bool) error {
	r, err := st.GetDriftResult(driftID)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(r)
	}

	fmt.Printf("Drift result: %s\n", r.ID)
	fmt.Printf("Model:        %s\n", r.ModelID)
	fmt.Printf("Time:         %s\n", r.Timestamp.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Score:        %.4f (threshold %.2f)\n", r.DriftScore, r.Threshold)
	fmt.Printf("Type:         %s\n", r.DriftType)
	fmt.Printf("Detected:     %v\n", r.IsDriftDetected)

	fmt.Printf("\nFeature drifts (attribution order):\n")
	fmt.Printf("  %-16s  %8s  %8s  %8s  %8s  %s\n",
		"Feature", "PSI", "KS", "p-value", "ΔMean", "Drifted")
	for _, fd := range r.FeatureDrifts {
		fmt.Printf("  %-16s  %8.4f  %8.4f  %8.4f  %8.4f  %v\n",
			fd.FeatureName, fd.PSIScore, fd.KSStatistic, fd.PValue, fd.MeanShift, fd.IsDrifted)
	}
	return nil
}

// #endregion drift-detail

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/driftguard/internal/replay"
	"github.com/danielpatrickdp/driftguard/internal/store"
	"github.com/danielpatrickdp/driftguard/internal/validate"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to driftguard.db (DB mode)")
	model := flag.String("model", "default", "model ID for DB mode")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/driftguard.db [--model id]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *model)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	config := f.Config.ToReplayConfig(f.ModelID)
	episodes := make([]replay.Episode, len(f.Episodes))
	for i := range f.Episodes {
		episodes[i] = f.Episodes[i].ToEpisode()
	}

	results, err := replay.Replay(context.Background(), f.Reference, f.FeatureNames, episodes, replay.OfflinePredict(f.FeatureNames), config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	expected := make([]string, len(f.ExpectedResults))
	ids := make([]string, len(f.ExpectedResults))
	for i, e := range f.ExpectedResults {
		expected[i] = e.Action
		ids[i] = e.EpisodeID
	}

	actual := make([]string, len(results))
	actualIDs := make([]string, len(results))
	for i, r := range results {
		actual[i] = r.Action
		actualIDs[i] = r.EpisodeID
	}

	code := printComparison(actualIDs, expected, actual)
	s := replay.Summarize(results)
	fmt.Printf("Pipeline: %d clear, %d accept, %d reject, %d no-candidates\n",
		s.Clears, s.Accepts, s.Rejects, s.NoCandidates)
	return code
}

// #endregion fixture-mode

// #region db-mode

// runDBMode re-evaluates the acceptance gate for every validated patch in the
// DB from its stored metrics, and compares against the recorded outcome.
// Raw batches are not persisted, so the detection stage is not re-run here;
// use fixture mode for full-pipeline replay.
func runDBMode(dbPath, model string) int {
	st, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	patches, err := st.ListPatches(model, 1000)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list patches: %v\n", err)
		return 2
	}

	var ids, expected, actual []string
	for _, p := range patches {
		v := p.ValidationResult
		if v == nil {
			continue
		}
		ids = append(ids, shortID(p.ID))
		expected = append(expected, verdict(v.IsValid))
		actual = append(actual, verdict(validate.RecheckGate(*v, validate.DefaultValidationConfig())))
	}

	if len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "no validated patches found for model %s\n", model)
		return 2
	}
	return printComparison(ids, expected, actual)
}

func verdict(accepted bool) string {
	if accepted {
		return "accept"
	}
	return "reject"
}

// #endregion db-mode

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(ids, expected, actual []string) int {
	fmt.Printf("%-12s| %-15s| %-15s| %s\n", "Episode", "Expected", "Replayed", "Match")
	fmt.Printf("%-12s+%-15s+%-15s+%s\n",
		"------------", "----------------", "----------------", "------")

	matches := 0
	total := len(actual)
	if len(expected) < total {
		total = len(expected)
	}

	for i := 0; i < total; i++ {
		match := "DIFF"
		if expected[i] == actual[i] {
			match = "OK"
			matches++
		}
		fmt.Printf("%-12s| %-15s| %-15s| %s\n", ids[i], expected[i], actual[i], match)
	}

	diverge := total - matches
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", total, matches, diverge)

	if diverge > 0 {
		return 1
	}
	return 0
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/driftguard/internal/replay"
)

// #region input-files

// referenceFile is the JSON layout of the training-time reference batch.
type referenceFile struct {
	FeatureNames []string    `json:"feature_names"`
	Matrix       [][]float64 `json:"matrix"`
}

// batchFile is the JSON layout of a recorded production batch.
type batchFile struct {
	Current [][]float64 `json:"current"`
	Labels  []float64   `json:"labels"`
}

// #endregion input-files

// #region main

func main() {
	refPath := flag.String("reference", "", "path to reference batch JSON")
	model := flag.String("model", "default", "model ID recorded in the fixture")
	outPath := flag.String("out", "", "output fixture JSON path")
	desc := flag.String("desc", "", "fixture description")
	flag.Parse()

	if *refPath == "" || *outPath == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --reference ref.json --out fixture.json [--model id] [--desc text] batch1.json [batch2.json ...]")
		os.Exit(2)
	}

	if err := run(*refPath, *model, *desc, *outPath, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

// run replays each batch through the pipeline once and freezes the outcomes
// as the fixture's expected results.
func run(refPath, model, desc, outPath string, batchPaths []string) error {
	ref, err := loadReference(refPath)
	if err != nil {
		return err
	}

	episodes := make([]replay.Episode, 0, len(batchPaths))
	fixtureEpisodes := make([]replay.FixtureEpisode, 0, len(batchPaths))
	for _, path := range batchPaths {
		b, err := loadBatch(path)
		if err != nil {
			return err
		}
		id := episodeID(path)
		episodes = append(episodes, replay.Episode{EpisodeID: id, Current: b.Current, Labels: b.Labels})
		fixtureEpisodes = append(fixtureEpisodes, replay.FixtureEpisode{EpisodeID: id, Current: b.Current, Labels: b.Labels})
	}

	config := replay.DefaultReplayConfig()
	config.ModelID = model

	results, err := replay.Replay(context.Background(), ref.Matrix, ref.FeatureNames, episodes, replay.OfflinePredict(ref.FeatureNames), config)
	if err != nil {
		return fmt.Errorf("replay batches: %w", err)
	}

	expected := make([]replay.FixtureExpectedResult, len(results))
	for i, r := range results {
		expected[i] = replay.FixtureExpectedResult{
			EpisodeID: r.EpisodeID,
			DriftType: string(r.DriftType),
			Action:    r.Action,
		}
		fmt.Printf("  %-16s %-14s %s\n", r.EpisodeID, r.Action, r.Reason)
	}

	if desc == "" {
		desc = fmt.Sprintf("Exported fixture: %d episodes against %d reference samples", len(episodes), len(ref.Matrix))
	}

	fixture := replay.Fixture{
		Description:     desc,
		ModelID:         model,
		FeatureNames:    ref.FeatureNames,
		Reference:       ref.Matrix,
		Config:          replay.FromReplayConfig(config),
		Episodes:        fixtureEpisodes,
		ExpectedResults: expected,
	}
	return writeFixture(fixture, outPath)
}

func episodeID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// #endregion export

// #region io

func loadReference(path string) (*referenceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var ref referenceFile
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(ref.Matrix) == 0 || len(ref.FeatureNames) == 0 {
		return nil, fmt.Errorf("%s: empty reference batch", path)
	}
	return &ref, nil
}

func loadBatch(path string) (*batchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var b batchFile
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &b, nil
}

func writeFixture(fixture replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d episodes)\n", outPath, len(data), len(fixture.Episodes))
	return nil
}

// #endregion io

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/blockmerge/internal/merge"
)

// resolveParams builds the merge inputs from the weight flags, a selected
// preset, and an optional @file weights argument. Explicit flags beat the preset.
func resolveParams(c *cli.Command, cfg Config) (merge.Params, bool, error) {
	te, le, out := timeEmbed, labelEmb, outWeight

	weights := weightsJSON
	var presetWeights []float64
	if presetName != "" {
		p, ok := cfg.Presets[presetName]
		if !ok {
			return merge.Params{}, false, fmt.Errorf("unknown preset %q", presetName)
		}
		if p.TimeEmbed != nil && !c.IsSet("time-embed") {
			te = *p.TimeEmbed
		}
		if p.LabelEmb != nil && !c.IsSet("label-emb") {
			le = *p.LabelEmb
		}
		if p.Out != nil && !c.IsSet("out") {
			out = *p.Out
		}
		if p.Weights != nil && !c.IsSet("weights") {
			presetWeights = p.Weights
		}
	}

	if presetWeights != nil {
		return merge.Params{
			TimeEmbed: int(te),
			LabelEmb:  int(le),
			Out:       int(out),
			Weights:   append([]float64(nil), presetWeights...),
		}, false, nil
	}

	weights, err := readWeightsArg(weights)
	if err != nil {
		return merge.Params{}, false, err
	}
	p, fellBack := merge.ParseParams(int(te), int(le), int(out), weights)
	return p, fellBack, nil
}

// readWeightsArg expands "@path" to the file's contents.
func readWeightsArg(v string) (string, error) {
	path, ok := strings.CutPrefix(strings.TrimSpace(v), "@")
	if !ok {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read weights file: %w", err)
	}
	return string(data), nil
}

func mergeOptions() merge.Options {
	return merge.Options{
		Namespace:          namespace,
		AllowExtrapolation: allowExtrapolation,
	}
}

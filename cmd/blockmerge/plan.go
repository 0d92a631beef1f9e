package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/blockmerge/internal/host"
	"github.com/samcharles93/blockmerge/internal/logger"
	"github.com/samcharles93/blockmerge/internal/merge"
)

func planCmd() *cli.Command {
	var (
		model         string
		unmatchedOnly bool
		asJSON        bool
	)

	return &cli.Command{
		Name:      "plan",
		Usage:     "Show the region and ratio every tensor of a checkpoint would merge with",
		ArgsUsage: "MODEL",
		Flags: append(append(modelsFlags(), weightFlags()...),
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "checkpoint whose keys are planned (or pass it as the first argument)",
				Destination: &model,
			},
			&cli.BoolFlag{
				Name:        "unmatched",
				Usage:       "only list keys that fall back to the default ratio",
				Destination: &unmatchedOnly,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the plan as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyMergeConfig(cmd, config, nil, nil)

			if model == "" {
				model = cmd.Args().First()
			}
			path, err := resolveModelPath(model, resolveModelsDir(modelsPath))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			params, fellBack, err := resolveParams(cmd, config)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if fellBack {
				log.Warn("weights could not be parsed; using 100 for every block", "weights", weightsJSON)
			}
			table, err := merge.NewMerger(mergeOptions(), log).Table(params)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			ckpt, err := host.OpenCheckpoint(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = ckpt.Close() }()

			plan := merge.Plan(ckpt.Names(), namespace, table)
			if unmatchedOnly {
				kept := plan[:0]
				for _, a := range plan {
					if !a.Matched {
						kept = append(kept, a)
					}
				}
				plan = kept
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			if len(plan) == 0 {
				log.Info("no keys under namespace", "path", path, "namespace", namespace)
				return nil
			}
			rows := make([][]string, 0, len(plan))
			for _, a := range plan {
				region := a.Region
				if !a.Matched {
					region = "-"
				}
				rows = append(rows, []string{a.Key, region, formatRatio(a.Ratio)})
			}
			renderTable(os.Stdout, []string{"KEY", "REGION", "RATIO"}, rows)
			return nil
		},
	}
}

func regionsCmd() *cli.Command {
	return &cli.Command{
		Name:  "regions",
		Usage: "Print the region table built from the weight flags",
		Flags: weightFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyMergeConfig(cmd, config, nil, nil)

			params, fellBack, err := resolveParams(cmd, config)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if fellBack {
				log.Warn("weights could not be parsed; using 100 for every block", "weights", weightsJSON)
			}
			table, err := merge.NewMerger(mergeOptions(), log).Table(params)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			renderTable(os.Stdout, []string{"REGION", "LABEL", "RATIO"}, regionRows(table))
			return nil
		},
	}
}

// regionRows renders table in declaration order with block labels.
func regionRows(table *merge.RegionTable) [][]string {
	regions := table.Regions()
	rows := make([][]string, 0, len(regions))
	for i, r := range regions {
		label := ""
		if b := i - 2; b >= 0 && b < merge.NumBlockWeights {
			label = merge.BlockLabel(b)
		}
		rows = append(rows, []string{r.Prefix, label, formatRatio(r.Ratio)})
	}
	return rows
}

func formatRatio(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

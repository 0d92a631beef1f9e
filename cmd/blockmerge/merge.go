package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/blockmerge/internal/api"
	"github.com/samcharles93/blockmerge/internal/logger"
)

func mergeCmd() *cli.Command {
	var (
		modelA  string
		modelB  string
		output  string
		dtype   string
		workers int64
		meta    []string
	)

	return &cli.Command{
		Name:  "merge",
		Usage: "Merge model B into model A with per-block weights",
		Flags: append(append(modelsFlags(), weightFlags()...),
			&cli.StringFlag{
				Name:        "model-a",
				Aliases:     []string{"a"},
				Usage:       "base checkpoint (weight 0 keeps it)",
				Required:    true,
				Destination: &modelA,
			},
			&cli.StringFlag{
				Name:        "model-b",
				Aliases:     []string{"b"},
				Usage:       "checkpoint blended in (weight 100 takes it)",
				Required:    true,
				Destination: &modelB,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "path of the merged .safetensors file",
				Required:    true,
				Destination: &output,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "output dtype (F32, F16, BF16); empty keeps each tensor's source dtype",
				Destination: &dtype,
			},
			&cli.Int64Flag{
				Name:        "workers",
				Usage:       "tensors evaluated in parallel while saving (0 = GOMAXPROCS)",
				Destination: &workers,
			},
			&cli.StringSliceFlag{
				Name:        "meta",
				Usage:       "extra output metadata as key=value (repeatable)",
				Destination: &meta,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyMergeConfig(cmd, config, &dtype, &workers)

			params, fellBack, err := resolveParams(cmd, config)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if fellBack {
				log.Warn("weights could not be parsed; using 100 for every block", "weights", weightsJSON)
			}
			extra, err := parseMeta(meta)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			dir := resolveModelsDir(modelsPath)
			pathA, err := resolveModelPath(modelA, dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: model-a: %v", err), 1)
			}
			pathB, err := resolveModelPath(modelB, dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: model-b: %v", err), 1)
			}
			outPath, err := resolveOutputPath(output)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			service := api.NewMergeService(api.MergeServiceConfig{
				Options: mergeOptions(),
				DType:   dtype,
				Workers: int(workers),
				Logger:  log,
			})
			res, err := service.Execute(ctx, api.Job{
				ModelA:   pathA,
				ModelB:   pathB,
				Output:   outPath,
				Params:   params,
				FellBack: fellBack,
				Meta:     extra,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			fmt.Printf("Merged %d tensor(s) into %s\n\n", res.Report.Keys, res.Output)
			regions := slices.Sorted(maps.Keys(res.Report.PerRegion))
			rows := make([][]string, 0, len(regions)+1)
			for _, r := range regions {
				rows = append(rows, []string{r, strconv.Itoa(res.Report.PerRegion[r])})
			}
			if res.Report.Unmatched > 0 {
				rows = append(rows, []string{"(default 1.0)", strconv.Itoa(res.Report.Unmatched)})
			}
			renderTable(os.Stdout, []string{"REGION", "TENSORS"}, rows)
			return nil
		},
	}
}

func parseMeta(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --meta %q: want key=value", kv)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/blockmerge/internal/host"
	"github.com/samcharles93/blockmerge/internal/logger"
)

func listCmd() *cli.Command {
	return &cli.Command{
		Name:    "list-models",
		Aliases: []string{"ls", "models"},
		Usage:   "List .safetensors checkpoints in the models directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "models-path",
				Aliases:     []string{"path"},
				Usage:       "path to directory containing .safetensors checkpoints",
				Destination: &modelsPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyMergeConfig(cmd, config, nil, nil)

			dir := resolveModelsDir(modelsPath)
			if dir == "" {
				return cli.Exit("error: --models-path is required unless "+envModelsDir+" is set", 1)
			}
			models, err := discoverCheckpoints(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(models) == 0 {
				log.Info("no models found", "path", dir)
				return nil
			}

			rows := make([][]string, 0, len(models))
			for _, m := range models {
				rows = append(rows, describeCheckpoint(m))
			}
			renderTable(os.Stdout, []string{"NAME", "SIZE", "TENSORS", "UNET"}, rows)
			fmt.Printf("\n%d model(s) found\n", len(models))
			return nil
		},
	}
}

// describeCheckpoint reads only the header; unreadable files still get a row.
func describeCheckpoint(path string) []string {
	row := []string{filepath.Base(path), "-", "-", "-"}
	if st, err := os.Stat(path); err == nil {
		row[1] = formatModelSize(st.Size())
	}
	ckpt, err := host.OpenCheckpoint(path)
	if err != nil {
		return row
	}
	defer func() { _ = ckpt.Close() }()

	names := ckpt.Names()
	unet := 0
	for _, n := range names {
		if strings.HasPrefix(n, namespace) {
			unet++
		}
	}
	row[2] = strconv.Itoa(len(names))
	row[3] = strconv.Itoa(unet)
	return row
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/blockmerge/internal/api"
	"github.com/samcharles93/blockmerge/internal/logger"
	"github.com/samcharles93/blockmerge/internal/node"
)

func serveCmd() *cli.Command {
	var (
		addr          string
		readTimeout   time.Duration
		dtype         string
		workers       int64
		maxConcurrent int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the merge API and the weight curve editor",
		Flags: append(modelsFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8188",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.BoolFlag{
				Name:        "allow-extrapolation",
				Usage:       "accept percents outside 0-100 in merge requests",
				Destination: &allowExtrapolation,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "default output dtype for merges that do not set one",
				Destination: &dtype,
			},
			&cli.Int64Flag{
				Name:        "workers",
				Usage:       "tensors evaluated in parallel while saving (0 = GOMAXPROCS)",
				Destination: &workers,
			},
			&cli.Int64Flag{
				Name:        "max-concurrent",
				Usage:       "merges allowed to run at once",
				Value:       1,
				Destination: &maxConcurrent,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyMergeConfig(cmd, config, &dtype, &workers)
			applyServeConfig(cmd, config, &addr, &maxConcurrent)

			service := api.NewMergeService(api.MergeServiceConfig{
				ModelsDir:     resolveModelsDir(modelsPath),
				Options:       mergeOptions(),
				DType:         dtype,
				MaxConcurrent: maxConcurrent,
				Workers:       int(workers),
				Logger:        log.With("component", "merges"),
			})
			server := api.NewServer(node.DefaultRegistry(), service, api.NewMergeStore())
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "models_dir", resolveModelsDir(modelsPath), "editor", node.WebDirectory)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

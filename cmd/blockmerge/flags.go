package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/blockmerge/internal/merge"
)

var (
	configFile string
	config     Config

	logLevel  string
	logFormat string
	debug     bool

	modelsPath         string
	namespace          string
	allowExtrapolation bool

	timeEmbed   int64
	labelEmb    int64
	outWeight   int64
	weightsJSON string
	presetName  string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func modelsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory relative model names are resolved against",
			Destination: &modelsPath,
		},
		&cli.StringFlag{
			Name:        "namespace",
			Usage:       "key prefix stripped before region lookup; keys outside it are not merged",
			Value:       merge.DefaultNamespace,
			Destination: &namespace,
		},
	}
}

// weightFlags are the merge node inputs.
func weightFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "time-embed",
			Usage:       "percent of model B for time_embed.* (0-100)",
			Value:       merge.FullWeight,
			Destination: &timeEmbed,
		},
		&cli.Int64Flag{
			Name:        "label-emb",
			Usage:       "percent of model B for label_emb.* (0-100)",
			Value:       merge.FullWeight,
			Destination: &labelEmb,
		},
		&cli.Int64Flag{
			Name:        "out",
			Usage:       "percent of model B for out.* (0-100)",
			Value:       merge.FullWeight,
			Destination: &outWeight,
		},
		&cli.StringFlag{
			Name:        "weights",
			Aliases:     []string{"weights-json", "w"},
			Usage:       "JSON array of 21 block percents: IN0-IN8, MID0-MID2, OUT0-OUT8",
			Value:       merge.DefaultWeightsJSON,
			Destination: &weightsJSON,
		},
		&cli.StringFlag{
			Name:        "preset",
			Usage:       "named weight preset from the config file",
			Destination: &presetName,
		},
		&cli.BoolFlag{
			Name:        "allow-extrapolation",
			Usage:       "accept percents outside 0-100 (ratios outside 0-1 extrapolate)",
			Destination: &allowExtrapolation,
		},
	}
}

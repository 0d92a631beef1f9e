package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/blockmerge/internal/curve"
)

func curveCmd() *cli.Command {
	var (
		from   string
		sets   []string
		bumps  []string
		radius int64
		show   bool
	)

	return &cli.Command{
		Name:  "curve",
		Usage: "Build a weights_json value from block edits",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "from",
				Usage:       "starting weights_json (or @file); invalid input starts from all 100",
				Destination: &from,
			},
			&cli.StringSliceFlag{
				Name:        "set",
				Usage:       "set a block, e.g. IN4=30 (repeatable)",
				Destination: &sets,
			},
			&cli.StringSliceFlag{
				Name:        "bump",
				Usage:       "move a block and its neighbours with gaussian falloff, e.g. MID1=-20 (repeatable)",
				Destination: &bumps,
			},
			&cli.Int64Flag{
				Name:        "radius",
				Usage:       "falloff radius for --bump",
				Value:       2,
				Destination: &radius,
			},
			&cli.BoolFlag{
				Name:        "table",
				Usage:       "also print the curve as a table on stderr",
				Destination: &show,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			start, err := readWeightsArg(from)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			c, err := buildCurve(start, sets, bumps, int(radius))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if show {
				rows := make([][]string, curve.Points)
				for i, label := range curve.Labels() {
					rows[i] = []string{label, string(curve.SectionOf(i)), formatRatio(c.Value(i))}
				}
				renderTable(os.Stderr, []string{"BLOCK", "SECTION", "WEIGHT"}, rows)
			}
			fmt.Println(c.JSON())
			return nil
		},
	}
}

// buildCurve applies --set edits, then --bump edits, in flag order.
func buildCurve(start string, sets, bumps []string, radius int) (*curve.Curve, error) {
	c := curve.New()
	if start != "" {
		c.Load(start)
	}
	for _, s := range sets {
		i, v, err := parseBlockEdit(s)
		if err != nil {
			return nil, fmt.Errorf("--set: %w", err)
		}
		if err := c.Set(i, v); err != nil {
			return nil, err
		}
	}
	for _, s := range bumps {
		i, v, err := parseBlockEdit(s)
		if err != nil {
			return nil, fmt.Errorf("--bump: %w", err)
		}
		if err := c.ApplyLocalDelta(i, v, radius); err != nil {
			return nil, err
		}
	}
	c.Snap()
	return c, nil
}

// parseBlockEdit parses LABEL=VALUE where LABEL is a block label (IN0, MID2, OUT8)
// or a 0-based point index.
func parseBlockEdit(s string) (int, float64, error) {
	label, raw, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("invalid edit %q: want LABEL=VALUE", s)
	}
	label = strings.ToUpper(strings.TrimSpace(label))
	idx := slices.Index(curve.Labels(), label)
	if idx < 0 {
		n, err := strconv.Atoi(label)
		if err != nil || n < 0 || n >= curve.Points {
			return 0, 0, fmt.Errorf("unknown block %q", label)
		}
		idx = n
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value in %q: %w", s, err)
	}
	return idx, v, nil
}

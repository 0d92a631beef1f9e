package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/blockmerge/internal/node"
)

func nodesCmd() *cli.Command {
	return &cli.Command{
		Name:  "nodes",
		Usage: "Print the node definitions exposed to the graph UI",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b, err := json.MarshalIndent(node.DefaultRegistry(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}
}

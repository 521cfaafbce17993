package main

import (
	"context"
	"fmt"
	"os"

	cliframework "github.com/urfave/cli/v3"

	"github.com/mcpany/tracelens/internal/cli"
)

const version = "0.2.0"

func main() {
	app := &cliframework.Command{
		Name:    "tracelens",
		Usage:   "Sequence diagrams and timing views for gateway traces",
		Version: version,
		Commands: []*cliframework.Command{
			cli.ServeCommand(),
			cli.RenderCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mcpany/tracelens/internal/seqdiag"
	"github.com/mcpany/tracelens/internal/trace"
	"github.com/mcpany/tracelens/internal/viz"
)

// RenderCommand returns the CLI command definition for the 'render'
// subcommand, which renders saved trace files without starting a server.
func RenderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a trace file as a sequence diagram or waterfall",
		ArgsUsage: "<trace.json>",
		Description: `Reads a gateway trace file (a single trace object or an array) and
prints each trace as an ASCII diagram. Use --format=layout to emit the
structured layout JSON instead.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: sequence, waterfall, or layout",
				Value: "sequence",
			},
			&cli.IntFlag{
				Name:  "width",
				Usage: "Target output width in characters",
				Value: 120,
			},
		},
		Action: runRender,
	}
}

func runRender(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one trace file argument")
	}
	path := cmd.Args().First()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read trace file: %w", err)
	}

	traces, err := trace.ParseTraces(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	format := cmd.String("format")
	width := cmd.Int("width")

	for i, tr := range traces {
		if i > 0 {
			fmt.Println()
		}
		if err := renderTrace(tr, format, width); err != nil {
			return fmt.Errorf("trace %s: %w", tr.ID, err)
		}
	}
	return nil
}

func renderTrace(tr *trace.Trace, format string, width int) error {
	switch format {
	case "waterfall":
		fmt.Print(viz.Waterfall(tr, width))
		return nil

	case "sequence":
		layout, err := seqdiag.Compute(tr)
		if err != nil {
			return err
		}
		fmt.Print(viz.Sequence(layout, width))
		return nil

	case "layout":
		layout, err := seqdiag.Compute(tr)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(layout)

	default:
		return fmt.Errorf("unknown format %q: use sequence, waterfall, or layout", format)
	}
}

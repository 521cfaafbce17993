package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/mcpany/tracelens/internal/mcpserver"
	"github.com/mcpany/tracelens/internal/otlpreceiver"
	"github.com/mcpany/tracelens/internal/storage"
	"github.com/mcpany/tracelens/internal/webui"
)

// ServeCommand returns the CLI command definition for the 'serve'
// subcommand, which runs the OTLP receiver, the web UI, and the MCP
// stdio server together.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the trace receiver, web UI, and MCP server",
		Description: `Starts an OTLP gRPC receiver for gateway traces, a web UI with live
sequence diagrams, and an MCP server on stdio. Traces can also be
loaded from watched directories of .json/.jsonl files.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to config file (default: .tracelens.json lookup)",
			},
			&cli.IntFlag{
				Name:  "trace-buffer-size",
				Usage: "Number of traces to buffer",
			},
			&cli.StringFlag{
				Name:  "otlp-host",
				Usage: "OTLP receiver bind address",
			},
			&cli.IntFlag{
				Name:  "otlp-port",
				Usage: "OTLP receiver port (0 for ephemeral)",
				Value: -1,
			},
			&cli.StringFlag{
				Name:  "webui-host",
				Usage: "Web UI bind address",
			},
			&cli.IntFlag{
				Name:  "webui-port",
				Usage: "Web UI port (0 to disable)",
				Value: -1,
			},
			&cli.StringSliceFlag{
				Name:  "trace-dir",
				Usage: "Directory of trace files to watch (repeatable)",
			},
			&cli.StringFlag{
				Name:  "collector-config",
				Usage: "OpenTelemetry Collector config to discover file exporter directories from",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose logging",
			},
		},
		Action: runServe,
	}
}

// serveConfig resolves the effective config from files and flags.
// Flags override file values only when explicitly set.
func serveConfig(cmd *cli.Command) (*Config, error) {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	overlay := &Config{
		TraceBufferSize: cmd.Int("trace-buffer-size"),
		OTLPHost:        cmd.String("otlp-host"),
		WebUIHost:       cmd.String("webui-host"),
		TraceDirs:       cmd.StringSlice("trace-dir"),
		CollectorConfig: cmd.String("collector-config"),
		Verbose:         cmd.Bool("verbose"),
	}
	cfg = MergeConfigs(cfg, overlay)

	// Port flags default to -1 so 0 remains a meaningful value
	// (ephemeral OTLP port, disabled web UI).
	if p := cmd.Int("otlp-port"); p >= 0 {
		cfg.OTLPPort = p
	}
	if p := cmd.Int("webui-port"); p >= 0 {
		cfg.WebUIPort = p
	}

	return cfg, nil
}

// runServe wires together storage, the OTLP receiver, file sources, the
// web UI, and the MCP stdio server.
func runServe(cliCtx context.Context, cmd *cli.Command) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		log.Println("🔧 Configuration:")
		log.Printf("  Trace buffer: %d traces\n", cfg.TraceBufferSize)
		log.Printf("  OTLP bind: %s:%d\n", cfg.OTLPHost, cfg.OTLPPort)
		log.Printf("  Web UI bind: %s:%d\n", cfg.WebUIHost, cfg.WebUIPort)
		log.Println()
	}

	// 1. Trace storage
	store := storage.NewTraceStorage(cfg.TraceBufferSize)

	if cfg.Verbose {
		log.Printf("✅ Created trace storage (capacity: %d traces)\n", cfg.TraceBufferSize)
	}

	// 2. OTLP gRPC receiver
	otlpServer, err := otlpreceiver.NewServer(
		otlpreceiver.Config{
			Host: cfg.OTLPHost,
			Port: cfg.OTLPPort,
		},
		store,
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otlpErrChan := make(chan error, 1)
	go func() {
		otlpErrChan <- otlpServer.Start(ctx)
	}()

	endpoint := otlpServer.Endpoint()
	log.Printf("🌐 OTLP gRPC receiver listening on %s\n", endpoint)
	if cfg.Verbose {
		log.Printf("   Gateways can export with: OTEL_EXPORTER_OTLP_ENDPOINT=%s\n", endpoint)
	}

	// 3. MCP server
	mcpServer, err := mcpserver.NewServer(store, otlpServer, mcpserver.ServerOptions{
		Verbose: cfg.Verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// 4. File sources: explicit directories plus any discovered from a
	// collector config.
	traceDirs := append([]string{}, cfg.TraceDirs...)
	if cfg.CollectorConfig != "" {
		discovered, err := CollectorExportDirs(cfg.CollectorConfig)
		if err != nil {
			return fmt.Errorf("failed to read collector config: %w", err)
		}
		traceDirs = append(traceDirs, discovered...)
	}
	for _, dir := range traceDirs {
		if err := mcpServer.AddFileSource(ctx, dir); err != nil {
			log.Printf("⚠️  Could not watch %s: %v\n", dir, err)
			continue
		}
		log.Printf("📁 Watching %s for trace files\n", dir)
	}

	// 5. Web UI
	if cfg.WebUIPort > 0 {
		webAddr := fmt.Sprintf("%s:%d", cfg.WebUIHost, cfg.WebUIPort)
		webServer := webui.New(store)
		go func() {
			if err := webServer.ListenAndServe(ctx, webAddr); err != nil {
				log.Printf("⚠️  Web UI server error: %v\n", err)
			}
		}()
		log.Printf("🖥️  Web UI available at http://%s/ui/\n", webAddr)
	}

	// 6. Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		if cfg.Verbose {
			log.Printf("📡 Received signal %v, initiating graceful shutdown...\n", sig)
		}
		cancel()
		otlpServer.Stop()
	}()

	// 7. Run MCP server on stdio (blocks until stdin closes or context
	// is cancelled)
	log.Println("🎯 MCP server ready on stdio")
	log.Println("💡 Use list_traces and get_sequence_diagram to inspect gateway traffic")
	log.Println()

	if err := mcpServer.Run(ctx); err != nil {
		select {
		case otlpErr := <-otlpErrChan:
			if otlpErr != nil {
				return fmt.Errorf("OTLP server error: %w", otlpErr)
			}
		default:
		}

		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}

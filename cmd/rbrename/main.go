package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pressly/cli"
	"github.com/stefanvanburen/rbrename/internal/config"
	"github.com/stefanvanburen/rbrename/internal/lsp"
	"github.com/stefanvanburen/rbrename/internal/metrics"
	"github.com/stefanvanburen/rbrename/internal/rename"
)

func main() {
	root := &cli.Command{
		Name:      "rbrename",
		ShortHelp: "Rename Ruby local variables safely",
		SubCommands: []*cli.Command{
			{
				Name:      "serve",
				Usage:     "rbrename serve [flags]",
				ShortHelp: "Start the language server (communicates over stdin/stdout)",
				Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
					f.String("config", "", "path to the configuration file (default "+config.DefaultFile+")")
					f.String("metrics-addr", "", "host:port to serve Prometheus metrics on")
				}),
				Exec: serve,
			},
			{
				Name:      "rename",
				Usage:     "rbrename rename [flags] <file>:<line>:<col> <new-name>",
				ShortHelp: "Rename the variable at a position and print the result",
				Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
					f.Bool("w", false, "write the result to the file instead of stdout")
					f.Bool("fatal-conflicts", false, "refuse renames that conflict with other variables")
				}),
				Exec: renameCmd,
			},
			{
				Name:      "refs",
				Usage:     "rbrename refs <file>:<line>:<col>",
				ShortHelp: "List every occurrence of the variable at a position",
				Exec:      refsCmd,
			},
			{
				Name:      "bindings",
				Usage:     "rbrename bindings [flags] <file>",
				ShortHelp: "List the variables of a file",
				Flags: cli.FlagsFunc(func(f *flag.FlagSet) {
					f.String("filter", "", `CEL expression selecting bindings, e.g. origin == "BlockParameter"`)
				}),
				Exec: bindingsCmd,
			},
			{
				Name:      "check",
				Usage:     "rbrename check <file>...",
				ShortHelp: "Report parse errors and suspicious variable use",
				Exec:      checkCmd,
			},
		},
	}
	if err := cli.ParseAndRun(context.Background(), root, os.Args[1:], nil); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging installs a text logger on stderr. Stdout is reserved for
// command output and, under serve, the protocol stream.
func setupLogging(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadServeConfig loads the configuration at path, letting a non-empty
// metricsAddr from the command line override server.metrics_addr.
func loadServeConfig(path, metricsAddr string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if metricsAddr != "" {
		if err := config.CheckMetricsAddr(metricsAddr); err != nil {
			return nil, fmt.Errorf("-metrics-addr %w", err)
		}
		cfg.Server.MetricsAddr = metricsAddr
	}
	return cfg, nil
}

func serve(ctx context.Context, s *cli.State) error {
	cfg, err := loadServeConfig(cli.GetFlag[string](s, "config"), cli.GetFlag[string](s, "metrics-addr"))
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.LogLevel())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.MetricsAddr != "" {
		ms := metrics.NewServer(cfg.Server.MetricsAddr)
		if err := ms.Start(ctx); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		defer func() {
			if err := ms.Stop(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("stopping metrics server", "error", err)
			}
		}()
	}

	logger.Info("serving", "conflicts_fatal", cfg.Rename.ConflictsFatal)
	return lsp.Serve(ctx, lsp.Options{
		Logger: logger,
		Rename: rename.Options{ConflictsFatal: cfg.Rename.ConflictsFatal},
	})
}

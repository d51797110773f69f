// Scribe is a tool-calling chat agent for personal notes.
//
// It exposes an HTTP API for chat sessions and notes, drives an
// OpenRouter-hosted model through a bounded tool-calling loop, and
// persists everything in a local SQLite database. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	scribe serve                 Start the API server
//	scribe import <file.md>...   Import markdown documents as notes
//	scribe version               Print version and build information
//	scribe -o json version       Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nugget/scribe-agent/internal/agent"
	"github.com/nugget/scribe-agent/internal/api"
	"github.com/nugget/scribe-agent/internal/buildinfo"
	"github.com/nugget/scribe-agent/internal/config"
	"github.com/nugget/scribe-agent/internal/ingest"
	"github.com/nugget/scribe-agent/internal/llm"
	"github.com/nugget/scribe-agent/internal/search"
	"github.com/nugget/scribe-agent/internal/store"
	"github.com/nugget/scribe-agent/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so the
// full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the scribe command. All OS-level
// dependencies are injected as parameters so tests can drive the whole
// lifecycle. Arguments are parsed by hand: the flag package relies on
// package-level globals, and the argument surface here is small enough
// that manual parsing is clearer than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "import":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: scribe import <file.md>...")
		}
		return runImport(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Scribe - Tool-calling chat agent for personal notes")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: scribe [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve               Start the API server")
	fmt.Fprintln(w, "  import <file.md>    Import markdown documents as notes")
	fmt.Fprintln(w, "  version             Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/scribe/config.yaml, /etc/scribe/config.yaml")
	return nil
}

// runImport handles the "scribe import" subcommand. Each file becomes
// one note, titled from its first level-1 heading.
func runImport(ctx context.Context, stdout io.Writer, configPath string, paths []string) error {
	logger := newLogger(stdout, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer st.Close()

	importer := ingest.NewImporter(st, logger)
	notes, err := importer.ImportPaths(ctx, paths, []string{"imported"})
	for _, n := range notes {
		fmt.Fprintf(stdout, "%s  %s\n", n.ID, n.Title)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Fprintf(stdout, "Imported %d notes\n", len(notes))
	return nil
}

// runServe handles the "scribe serve" subcommand. It is the primary
// operating mode: loads config, opens the database, assembles the tool
// registry and orchestration loop, starts the API server, and blocks
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Scribe", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.OpenRouter.Model,
		"database", cfg.Database.Path,
	)

	if !cfg.OpenRouter.Configured() {
		return fmt.Errorf("openrouter.api_key is required to serve")
	}

	// --- Store ---
	// Sessions and notes share one SQLite database.
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer st.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	// --- Model client ---
	clientOpts := []llm.OpenRouterOption{
		llm.WithAttribution(cfg.OpenRouter.HTTPReferer, cfg.OpenRouter.Title),
		llm.WithLogger(logger),
	}
	if cfg.OpenRouter.BaseURL != "" {
		clientOpts = append(clientOpts, llm.WithBaseURL(cfg.OpenRouter.BaseURL))
	}
	client := llm.NewOpenRouter(cfg.OpenRouter.APIKey, cfg.OpenRouter.Model, clientOpts...)

	// --- Tool registry ---
	// Note tools are always available. Web search registers only when a
	// provider is configured, so the model never sees a tool it cannot
	// use.
	registry := tools.NewRegistry()
	tools.RegisterNoteTools(registry, st)
	if cfg.Serper.Configured() {
		provider := search.NewSerper(cfg.Serper.APIKey, cfg.Serper.GL, cfg.Serper.HL)
		search.RegisterTool(registry, provider)
		logger.Info("web search enabled", "provider", provider.Name())
	} else {
		logger.Warn("web search disabled (no serper api key)")
	}
	logger.Info("tools registered", "tools", registry.Names())

	// --- Orchestration loop ---
	loop := agent.NewLoop(logger, st, client, registry, cfg.Agent.MaxRounds)

	// --- API server ---
	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, loop, st, cfg.AllowOrigins, logger)

	// --- Signal handling and graceful shutdown ---
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Scribe stopped")
	return nil
}

// newLogger creates a structured text logger writing to w. All log
// output in Scribe goes through slog; this helper standardizes handler
// configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

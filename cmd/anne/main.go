// Anne is a personal conversational assistant daemon.
//
// It serves a small chat API with an embedded web widget, keeps
// per-session conversation memory in SQLite, and optionally bridges a
// Telegram bot onto the same memory. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	anne serve               Start the API server
//	anne ask <question>      Ask a single question (for testing)
//	anne version             Print version and build information
//	anne -o json version     Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/anne-chat/anne/internal/api"
	"github.com/anne-chat/anne/internal/assistant"
	"github.com/anne-chat/anne/internal/buildinfo"
	"github.com/anne-chat/anne/internal/config"
	"github.com/anne-chat/anne/internal/llm"
	"github.com/anne-chat/anne/internal/memory"
	"github.com/anne-chat/anne/internal/prompts"
	"github.com/anne-chat/anne/internal/session"
	"github.com/anne-chat/anne/internal/telegram"
	"github.com/anne-chat/anne/internal/trends"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the anne command. All OS-level
// dependencies are injected as parameters: ctx controls the process
// lifetime, stdout and stderr receive all output, and args is
// os.Args[1:]. Arguments are parsed by hand because the flag package
// relies on package-level globals that interfere with parallel tests,
// and the argument surface here is small.
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
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: anne ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe boots the full daemon: stores, completion chain, trends
// cache, HTTP server and the optional Telegram bridge. It blocks until
// the context is cancelled or the listener fails.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Anne",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
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
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Stores ---
	// One SQLite database holds both conversation turns and session
	// snapshots. The in-memory backend skips the database entirely,
	// which also disables the session endpoints.
	var store memory.Store
	var sessions *session.Store

	switch cfg.Memory.Backend {
	case "", "sqlite":
		dbPath := filepath.Join(cfg.DataDir, "anne.db")
		db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return fmt.Errorf("open database %s: %w", dbPath, err)
		}
		defer db.Close()

		sqliteStore, err := memory.NewSQLiteStore(db)
		if err != nil {
			return fmt.Errorf("memory store: %w", err)
		}
		store = sqliteStore

		sessions, err = session.NewStore(db)
		if err != nil {
			return fmt.Errorf("session store: %w", err)
		}
		logger.Info("database opened", "path", dbPath)

	case "memory":
		store = memory.NewInMemoryStore(cfg.Memory.Retention)
		logger.Warn("using in-memory storage, history is lost on restart")

	default:
		return fmt.Errorf("unknown memory backend: %q", cfg.Memory.Backend)
	}

	// --- Completion chain ---
	chain, err := buildChain(cfg, logger)
	if err != nil {
		return err
	}

	// Probe the provider once at startup. A failure is informational:
	// the gateway degrades to its fallback reply until the provider
	// recovers.
	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := chain.Ping(pingCtx); err != nil {
		logger.Warn("completion provider unreachable at startup", "error", err)
	}
	pingCancel()

	// --- Trends ---
	var topics assistant.TopicSource
	if cfg.Trends.Enabled {
		source, err := trendSource(cfg)
		if err != nil {
			return err
		}
		topics = trends.NewCache(source,
			time.Duration(cfg.Trends.TTLHours)*time.Hour,
			cfg.Trends.MaxItems,
			logger,
		)
		logger.Info("trends enrichment enabled", "ttl_hours", cfg.Trends.TTLHours)
	}

	// --- Pipeline ---
	persona := prompts.Load(cfg.PersonaFile, logger)
	gateway := assistant.NewGateway(chain, cfg.Model.Name, llm.Options{
		MaxTokens:   cfg.Model.MaxTokens,
		Temperature: cfg.Model.Temperature,
	}, "", logger)
	pipeline := assistant.NewPipeline(store, gateway, topics, persona, cfg.Memory.Window, logger)

	// --- Telegram bridge ---
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		tgClient := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.PollTimeoutSec, logger)
		bridge := telegram.NewBridge(telegram.BridgeConfig{
			Updates:   tgClient.Messages(),
			Sender:    tgClient,
			Asker:     pipeline,
			Logger:    logger,
			RateLimit: cfg.Telegram.RateLimit,
		})
		go tgClient.Start(ctx)
		go bridge.Start(ctx)
		logger.Info("telegram bridge enabled")
	}

	// --- HTTP server ---
	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, pipeline, store, sessions, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Anne stopped")
	return nil
}

// runAsk handles the "anne ask <question>" subcommand. It boots a
// minimal pipeline (in-memory store, no trends, no server) and answers
// a single question on stdout. Useful for smoke tests without starting
// the daemon.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(os.Stderr, slog.LevelWarn)
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	chain, err := buildChain(cfg, logger)
	if err != nil {
		return err
	}

	persona := prompts.Load(cfg.PersonaFile, logger)
	gateway := assistant.NewGateway(chain, cfg.Model.Name, llm.Options{
		MaxTokens:   cfg.Model.MaxTokens,
		Temperature: cfg.Model.Temperature,
	}, "", logger)
	pipeline := assistant.NewPipeline(memory.NewInMemoryStore(0), gateway, nil, persona, cfg.Memory.Window, logger)

	reply, err := pipeline.Ask(ctx, "cli", question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, reply)
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.RuntimeInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Anne - Personal Conversational Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: anne [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// buildChain assembles the completion fallback chain from config: the
// configured provider first, then the optional fallback endpoint.
func buildChain(cfg *config.Config, logger *slog.Logger) (*llm.Chain, error) {
	var clients []llm.Client

	switch cfg.Model.Provider {
	case "", "huggingface":
		clients = append(clients, llm.NewOpenAIClient(cfg.Model.BaseURL, cfg.Model.Token, logger))
	case "ollama":
		clients = append(clients, llm.NewOllamaClient(cfg.Model.BaseURL))
	default:
		return nil, fmt.Errorf("unknown model provider: %q", cfg.Model.Provider)
	}

	if cfg.Model.FallbackBaseURL != "" {
		clients = append(clients, llm.NewOllamaClient(cfg.Model.FallbackBaseURL))
	}

	return llm.NewChain(logger, clients...), nil
}

// trendSource picks the topic source from config: a feed when one is
// configured, otherwise page extraction.
func trendSource(cfg *config.Config) (trends.Source, error) {
	switch {
	case cfg.Trends.FeedURL != "":
		return trends.NewFeedSource(cfg.Trends.FeedURL), nil
	case cfg.Trends.PageURL != "":
		return trends.NewPageSource(cfg.Trends.PageURL), nil
	default:
		return nil, fmt.Errorf("trends enabled but no feed_url or page_url configured")
	}
}

// newLogger creates a structured text logger writing to w at the given
// level. All log output goes through slog; this helper standardizes
// the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise [config.FindConfig] searches the default locations.
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

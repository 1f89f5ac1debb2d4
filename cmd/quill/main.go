// Quill is an autonomous notes-vault assistant.
//
// It answers questions over a local markdown vault, augmented by web
// search and page fetching, using local models via Ollama (with
// optional Anthropic routing for claude-* models). Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	quill serve              Start the API server
//	quill ask <question>     Ask a single question (for testing)
//	quill index [dir]        Rebuild the vault search index
//	quill version            Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/quillhq/quill-agent/internal/agent"
	"github.com/quillhq/quill-agent/internal/api"
	"github.com/quillhq/quill-agent/internal/buildinfo"
	"github.com/quillhq/quill-agent/internal/config"
	"github.com/quillhq/quill-agent/internal/events"
	"github.com/quillhq/quill-agent/internal/fetch"
	"github.com/quillhq/quill-agent/internal/llm"
	"github.com/quillhq/quill-agent/internal/memory"
	"github.com/quillhq/quill-agent/internal/search"
	"github.com/quillhq/quill-agent/internal/tools"
	"github.com/quillhq/quill-agent/internal/vault"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the full
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the quill command. All OS-level
// dependencies are injected: ctx controls process lifetime (cancelling
// it triggers graceful shutdown), stdout and stderr receive all output,
// and args is os.Args[1:].
//
// Arguments are parsed by hand. The flag package relies on package-level
// globals (flag.CommandLine), which makes it impossible to call run()
// concurrently from tests; our argument surface is small enough that
// manual parsing is clearer than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
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

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: quill ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "index":
		dir := ""
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runIndex(stdout, configPath, dir)
	case "models":
		return runModels(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in a stable field order.
func runVersion(w io.Writer) error {
	fmt.Fprintln(w, buildinfo.String())
	info := buildinfo.Info()
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// quill is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Quill - Autonomous Notes-Vault Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: quill [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the API server")
	fmt.Fprintln(w, "  ask <q>        Ask a single question (for testing)")
	fmt.Fprintln(w, "  index [dir]    Rebuild the vault search index (default: configured vault)")
	fmt.Fprintln(w, "  models         List models available from the Ollama instance")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/quill/config.yaml, /etc/quill/config.yaml")
	return nil
}

// loadConfig resolves and loads the configuration. When no config file
// can be found the built-in defaults are used, which is enough for a
// local Ollama setup without a vault.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger. Level names below DEBUG render
// as TRACE via [config.ReplaceLogLevelNames].
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// createLLMClient wires the multi-provider client: Ollama handles
// everything by default, and claude-* models route to Anthropic when an
// API key is configured.
func createLLMClient(cfg *config.Config, logger *slog.Logger, ollama *llm.OllamaClient) llm.Client {
	if cfg.Anthropic.APIKey == "" {
		return ollama
	}
	multi := llm.NewMultiClient(ollama)
	multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger))
	multi.AddModelPrefix("claude", "anthropic")
	logger.Debug("Anthropic provider configured for claude-* models")
	return multi
}

// buildRegistry assembles the tool registry from configuration. Tools
// whose backing service is not configured are simply not registered;
// the model never sees them.
func buildRegistry(cfg *config.Config, logger *slog.Logger, idx *vault.Index, bus *events.Bus) *tools.Registry {
	reg := tools.NewRegistry()

	if idx != nil {
		reg.Register(vault.NewSearchTool(idx, cfg.Vault.MaxResults))
		reg.Register(tools.NewFileTreeTool(idx.Root()))
	}

	if cfg.Search.SearxNGURL != "" {
		mgr := search.NewManager("searxng")
		mgr.Register(search.NewSearXNG(cfg.Search.SearxNGURL))
		reg.Register(search.NewTool(mgr, cfg.Search.MaxResults))
	} else {
		logger.Warn("web search not configured - web_search tool unavailable")
	}

	reg.Register(fetch.NewTool(fetch.New()))
	reg.Register(tools.NewTimerTool(bus))

	return reg
}

// openVault opens (and indexes, when reindex is set) the markdown
// vault. Returns nil when no vault is configured.
func openVault(cfg *config.Config, logger *slog.Logger, dataDir string, reindex bool) (*vault.Index, error) {
	if cfg.Vault.Path == "" {
		return nil, nil
	}
	idx, err := vault.NewIndex(filepath.Join(dataDir, "vault.db"), cfg.Vault.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open vault index: %w", err)
	}
	if reindex {
		count, err := idx.Reindex()
		if err != nil {
			idx.Close()
			return nil, fmt.Errorf("index vault %s: %w", cfg.Vault.Path, err)
		}
		logger.Info("vault indexed", "path", cfg.Vault.Path, "notes", count)
	}
	return idx, nil
}

// runIndex handles the "quill index [dir]" subcommand. It rebuilds the
// FTS index for the configured vault, or for dir when given.
func runIndex(stdout io.Writer, configPath string, dir string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if dir != "" {
		cfg.Vault.Path = dir
	}
	if cfg.Vault.Path == "" {
		return fmt.Errorf("no vault directory configured (set vault.path or pass a directory)")
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	idx, err := openVault(cfg, logger, dataDir, true)
	if err != nil {
		return err
	}
	defer idx.Close()

	fmt.Fprintf(stdout, "Indexed %d notes from %s\n", idx.NoteCount(), cfg.Vault.Path)
	return nil
}

// runModels handles the "quill models" subcommand. It lists the models
// the configured Ollama instance can serve, marking the configured
// default.
func runModels(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	client := llm.NewOllamaClient(cfg.Models.OllamaURL)
	names, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models from %s: %w", cfg.Models.OllamaURL, err)
	}
	if len(names) == 0 {
		fmt.Fprintln(stdout, "No models installed.")
		return nil
	}

	for _, name := range names {
		marker := " "
		if name == cfg.Models.Default {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %s\n", marker, name)
	}
	return nil
}

// runAsk handles the "quill ask <question>" subcommand. It boots a
// minimal agent (no API server, no persistent conversation beyond this
// run) and processes a single question, printing the answer and any
// note sources it was grounded on. Useful for smoke tests and debugging
// without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	idx, err := openVault(cfg, logger, dataDir, true)
	if err != nil {
		return err
	}
	if idx != nil {
		defer idx.Close()
	}

	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL)
	llmClient := createLLMClient(cfg, logger, ollamaClient)

	bus := events.New()
	reg := buildRegistry(cfg, logger, idx, bus)
	guard := tools.NewGuard(logger, time.Duration(cfg.Agent.ToolTimeoutSec)*time.Second)

	// No memory store: a one-shot question has no history to persist.
	loop := agent.New(logger, llmClient, cfg.Models.Default, reg, guard, nil, bus)
	loop.SetMaxIterations(cfg.Agent.MaxIterations)

	// Stream progress to stderr as the loop works; the final answer
	// goes to stdout so it stays pipeable. The loop replaces the whole
	// display text on each update, so print only what it appended and
	// break the line when the view is rewritten.
	var shown string
	onUpdate := func(text string) {
		switch {
		case text == shown:
		case strings.HasPrefix(text, shown):
			fmt.Fprint(stderr, strings.TrimPrefix(text, shown))
		default:
			fmt.Fprintln(stderr)
		}
		shown = text
	}

	res, err := loop.Run(ctx, &agent.Request{
		ConversationID: "cli",
		Message:        question,
		OnUpdate:       onUpdate,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if shown != "" {
		fmt.Fprintln(stderr)
	}

	fmt.Fprintln(stdout, res.Answer)
	if len(res.Sources) > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Sources:")
		for _, s := range res.Sources {
			fmt.Fprintf(stdout, "  %s (%.2f)\n", s.Title, s.Score)
		}
	}
	return nil
}

// runServe handles the "quill serve" subcommand. It is the primary
// operating mode: loads config, opens the memory and vault databases,
// wires the LLM client, tool registry, and agent loop, starts the API
// server, and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Quill", "version", buildinfo.Version)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level: %w", err)
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Models.Default,
		"vault", cfg.Vault.Path,
	)

	// All persistent state (conversation memory, vault index) lives
	// under the data directory.
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	mem, err := memory.NewStore(filepath.Join(dataDir, "memory.db"), 100)
	if err != nil {
		return fmt.Errorf("open memory database: %w", err)
	}
	defer mem.Close()
	logger.Info("memory database opened", "path", filepath.Join(dataDir, "memory.db"))

	idx, err := openVault(cfg, logger, dataDir, true)
	if err != nil {
		return err
	}
	if idx != nil {
		defer idx.Close()
	} else {
		logger.Warn("no vault configured - vault tools unavailable")
	}

	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL)
	llmClient := createLLMClient(cfg, logger, ollamaClient)

	// A failed ping is not fatal: Ollama may come up after we do.
	if err := ollamaClient.Ping(ctx); err != nil {
		logger.Warn("Ollama not reachable at startup", "url", cfg.Models.OllamaURL, "error", err)
	}

	bus := events.New()
	reg := buildRegistry(cfg, logger, idx, bus)
	logger.Info("tools registered", "names", reg.Names())

	guard := tools.NewGuard(logger, time.Duration(cfg.Agent.ToolTimeoutSec)*time.Second)

	loop := agent.New(logger, llmClient, cfg.Models.Default, reg, guard, mem, bus)
	loop.SetMaxIterations(cfg.Agent.MaxIterations)

	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, loop, idx, mem, bus, logger)

	// SIGINT or SIGTERM cancels the context; the HTTP server then
	// drains in-flight requests before the deferred closes run.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()
	logger.Info("API server listening", "addr", listen)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}

	logger.Info("Quill stopped")
	return nil
}

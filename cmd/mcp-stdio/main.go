// Command mcp-stdio exposes the claudepipe chat and list_models tools to
// MCP clients that launch servers as subprocesses. It speaks MCP over
// stdin/stdout; logs go to stderr.
//
// It reads the same configuration as the HTTP server (-config,
// CLAUDEPIPE_CONFIG, ANTHROPIC_API_KEY, ...). Usage recording and
// authentication are not used.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/config"
	"github.com/rhuss/claudepipe/pkg/debug"
	"github.com/rhuss/claudepipe/pkg/engine"
	"github.com/rhuss/claudepipe/pkg/mcpserver"
	"github.com/rhuss/claudepipe/pkg/provider/anthropic"
	"github.com/rhuss/claudepipe/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("mcp-stdio failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Debug.Categories, cfg.Debug.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prov, err := anthropic.New(anthropic.Config{
		APIKey:               cfg.Anthropic.APIKey,
		BaseURL:              cfg.Anthropic.BaseURL,
		APIVersion:           cfg.Anthropic.APIVersion,
		Timeout:              cfg.Anthropic.Timeout,
		ThinkingBudgetTokens: cfg.Anthropic.ThinkingBudgetTokens,
		MaxAttempts:          cfg.Anthropic.MaxRetries,
		RetryBaseDelay:       cfg.Anthropic.RetryBaseDelay,
		ModelPrefix:          cfg.Anthropic.ModelPrefix,
	})
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	eng, err := engine.New(prov, nil, engine.Config{
		DefaultModel: cfg.Anthropic.DefaultModel,
		Validation:   api.DefaultValidationConfig(),
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	completer := transport.Chain(
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(slog.Default()),
	)(eng)
	srv := mcpserver.New(completer, eng, mcpserver.Config{DefaultModel: cfg.Anthropic.DefaultModel})

	slog.Info("serving MCP over stdio", "upstream", cfg.Anthropic.BaseURL)
	return srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
}

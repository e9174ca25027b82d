// Command elefante runs the Elefante memory server over the Model Context
// Protocol's stdio transport, the configuration every MCP-speaking agent
// host (Claude Desktop, Claude Code, and friends) expects for a local tool
// server launched as a subprocess.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpgoserver "github.com/mark3labs/mcp-go/server"

	elefante "github.com/elefante-ai/elefante"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := parseLogLevel(os.Getenv("ELEFANTE_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

// run constructs the App and serves its MCP tool surface over stdio until
// ctx is cancelled or stdin is closed by the connecting host, whichever
// comes first.
//
// stdio logging must never touch stdout — every byte on stdout is a
// framed MCP message to the host, so the App's own structured logger is
// pointed at stderr (see run0) to keep the two streams separate.
func run(ctx context.Context, logger *slog.Logger) error {
	app, err := elefante.New(
		elefante.WithLogger(logger),
		elefante.WithVersion(version),
	)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpgoserver.ServeStdio(app.MCPServer())
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = app.Shutdown(context.Background())
			return fmt.Errorf("mcp stdio serve: %w", err)
		}
	}

	return app.Shutdown(context.Background())
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// cmd/threadline-mcp is the entry point for the Threadline MCP (Model Context
// Protocol) server. It wires the durable store through the memory service and
// the operation registry, then serves JSON-RPC 2.0 over stdin/stdout.
//
// Startup sequence:
//  1. Load configuration from environment variables (plus optional YAML file).
//  2. Open the durable store (sqlite by default, postgres by DSN).
//  3. Assemble the memory service, executor, registry, and MCP server.
//  4. Serve line-delimited JSON-RPC 2.0 requests from stdin.
//
// CRITICAL: ALL logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/threadline-dev/threadline/internal/agents"
	"github.com/threadline-dev/threadline/internal/api/mcp"
	"github.com/threadline-dev/threadline/internal/config"
	"github.com/threadline-dev/threadline/internal/executor"
	"github.com/threadline-dev/threadline/internal/memory"
	"github.com/threadline-dev/threadline/internal/registry"
	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/internal/storage/postgres"
	"github.com/threadline-dev/threadline/internal/storage/sqlite"
)

func main() {
	// Redirect the default logger to stderr so that any incidental log calls
	// (e.g. from imported packages) never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("threadline-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	// Root context cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	svc := memory.NewService(store, log.Default())
	reg := registry.New()
	exec := executor.New(reg, log.Default(),
		executor.WithBatchLimit(cfg.Batch.Concurrency),
		executor.WithStagger(cfg.Batch.StaggerPerSecond, cfg.Batch.Concurrency),
	)
	if err := agents.RegisterMemoryManager(reg, svc, exec); err != nil {
		log.Fatalf("failed to register agents: %v", err)
	}

	srv := mcp.NewServer(reg, exec, svc,
		mcp.WithServerInfo(mcp.MCPServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version}),
	)

	transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Println("ready: serving JSON-RPC 2.0 on stdin/stdout")

	if err := transport.Serve(ctx); err != nil {
		// A non-nil error here is normal (context cancellation) or indicates a
		// fatal stdin/stdout problem. Either way it is informational only.
		log.Printf("transport stopped: %v", err)
	}
}

// openStore opens the configured durable-store backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN)
	}
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		return nil, err
	}
	return sqlite.New(filepath.Join(cfg.Storage.DataPath, "threadline.db"))
}

// cmd/threadline-ws serves the same Threadline MCP server over WebSocket:
// one JSON-RPC 2.0 message per text frame. It exists to demonstrate that
// only the transport layer is protocol-framing-aware; the server, registry,
// and services are shared with the stdio binary unchanged.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

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
	log.SetOutput(os.Stderr)
	log.SetPrefix("threadline-ws: ")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

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

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewWSTransport(srv))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
		cancel()
	}()

	log.Printf("ready: serving MCP over WebSocket on ws://%s/mcp", addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
	<-ctx.Done()
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

// main implements the CLI for an SMCP Computer: loads an upstream MCP
// server configuration, boots the MCP Server Manager, and keeps both in
// sync as the config file changes on disk.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kagenti/smcp-gateway/internal/computer"
	"github.com/kagenti/smcp-gateway/internal/config"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// configObserver re-renders and re-adds every configured server
// whenever the on-disk config changes, matching spec.md's
// add_or_update_server semantics for a full reload.
type configObserver struct {
	computer *computer.Computer
	logger   *slog.Logger
}

func (o *configObserver) OnConfigChange(ctx context.Context, cfg *config.ComputerConfig) {
	o.computer.SetConfig(cfg)
	for _, server := range cfg.Servers {
		if err := o.computer.AddOrUpdateServer(ctx, server); err != nil {
			o.logger.Error("failed to apply reloaded server config", "server", server.Name, "error", err)
		}
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	name := getEnv("SMCP_COMPUTER_NAME", "computer")
	configPath := getEnv("SMCP_COMPUTER_CONFIG", "./mcp-servers.yaml")

	loader := config.NewLoader(configPath, logger)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error("failed to load computer config", "path", configPath, "error", err)
		os.Exit(1)
	}

	comp := computer.New(name, logger)
	comp.SetConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := comp.BootUp(ctx); err != nil {
		logger.Error("boot up failed", "error", err)
		os.Exit(1)
	}

	loader.RegisterObserver(&configObserver{computer: comp, logger: logger})
	loader.Watch(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/tools", func(w http.ResponseWriter, r *http.Request) {
		tools, err := comp.AvailableTools(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, tools)
	})

	httpSrv := &http.Server{
		Addr:         getEnv("SMCP_COMPUTER_HTTP_ADDR", ":8081"),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http listening", "addr", httpSrv.Addr, "computer", name)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	comp.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

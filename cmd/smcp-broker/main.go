// main implements the CLI for the SMCP Broker: the room fabric Agents
// and Computers connect to in order to join an office and forward
// client:* requests between each other.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kagenti/smcp-gateway/internal/broker"
)

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// No rpctransport.SocketDirectory adapter ships with this module (the
	// Socket.IO wire layer is out of scope per SPEC_FULL.md §6); a real
	// deployment wires its own adapter here. nil accepts every connection
	// unauthenticated, suitable only for local development.
	b := broker.New(nil, nil, logger)
	status := broker.NewStatusHandler(b, logger)

	mux := http.NewServeMux()
	mux.Handle("/status", status)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	httpSrv := &http.Server{
		Addr:         getEnv("SMCP_BROKER_HTTP_ADDR", ":8080"),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

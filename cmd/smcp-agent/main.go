// main implements a minimal SMCP Agent CLI: it builds an Agent around a
// logging EventHandler, a starting point for an embedding orchestrator to
// replace with its own. No transport adapter is wired, so it neither
// joins an office nor receives notifications; it waits for a shutdown
// signal.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kagenti/smcp-gateway/internal/agent"
	"github.com/kagenti/smcp-gateway/internal/proto"
)

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// loggingHandler logs the enter/leave-office, tools-received and
// desktop-updated callbacks; any other callback falls through to
// NoopEventHandler. Embedding applications supply their own EventHandler
// in place of this one.
type loggingHandler struct {
	agent.NoopEventHandler
	logger *slog.Logger
}

func (h *loggingHandler) OnComputerEnterOffice(ctx context.Context, n proto.EnterOfficeNotification, a *agent.Agent) {
	h.logger.Info("computer entered office", "office_id", n.OfficeID)
}

func (h *loggingHandler) OnComputerLeaveOffice(ctx context.Context, n proto.LeaveOfficeNotification, a *agent.Agent) {
	h.logger.Info("computer left office", "office_id", n.OfficeID)
}

func (h *loggingHandler) OnToolsReceived(ctx context.Context, computer string, tools []proto.SMCPTool, a *agent.Agent) {
	h.logger.Info("tools refreshed", "computer", computer, "count", len(tools))
}

func (h *loggingHandler) OnDesktopUpdated(ctx context.Context, computer string, desktops []proto.Desktop, a *agent.Agent) {
	h.logger.Info("desktop refreshed", "computer", computer, "count", len(desktops))
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := agent.Config{
		AgentName:       getEnv("SMCP_AGENT_NAME", "agent"),
		OfficeID:        getEnv("SMCP_AGENT_OFFICE_ID", "default"),
		DefaultTimeout:  30 * time.Second,
		ToolCallTimeout: 60 * time.Second,
	}

	// No rpctransport.AgentTransport adapter ships with this module (the
	// Socket.IO wire layer is out of scope per SPEC_FULL.md §6); a real
	// deployment dials its transport here and passes it to agent.New.
	logger.Warn("no transport adapter wired; this binary is a wiring reference, not a runnable agent")

	a := agent.New(nil, cfg, &loggingHandler{logger: logger}, logger)
	_ = a

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}

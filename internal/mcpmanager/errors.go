package mcpmanager

import "fmt"

// ToolConflictError reports that a tool's display name (after alias
// resolution) is offered by more than one active server.
type ToolConflictError struct {
	Tool    string
	Servers []string
}

func (e *ToolConflictError) Error() string {
	return fmt.Sprintf("Tool '%s' exists in multiple servers: %v. Please use the 'alias' feature in ToolMeta to resolve conflicts.", e.Tool, e.Servers)
}

// ToolDisabledError reports a call against a tool forbidden by its
// server's configuration.
type ToolDisabledError struct {
	Tool string
}

func (e *ToolDisabledError) Error() string {
	return fmt.Sprintf("tool %q is disabled by configuration", e.Tool)
}

// ToolNotFoundError reports a call against a tool not offered by any
// active server.
type ToolNotFoundError struct {
	Tool string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found in any active server", e.Tool)
}

// ServerNotFoundError reports an operation against a server name the
// Manager has no entry for.
type ServerNotFoundError struct {
	Server string
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("server %q not managed", e.Server)
}

// Package config holds the MCP Server Config tagged union a Computer
// renders and boots from: the set of upstream MCP servers it fronts,
// their transport parameters, tool metadata, and the input
// placeholders referenced from "${input:id}" strings within them.
package config

import (
	"encoding/json"
	"fmt"
)

// ServerName and ToolName are the string identifiers used throughout
// the tool mapping and conflict-detection logic in internal/mcpmanager.
type ServerName = string
type ToolName = string

// Transport discriminates the three supported upstream MCP server
// connection kinds.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
	TransportHTTP  Transport = "http"
)

// ToolMeta carries per-tool overrides: an alias to resolve a naming
// conflict with another server's tool, tags for filtering, and a
// mapper applied to a tool's return value fields.
type ToolMeta struct {
	AutoApply      *bool             `json:"autoApply,omitempty"`
	Alias          string            `json:"alias,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	RetObjectMapper map[string]string `json:"retObjectMapper,omitempty"`
}

// StdioParameters are the launch parameters for a subprocess-based
// MCP server speaking JSON-RPC over stdin/stdout.
type StdioParameters struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
}

// HTTPParameters are shared by the SSE and streamable-HTTP transports:
// a base URL plus static headers (rendered for "${input:id}" before
// use).
type HTTPParameters struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// MCPServer is one upstream MCP server entry in a Computer's config.
// Transport selects which of Stdio/SSE/HTTP is populated; the others stay
// zero. This mirrors a Rust externally-tagged enum as a Go
// discriminant struct, which is the idiomatic shape for a tagged union
// decoded through encoding/json.
type MCPServer struct {
	Name            ServerName          `json:"name"`
	Transport       Transport           `json:"type"`
	Disabled        bool                `json:"disabled,omitempty"`
	ForbiddenTools  []ToolName          `json:"forbiddenTools,omitempty"`
	ToolMeta        map[ToolName]ToolMeta `json:"toolMeta,omitempty"`
	DefaultToolMeta *ToolMeta           `json:"defaultToolMeta,omitempty"`

	Stdio *StdioParameters `json:"stdio,omitempty"`
	SSE   *HTTPParameters  `json:"sse,omitempty"`
	HTTP  *HTTPParameters  `json:"http,omitempty"`
}

// Validate checks that the server's Transport-selected parameter
// block is actually populated.
func (s *MCPServer) Validate() error {
	switch s.Transport {
	case TransportStdio:
		if s.Stdio == nil {
			return fmt.Errorf("server %q: transport %q requires stdio parameters", s.Name, s.Transport)
		}
	case TransportSSE:
		if s.SSE == nil {
			return fmt.Errorf("server %q: transport %q requires sse parameters", s.Name, s.Transport)
		}
	case TransportHTTP:
		if s.HTTP == nil {
			return fmt.Errorf("server %q: transport %q requires http parameters", s.Name, s.Transport)
		}
	default:
		return fmt.Errorf("server %q: unknown transport %q", s.Name, s.Transport)
	}
	return nil
}

// ToolMetaFor resolves the effective ToolMeta for a tool name: starts
// from the server's default (if any) and overwrites it field-by-field
// with whichever fields the per-tool entry (if any) actually sets. The
// second return is false only when neither a default nor a per-tool
// entry exists.
func (s *MCPServer) ToolMetaFor(tool ToolName) (ToolMeta, bool) {
	specific, hasSpecific := s.ToolMeta[tool]
	if s.DefaultToolMeta == nil && !hasSpecific {
		return ToolMeta{}, false
	}

	merged := ToolMeta{}
	if s.DefaultToolMeta != nil {
		merged = *s.DefaultToolMeta
	}
	if specific.AutoApply != nil {
		merged.AutoApply = specific.AutoApply
	}
	if specific.Alias != "" {
		merged.Alias = specific.Alias
	}
	if len(specific.Tags) > 0 {
		merged.Tags = specific.Tags
	}
	if len(specific.RetObjectMapper) > 0 {
		merged.RetObjectMapper = specific.RetObjectMapper
	}
	return merged, true
}

// IsForbidden reports whether tool is excluded from this server's
// advertised tool list.
func (s *MCPServer) IsForbidden(tool ToolName) bool {
	for _, t := range s.ForbiddenTools {
		if t == tool {
			return true
		}
	}
	return false
}

// InputKind discriminates the three supported input definitions.
type InputKind string

const (
	InputPromptString InputKind = "promptString"
	InputPickString   InputKind = "pickString"
	InputCommand      InputKind = "command"
)

// InputDef describes one "${input:id}" placeholder a Computer's config
// may reference: either a free-form prompt, a pick-list, or a command
// whose stdout becomes the value.
type InputDef struct {
	Kind        InputKind         `json:"type"`
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Default     string            `json:"default,omitempty"`
	Password    bool              `json:"password,omitempty"`
	Options     []string          `json:"options,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        map[string]string `json:"args,omitempty"`
}

// Validate checks that the Kind-selected fields are coherent.
func (i *InputDef) Validate() error {
	switch i.Kind {
	case InputPromptString, InputPickString, InputCommand:
	default:
		return fmt.Errorf("input %q: unknown type %q", i.ID, i.Kind)
	}
	if i.Kind == InputPickString && len(i.Options) == 0 {
		return fmt.Errorf("input %q: pickString requires at least one option", i.ID)
	}
	if i.Kind == InputCommand && i.Command == "" {
		return fmt.Errorf("input %q: command requires a command", i.ID)
	}
	return nil
}

// ComputerConfig is the full, renderable document a Computer boots
// from: its upstream servers and the inputs they reference. This is
// the content proto.GetComputerConfigRet carries as raw JSON (see
// internal/proto).
type ComputerConfig struct {
	Servers []*MCPServer `json:"servers"`
	Inputs  []*InputDef  `json:"inputs,omitempty"`
}

// ServerByName returns the server entry with the given name, or nil.
func (c *ComputerConfig) ServerByName(name ServerName) *MCPServer {
	for _, s := range c.Servers {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// InputByID returns the input definition with the given id, or nil.
func (c *ComputerConfig) InputByID(id string) *InputDef {
	for _, in := range c.Inputs {
		if in.ID == id {
			return in
		}
	}
	return nil
}

// Validate validates every server and input entry, and rejects
// duplicate server names (a Computer cannot disambiguate two servers
// sharing a name when resolving tool conflicts downstream).
func (c *ComputerConfig) Validate() error {
	seen := make(map[ServerName]struct{}, len(c.Servers))
	for _, s := range c.Servers {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate server name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, in := range c.Inputs {
		if err := in.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy, used so an Observer callback never
// observes a config being mutated concurrently by a reload.
func (c *ComputerConfig) Clone() (*ComputerConfig, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("clone config: %w", err)
	}
	var out ComputerConfig
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone config: %w", err)
	}
	return &out, nil
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "computer.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadValidStdioConfig(t *testing.T) {
	path := writeConfigFile(t, `{
		"servers": [
			{"name": "fs", "type": "stdio", "stdio": {"command": "mcp-fs", "args": ["--root", "/tmp"]}}
		],
		"inputs": [
			{"type": "promptString", "id": "token", "description": "API token", "password": true}
		]
	}`)

	l := NewLoader(path, nil)
	cfg, err := l.Load()
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, TransportStdio, cfg.Servers[0].Transport)
	assert.Equal(t, "mcp-fs", cfg.Servers[0].Stdio.Command)
	assert.Equal(t, cfg, l.Current())
}

func TestValidateRejectsMissingTransportParams(t *testing.T) {
	cfg := ComputerConfig{
		Servers: []*MCPServer{{Name: "fs", Transport: TransportStdio}},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsDuplicateServerNames(t *testing.T) {
	cfg := ComputerConfig{
		Servers: []*MCPServer{
			{Name: "fs", Transport: TransportStdio, Stdio: &StdioParameters{Command: "a"}},
			{Name: "fs", Transport: TransportHTTP, HTTP: &HTTPParameters{URL: "http://x"}},
		},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsPickStringWithoutOptions(t *testing.T) {
	in := InputDef{Kind: InputPickString, ID: "env"}
	require.Error(t, in.Validate())
}

func TestToolMetaForFallsBackToDefault(t *testing.T) {
	defaultMeta := ToolMeta{Alias: "fallback"}
	s := MCPServer{DefaultToolMeta: &defaultMeta}
	meta, ok := s.ToolMetaFor("anything")
	require.True(t, ok)
	assert.Equal(t, "fallback", meta.Alias)
}

func TestToolMetaForMergesSpecificOverDefault(t *testing.T) {
	autoApply := true
	defaultMeta := ToolMeta{Alias: "fallback", Tags: []string{"default-tag"}}
	s := MCPServer{
		DefaultToolMeta: &defaultMeta,
		ToolMeta: map[ToolName]ToolMeta{
			"write_file": {AutoApply: &autoApply},
		},
	}

	meta, ok := s.ToolMetaFor("write_file")
	require.True(t, ok)
	assert.Equal(t, "fallback", meta.Alias, "unset specific fields keep the default")
	assert.Equal(t, []string{"default-tag"}, meta.Tags, "unset specific fields keep the default")
	require.NotNil(t, meta.AutoApply)
	assert.True(t, *meta.AutoApply, "set specific fields overwrite the default")
}

func TestIsForbidden(t *testing.T) {
	s := MCPServer{ForbiddenTools: []ToolName{"danger"}}
	assert.True(t, s.IsForbidden("danger"))
	assert.False(t, s.IsForbidden("safe"))
}

type recordingObserver struct {
	seen chan *ComputerConfig
}

func (r *recordingObserver) OnConfigChange(_ context.Context, cfg *ComputerConfig) {
	r.seen <- cfg
}

func TestRegisterObserverReceivesNotify(t *testing.T) {
	path := writeConfigFile(t, `{"servers": [{"name": "a", "type": "stdio", "stdio": {"command": "x"}}]}`)
	l := NewLoader(path, nil)
	_, err := l.Load()
	require.NoError(t, err)

	obs := &recordingObserver{seen: make(chan *ComputerConfig, 1)}
	l.RegisterObserver(obs)
	l.notify(context.Background(), l.Current())

	cfg := <-obs.seen
	assert.Len(t, cfg.Servers, 1)
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := &ComputerConfig{Servers: []*MCPServer{{Name: "a", Transport: TransportStdio, Stdio: &StdioParameters{Command: "x"}}}}
	clone, err := cfg.Clone()
	require.NoError(t, err)
	clone.Servers[0].Name = "b"
	assert.Equal(t, "a", cfg.Servers[0].Name)
}

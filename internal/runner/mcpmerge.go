package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
)

// MCPServerConfig is one entry in a runner's merged MCP server set.
type MCPServerConfig struct {
	Name    string
	Command string   // stdio transport: executable to spawn
	Args    []string
	Env     []string
	URL     string // sse/http transport: remote server base URL
}

// mcpJSONFile is the shape of a `.mcp.json` file, matching the format
// Claude/Cursor/Codex already emit in a project root.
type mcpJSONFile struct {
	MCPServers map[string]struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
		Env     []string `json:"env"`
		URL     string   `json:"url"`
	} `json:"mcpServers"`
}

// MergeMCPConfig assembles a runner's final MCP server set as an ordered
// merge: auto-detected .mcp.json in workingDir (skipped silently if
// unreadable) → explicitly configured paths (applied in order) → inline.
// Same-name later entries win (spec.md §4.4).
func MergeMCPConfig(workingDir string, configuredPaths []string, inline []MCPServerConfig) []MCPServerConfig {
	merged := make(map[string]MCPServerConfig)
	order := make([]string, 0)

	apply := func(cfgs map[string]MCPServerConfig) {
		for name, cfg := range cfgs {
			if _, exists := merged[name]; !exists {
				order = append(order, name)
			}
			merged[name] = cfg
		}
	}

	if autoDetected, ok := readMCPJSONFile(workingDir + "/.mcp.json"); ok {
		apply(autoDetected)
	}
	for _, path := range configuredPaths {
		if cfgs, ok := readMCPJSONFile(path); ok {
			apply(cfgs)
		}
	}
	inlineMap := make(map[string]MCPServerConfig, len(inline))
	for _, cfg := range inline {
		inlineMap[cfg.Name] = cfg
	}
	apply(inlineMap)

	out := make([]MCPServerConfig, 0, len(order))
	for _, name := range order {
		out = append(out, merged[name])
	}
	return out
}

// readMCPJSONFile parses one .mcp.json-shaped file, returning ok=false
// (never an error) if the file can't be read or parsed — per spec.md's
// "skipped silently if unreadable".
func readMCPJSONFile(path string) (map[string]MCPServerConfig, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var f mcpJSONFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false
	}
	out := make(map[string]MCPServerConfig, len(f.MCPServers))
	for name, s := range f.MCPServers {
		out[name] = MCPServerConfig{Name: name, Command: s.Command, Args: s.Args, Env: s.Env, URL: s.URL}
	}
	return out, true
}

// WriteMCPConfigFile renders servers back into .mcp.json shape and writes
// it to a process-scoped temp file, returning its path for adapters that
// accept an explicit `--mcp-config <path>` flag rather than an inline
// blob on the command line.
func WriteMCPConfigFile(workingDir string, servers []MCPServerConfig) (string, error) {
	out := mcpJSONFile{MCPServers: make(map[string]struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
		Env     []string `json:"env"`
		URL     string   `json:"url"`
	})}
	for _, s := range servers {
		out.MCPServers[s.Name] = struct {
			Command string   `json:"command"`
			Args    []string `json:"args"`
			Env     []string `json:"env"`
			URL     string   `json:"url"`
		}{Command: s.Command, Args: s.Args, Env: s.Env, URL: s.URL}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshaling merged mcp config: %w", err)
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("sylas-mcp-%s.json", uuid.NewString()))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing merged mcp config %s: %w", path, err)
	}
	return path, nil
}

// ConnectMCPClient builds a live mcp-go client for cfg, using the stdio
// transport for a command-backed server and SSE for a URL-backed one.
func ConnectMCPClient(cfg MCPServerConfig) (*client.Client, error) {
	if cfg.URL != "" {
		return client.NewSSEMCPClient(cfg.URL)
	}
	if cfg.Command != "" {
		return client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	}
	return nil, fmt.Errorf("mcp server %q has neither a command nor a url", cfg.Name)
}

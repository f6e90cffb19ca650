package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// manifestDir is the directory name used under the workspace and the user
// config directory.
const manifestDir = "discord-voice-assistant"

// Manifest is the top-level structure of an MCP manifest file.
type Manifest struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig describes how to reach one MCP server: a websocket
// transport, or a command spawned with stdio.
type ServerConfig struct {
	Transport *TransportConfig  `json:"transport,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Enabled   *bool             `json:"enabled,omitempty"`
}

type TransportConfig struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// ManifestResult holds the merged servers in name order.
type ManifestResult struct {
	Servers map[string]ServerConfig
	Order   []string
	Sources []string
}

// IsEnabled reports whether the server should be used.
func (s ServerConfig) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// IsWebSocket reports whether the server is reached over a websocket.
func (s ServerConfig) IsWebSocket() bool {
	return s.Transport != nil && strings.EqualFold(s.Transport.Type, "websocket")
}

// LoadManifest reads MCP_CONFIG_PATH if set. Otherwise it merges
// ./.discord-voice-assistant/mcp.json and
// $XDG_CONFIG_HOME/discord-voice-assistant/mcp.json, the latter winning on
// name clashes. Missing files are skipped.
func LoadManifest() (ManifestResult, error) {
	result := ManifestResult{Servers: make(map[string]ServerConfig)}

	if override := os.Getenv("MCP_CONFIG_PATH"); override != "" {
		path, err := expandPath(override)
		if err != nil {
			return result, err
		}
		m, err := readManifest(path)
		if err != nil {
			return result, err
		}
		mergeServers(result.Servers, m.Servers)
		result.Sources = append(result.Sources, path)
		finalizeOrder(&result)
		return result, nil
	}

	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, "."+manifestDir, "mcp.json"))
	}
	if p, err := userManifestPath(); err == nil {
		paths = append(paths, p)
	}
	for _, path := range paths {
		m, err := readManifest(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return result, err
		}
		mergeServers(result.Servers, m.Servers)
		result.Sources = append(result.Sources, path)
	}
	finalizeOrder(&result)
	return result, nil
}

func finalizeOrder(result *ManifestResult) {
	names := make([]string, 0, len(result.Servers))
	for name := range result.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	result.Order = names
}

func mergeServers(dst, src map[string]ServerConfig) {
	for name, cfg := range src {
		dst[name] = normalizeConfig(cfg)
	}
}

func normalizeConfig(cfg ServerConfig) ServerConfig {
	if cfg.Args != nil {
		out := make([]string, len(cfg.Args))
		for i, arg := range cfg.Args {
			out[i] = expandOrKeep(arg)
		}
		cfg.Args = out
	}
	cfg.Command = expandOrKeep(cfg.Command)
	if len(cfg.Env) > 0 {
		env := make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			env[k] = expandOrKeep(v)
		}
		cfg.Env = env
	}
	if cfg.Transport != nil {
		t := *cfg.Transport
		t.URL = expandOrKeep(t.URL)
		cfg.Transport = &t
	}
	return cfg
}

func readManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if m.Servers == nil {
		m.Servers = make(map[string]ServerConfig)
	}
	return m, nil
}

func userManifestPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, manifestDir, "mcp.json"), nil
}

func expandOrKeep(v string) string {
	if expanded, err := expandPath(v); err == nil {
		return expanded
	}
	return v
}

func expandPath(value string) (string, error) {
	if !strings.HasPrefix(value, "~") {
		return value, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return value, err
	}
	if value == "~" {
		return home, nil
	}
	if strings.HasPrefix(value, "~/") {
		return filepath.Join(home, value[2:]), nil
	}
	return filepath.Join(home, value[1:]), nil
}

// Package config handles Quill configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/quill/config.yaml, /etc/quill/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "quill", "config.yaml"))
	}

	paths = append(paths, "/etc/quill/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Quill configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Models    ModelsConfig    `yaml:"models"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Vault     VaultConfig     `yaml:"vault"`
	Search    SearchConfig    `yaml:"search"`
	Agent     AgentConfig     `yaml:"agent"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines model provider settings.
type ModelsConfig struct {
	Default   string `yaml:"default"`
	OllamaURL string `yaml:"ollama_url"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// VaultConfig defines the markdown note vault the agent answers over.
type VaultConfig struct {
	// Path is the root directory of the markdown vault. All file_tree
	// paths are relative to this directory. If empty, vault tools are
	// disabled.
	Path string `yaml:"path"`
	// MaxResults caps vault_search results per query (default 5).
	MaxResults int `yaml:"max_results"`
}

// SearchConfig defines web search provider settings.
type SearchConfig struct {
	// SearxNGURL is the base URL of a SearxNG instance. Empty disables
	// the web_search tool.
	SearxNGURL string `yaml:"searxng_url"`
	MaxResults int    `yaml:"max_results"`
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	// MaxIterations bounds the request/parse/execute cycle count.
	// Zero means the built-in default of 4.
	MaxIterations int `yaml:"max_iterations"`
	// ToolTimeoutSec is the per-tool wall-clock deadline in seconds
	// (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{
		Listen: ListenConfig{Port: 8080},
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Models: ModelsConfig{
			Default:   "qwen3:4b",
			OllamaURL: "http://localhost:11434",
		},
		Vault:  VaultConfig{MaxResults: 5},
		Search: SearchConfig{MaxResults: 5},
		Agent:  AgentConfig{MaxIterations: 4, ToolTimeoutSec: 30},
	}
}

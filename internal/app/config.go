package app

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type ModelSpec struct {
	Name       string `yaml:"name"`
	MaxContext int    `yaml:"max_context"` // tokens
}

type LLMConfig struct {
	Provider    string      `yaml:"provider"` // openai|anthropic
	BaseURL     string      `yaml:"base_url"`
	APIKey      string      `yaml:"api_key"`
	Model       string      `yaml:"model"`
	Temperature float64     `yaml:"temperature"`
	MaxTokens   int         `yaml:"max_tokens"`
	Models      []ModelSpec `yaml:"models"`
}

type SearchConfig struct {
	Provider string `yaml:"provider"` // tavily|brave
	APIKey   string `yaml:"api_key"`
}

type CompressConfig struct {
	// KeepMessages is the verbatim tail retained on compression
	// (20 messages = 10 user/assistant rounds).
	KeepMessages int `yaml:"keep_messages"`
	// Ratio of the token threshold that triggers compression.
	Ratio float64 `yaml:"ratio"`
}

type Config struct {
	WorkspaceRoot string         `yaml:"workspace_root"`
	PromptsPath   string         `yaml:"prompts_path"`
	LLM           LLMConfig      `yaml:"llm"`
	Search        SearchConfig   `yaml:"search"`
	Compress      CompressConfig `yaml:"compress"`
}

func DefaultConfig() Config {
	return Config{
		WorkspaceRoot: "./workspaces",
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Compress: CompressConfig{
			KeepMessages: 20,
			Ratio:        DefaultCompressRatio,
		},
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = "./workspaces"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.Temperature <= 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.Compress.KeepMessages <= 0 {
		cfg.Compress.KeepMessages = 20
	}
	if cfg.Compress.Ratio <= 0 || cfg.Compress.Ratio > 1 {
		cfg.Compress.Ratio = DefaultCompressRatio
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		return errors.New("no path provided for config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "tutor", "config.yml")
}

// ModelContextTokens resolves the context window for a model: config table
// first, then the built-in registry, then a safe default.
func (c Config) ModelContextTokens(model string) int {
	for _, spec := range c.LLM.Models {
		if spec.Name == model && spec.MaxContext > 0 {
			return spec.MaxContext
		}
	}
	if n, ok := LookupContextWindowTokens(model); ok {
		return n
	}
	return DefaultContextWindowTokens
}

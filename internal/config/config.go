package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Git           GitConfig           `toml:"git"`
	Runner        RunnerConfig        `toml:"runner"`
	LLM           LLMConfig           `toml:"llm"`
	CI            CIConfig            `toml:"ci"`
	Registry      RegistryConfig      `toml:"registry"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// ServerConfig holds HTTP front-end settings
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// GitConfig holds version-control settings
type GitConfig struct {
	PAT       string `toml:"pat"`
	ClonesDir string `toml:"clones_dir"`
	Depth     int    `toml:"depth"`
	ForcePush bool   `toml:"force_push"`
}

// RunnerConfig holds sandboxed test-execution settings
type RunnerConfig struct {
	Image          string `toml:"image"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxWorkers     int    `toml:"max_workers"`
	UseDocker      bool   `toml:"use_docker"`
}

// LLMConfig holds patch-generation backend settings
type LLMConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	OllamaBaseURL  string `toml:"ollama_base_url"`
	OllamaModel    string `toml:"ollama_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CIConfig holds remote CI polling settings
type CIConfig struct {
	MaxPolls        int `toml:"max_polls"`
	IntervalSeconds int `toml:"interval_seconds"`
}

// RegistryConfig holds run-registry lifecycle settings
type RegistryConfig struct {
	DatabasePath string `toml:"database_path"`
	TTLMinutes   int    `toml:"ttl_minutes"`
	SweepCron    string `toml:"sweep_cron"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".ci-heal-orchestrator")
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Git: GitConfig{
			ClonesDir: filepath.Join(base, "clones"),
			Depth:     50,
		},
		Runner: RunnerConfig{
			Image:          "python:3.11-slim",
			TimeoutSeconds: 300,
			MaxWorkers:     4,
			UseDocker:      true,
		},
		LLM: LLMConfig{
			BaseURL:        "https://integrate.api.nvidia.com/v1",
			Model:          "mistralai/mixtral-8x22b-instruct-v0.1",
			OllamaBaseURL:  "http://localhost:11434",
			OllamaModel:    "llama3",
			TimeoutSeconds: 60,
		},
		CI: CIConfig{
			MaxPolls:        10,
			IntervalSeconds: 15,
		},
		Registry: RegistryConfig{
			DatabasePath: filepath.Join(base, "runs.db"),
			TTLMinutes:   60,
			SweepCron:    "*/10 * * * *",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Environment overrides for credentials
	if pat := os.Getenv("GITHUB_PAT"); pat != "" {
		cfg.Git.PAT = pat
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}

	// Expand paths
	cfg.Git.ClonesDir = ExpandPath(cfg.Git.ClonesDir)
	cfg.Registry.DatabasePath = ExpandPath(cfg.Registry.DatabasePath)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ci-heal-orchestrator", "config.toml")
}

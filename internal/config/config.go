// internal/config/config.go
package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"switchboard/internal/adapter"
)

// AgentConfig configures one vendor CLI.
type AgentConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CLIPath    string `yaml:"cli_path,omitempty"`
	Model      string `yaml:"model,omitempty"`
	AutoAccept bool   `yaml:"auto_accept,omitempty"`
}

type Config struct {
	Agents struct {
		Claude   AgentConfig `yaml:"claude"`
		Gemini   AgentConfig `yaml:"gemini"`
		Codex    AgentConfig `yaml:"codex"`
		Opencode AgentConfig `yaml:"opencode"`
	} `yaml:"agents"`
	Defaults struct {
		Workdir    string `yaml:"workdir,omitempty"`
		AutoAccept bool   `yaml:"auto_accept"`
	} `yaml:"defaults"`
	Retry struct {
		MaxRetries       int `yaml:"max_retries"`
		BreakerThreshold int `yaml:"breaker_threshold"`
		BaseDelay        int `yaml:"base_delay_ms"`
		MaxDelay         int `yaml:"max_delay_ms"`
	} `yaml:"retry"`
	Debate struct {
		WaitTimeout   int `yaml:"wait_timeout_secs"`
		DefaultRounds int `yaml:"default_rounds"`
	} `yaml:"debate"`
	Bus struct {
		History int `yaml:"history"`
	} `yaml:"bus"`
	Storage struct {
		Database string `yaml:"database,omitempty"`
	} `yaml:"storage"`
	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir,omitempty"`
	} `yaml:"journal"`
	Telemetry struct {
		// Endpoint receives fire-and-forget event posts. Empty disables
		// telemetry entirely.
		Endpoint string `yaml:"endpoint,omitempty"`
	} `yaml:"telemetry"`
}

func Load() (*Config, error) {
	// Pick up a .env from the working directory so ${VAR} references in
	// the config file resolve. Already-set variables win.
	_ = godotenv.Load()
	return loadPath(ConfigPath())
}

func loadPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return defaults if no config file
		return defaultConfig(), nil
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for unset values
	applyDefaults(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Agents.Claude.Enabled = true
	cfg.Agents.Claude.CLIPath = "claude"
	cfg.Agents.Gemini.Enabled = true
	cfg.Agents.Gemini.CLIPath = "gemini"
	cfg.Agents.Codex.Enabled = false
	cfg.Agents.Opencode.Enabled = false
	cfg.Journal.Enabled = true
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Agents.Claude.CLIPath == "" {
		cfg.Agents.Claude.CLIPath = "claude"
	}
	if cfg.Agents.Gemini.CLIPath == "" {
		cfg.Agents.Gemini.CLIPath = "gemini"
	}
	if cfg.Agents.Codex.CLIPath == "" {
		cfg.Agents.Codex.CLIPath = "codex"
	}
	if cfg.Agents.Opencode.CLIPath == "" {
		cfg.Agents.Opencode.CLIPath = "opencode"
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.BreakerThreshold == 0 {
		cfg.Retry.BreakerThreshold = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 1000 // 1 second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30000
	}
	if cfg.Debate.WaitTimeout == 0 {
		cfg.Debate.WaitTimeout = 300
	}
	if cfg.Debate.DefaultRounds == 0 {
		cfg.Debate.DefaultRounds = 3
	}
	if cfg.Bus.History == 0 {
		cfg.Bus.History = 200
	}
	if cfg.Storage.Database == "" {
		cfg.Storage.Database = filepath.Join(DataDir(), "history.db")
	}
	if cfg.Journal.Dir == "" {
		cfg.Journal.Dir = filepath.Join(DataDir(), "journal")
	}
}

// AdapterOptions converts the enabled agent entries into adapter
// options, in the fixed vendor order.
func (c *Config) AdapterOptions() []adapter.Options {
	entries := []struct {
		vendor string
		agent  AgentConfig
	}{
		{"claude", c.Agents.Claude},
		{"gemini", c.Agents.Gemini},
		{"codex", c.Agents.Codex},
		{"opencode", c.Agents.Opencode},
	}

	var opts []adapter.Options
	for _, e := range entries {
		if !e.agent.Enabled {
			continue
		}
		auto := e.agent.AutoAccept || c.Defaults.AutoAccept
		if auto && e.vendor == "opencode" {
			log.Printf("[config] opencode has no auto-accept flag; permission prompts are not suppressed")
		}
		opts = append(opts, adapter.Options{
			AgentID:    e.vendor,
			Vendor:     e.vendor,
			Binary:     e.agent.CLIPath,
			Model:      e.agent.Model,
			WorkDir:    c.Defaults.Workdir,
			AutoAccept: auto,
		})
	}
	return opts
}

func ConfigPath() string {
	configDir, _ := os.UserConfigDir()
	if configDir == "" {
		configDir = os.ExpandEnv("$HOME/.config")
	}
	return filepath.Join(configDir, "switchboard", "config.yaml")
}

// DataDir is where the history database and journal live.
func DataDir() string {
	configDir, _ := os.UserConfigDir()
	if configDir == "" {
		configDir = os.ExpandEnv("$HOME/.config")
	}
	return filepath.Join(configDir, "switchboard")
}

// Package config handles configuration loading and management for Penny.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/pennyhq/penny/internal/escalate"
)

// Config holds all configuration for Penny.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Data         DataConfig         `mapstructure:"data" yaml:"data"`
	Thresholds   ThresholdsConfig   `mapstructure:"thresholds" yaml:"thresholds"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic" yaml:"anthropic"`
	Integrations IntegrationsConfig `mapstructure:"integrations" yaml:"integrations"`
	Telegram     TelegramConfig     `mapstructure:"telegram" yaml:"telegram"`
	Watch        WatchConfig        `mapstructure:"watch" yaml:"watch"`
	Probes       ProbesConfig       `mapstructure:"probes" yaml:"probes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DataConfig holds storage locations.
type DataConfig struct {
	// Dir is where the SQLite database and debug logs live.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ThresholdsConfig holds the confidence boundaries driving routing and escalation.
type ThresholdsConfig struct {
	// High is the direct-dispatch boundary.
	High float64 `mapstructure:"high" yaml:"high"`
	// Medium is the quick-reasoning boundary.
	Medium float64 `mapstructure:"medium" yaml:"medium"`
	// Low is the boundary below which items go to background gathering.
	Low float64 `mapstructure:"low" yaml:"low"`
}

// Escalate converts the configured thresholds to the escalation engine's form.
func (t ThresholdsConfig) Escalate() escalate.Thresholds {
	return escalate.Thresholds{High: t.High, Medium: t.Medium, Low: t.Low}
}

// OrchestratorConfig holds background orchestrator settings.
type OrchestratorConfig struct {
	// PollInterval is how often the orchestrator scans for due tasks.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// ProbeTimeout bounds each individual probe execution.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	// TaskBudget caps total probe time for one task in one cycle.
	TaskBudget time.Duration `mapstructure:"task_budget" yaml:"task_budget"`
	// Parallelism bounds concurrent task processing within a cycle.
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism"`
	// MaxAttempts is the poll-count ceiling before a task expires.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// AnthropicConfig holds inference settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// UseAWSBedrock routes inference through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock" yaml:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region" yaml:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile"`
	// ClassifierModel is the cheap model used for classification.
	ClassifierModel string `mapstructure:"classifier_model" yaml:"classifier_model"`
	// QuickModel is the mid-tier model for quick reasoning passes.
	QuickModel string `mapstructure:"quick_model" yaml:"quick_model"`
	// FullModel is the top model for full reasoning passes.
	FullModel string `mapstructure:"full_model" yaml:"full_model"`
	// InferTimeout bounds one classification inference call.
	InferTimeout time.Duration `mapstructure:"infer_timeout" yaml:"infer_timeout"`
}

// IntegrationsConfig holds base URLs for the per-category target services.
// An empty URL disables that integration; dispatch then falls back to the
// universal notification channel.
type IntegrationsConfig struct {
	ShoppingURL string `mapstructure:"shopping_url" yaml:"shopping_url"`
	MediaURL    string `mapstructure:"media_url" yaml:"media_url"`
	CalendarURL string `mapstructure:"calendar_url" yaml:"calendar_url"`
	ChatURL     string `mapstructure:"chat_url" yaml:"chat_url"`
	HomeURL     string `mapstructure:"home_url" yaml:"home_url"`
}

// TelegramConfig holds the universal fallback channel settings.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
	// ReplyTimeout is how long a confirmation request waits for a reply.
	ReplyTimeout time.Duration `mapstructure:"reply_timeout" yaml:"reply_timeout"`
}

// WatchConfig holds transcript-watcher settings.
type WatchConfig struct {
	// Enabled turns the directory watcher on under `penny serve`.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Dir is the transcript drop directory.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// ProcessedDir receives transcripts after successful ingestion.
	ProcessedDir string `mapstructure:"processed_dir" yaml:"processed_dir"`
	// FailedDir receives transcripts that could not be ingested.
	FailedDir string `mapstructure:"failed_dir" yaml:"failed_dir"`
}

// ProbesConfig holds probe-specific settings.
type ProbesConfig struct {
	// NotesDir is scanned by the pattern-search probe.
	NotesDir string `mapstructure:"notes_dir" yaml:"notes_dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID)
// 2. Project config (.penny.yaml in current directory or parent)
// 3. User config (~/.config/penny/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("")

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Telegram.BotToken = expandEnv(cfg.Telegram.BotToken)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Telegram.BotToken = expandEnv(cfg.Telegram.BotToken)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("data.dir", defaultDataDir())

	v.SetDefault("thresholds.high", 0.8)
	v.SetDefault("thresholds.medium", 0.6)
	v.SetDefault("thresholds.low", 0.6)

	v.SetDefault("orchestrator.poll_interval", "30s")
	v.SetDefault("orchestrator.probe_timeout", "30s")
	v.SetDefault("orchestrator.task_budget", "2m")
	v.SetDefault("orchestrator.parallelism", 4)
	v.SetDefault("orchestrator.max_attempts", 3)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("anthropic.classifier_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.quick_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.full_model", "claude-opus-4-5-20251101")
	v.SetDefault("anthropic.infer_timeout", "15s")

	v.SetDefault("integrations.shopping_url", "")
	v.SetDefault("integrations.media_url", "")
	v.SetDefault("integrations.calendar_url", "")
	v.SetDefault("integrations.chat_url", "")
	v.SetDefault("integrations.home_url", "")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.reply_timeout", "10m")

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.dir", "")
	v.SetDefault("watch.processed_dir", "")
	v.SetDefault("watch.failed_dir", "")

	v.SetDefault("probes.notes_dir", "")
}

// defaultDataDir returns the XDG data directory for Penny.
func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "penny")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".penny")
	}
	return filepath.Join(home, ".local", "share", "penny")
}

// getUserConfigDir returns the XDG config directory for Penny.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "penny")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "penny")
	}
	return filepath.Join(home, ".config", "penny")
}

// findProjectConfig searches for .penny.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".penny.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8000"},
		Data:   DataConfig{Dir: defaultDataDir()},
		Thresholds: ThresholdsConfig{
			High:   0.8,
			Medium: 0.6,
			Low:    0.6,
		},
		Orchestrator: OrchestratorConfig{
			PollInterval: 30 * time.Second,
			ProbeTimeout: 30 * time.Second,
			TaskBudget:   2 * time.Minute,
			Parallelism:  4,
			MaxAttempts:  3,
		},
		Anthropic: AnthropicConfig{
			ClassifierModel: "claude-haiku-4-5-20251001",
			QuickModel:      "claude-sonnet-4-5-20250929",
			FullModel:       "claude-opus-4-5-20251101",
			InferTimeout:    15 * time.Second,
		},
		Telegram: TelegramConfig{
			ReplyTimeout: 10 * time.Minute,
		},
	}
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.Thresholds.High < c.Thresholds.Medium {
		return fmt.Errorf("thresholds.high (%v) must be >= thresholds.medium (%v)", c.Thresholds.High, c.Thresholds.Medium)
	}
	if c.Thresholds.Medium < c.Thresholds.Low {
		return fmt.Errorf("thresholds.medium (%v) must be >= thresholds.low (%v)", c.Thresholds.Medium, c.Thresholds.Low)
	}
	for name, val := range map[string]float64{
		"thresholds.high":   c.Thresholds.High,
		"thresholds.medium": c.Thresholds.Medium,
		"thresholds.low":    c.Thresholds.Low,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("%s (%v) must be in [0,1]", name, val)
		}
	}
	if c.Orchestrator.MaxAttempts < 1 {
		return fmt.Errorf("orchestrator.max_attempts (%d) must be >= 1", c.Orchestrator.MaxAttempts)
	}
	if c.Orchestrator.Parallelism < 1 {
		return fmt.Errorf("orchestrator.parallelism (%d) must be >= 1", c.Orchestrator.Parallelism)
	}
	if c.Orchestrator.PollInterval <= 0 {
		return fmt.Errorf("orchestrator.poll_interval must be positive")
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	LLM        LLMConfig
	Lookup     LookupConfig
	Classifier ClassifierConfig
	Backup     BackupConfig
	Eval       EvalConfig
	UI         UIConfig
	Log        LogConfig
}

// LLMConfig holds provider settings.
type LLMConfig struct {
	Provider          string
	APIKeyEnv         string `mapstructure:"api_key_env"`
	APIKey            string `mapstructure:"api_key"`
	Model             string
	BaseURL           string `mapstructure:"base_url"`
	Timeout           time.Duration
	MaxToolRounds     int     `mapstructure:"max_tool_rounds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// LookupConfig configures the web lookup tool offered to the model.
type LookupConfig struct {
	Endpoint       string
	Timeout        time.Duration
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

// ClassifierConfig tunes the orchestration policy.
type ClassifierConfig struct {
	SuggestionThreshold float64 `mapstructure:"suggestion_threshold"`
	Concurrency         int
	RulesFile           string `mapstructure:"rules_file"`
}

// BackupConfig holds where package backups are written.
type BackupConfig struct {
	Dir string
}

// EvalConfig holds where the evaluation log lives.
type EvalConfig struct {
	Dir string
}

// UIConfig holds presentation settings.
type UIConfig struct {
	Timezone string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from .env, file and env. Env var overrides use prefix BOOKKEEPER_.
func Load() (Config, error) {
	// .env is optional; a missing file is the common case.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_tool_rounds", 5)
	v.SetDefault("llm.requests_per_second", 0)
	v.SetDefault("lookup.endpoint", "https://api.duckduckgo.com/")
	v.SetDefault("lookup.timeout", 5*time.Second)
	v.SetDefault("lookup.max_attempts", 4)
	v.SetDefault("lookup.initial_backoff", 500*time.Millisecond)
	v.SetDefault("classifier.suggestion_threshold", 0.5)
	v.SetDefault("classifier.concurrency", 4)
	v.SetDefault("classifier.rules_file", "")
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("eval.dir", "eval_data")
	v.SetDefault("ui.timezone", "")
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("BOOKKEEPER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "bookkeeper"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("BOOKKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// An explicitly named file that is missing is a user error; the default path is optional.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgPath != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects values the rest of the program cannot work with.
func (c Config) Validate() error {
	if c.Classifier.SuggestionThreshold < 0 || c.Classifier.SuggestionThreshold > 1 {
		return fmt.Errorf("config: classifier.suggestion_threshold must be within [0,1], got %v", c.Classifier.SuggestionThreshold)
	}
	if c.Classifier.Concurrency < 1 {
		return fmt.Errorf("config: classifier.concurrency must be at least 1")
	}
	if c.LLM.MaxToolRounds < 1 {
		return fmt.Errorf("config: llm.max_tool_rounds must be at least 1")
	}
	if c.Lookup.MaxAttempts < 1 {
		return fmt.Errorf("config: lookup.max_attempts must be at least 1")
	}
	return nil
}

// Location resolves ui.timezone, falling back to the local zone.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.UI.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.UI.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: load timezone %q: %w", c.UI.Timezone, err)
	}
	return loc, nil
}

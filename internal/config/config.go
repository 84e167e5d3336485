// Package config loads tentacool configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (TENTACOOL_*), including those loaded from .env
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .tentacool.yaml in current directory
//  2. ~/.config/tentacool/config.yaml
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Evaluator backends.
const (
	EvaluatorBackend   = "backend"
	EvaluatorAnthropic = "anthropic"
	EvaluatorOpenAI    = "openai"
)

// Config holds all tentacool configuration.
type Config struct {
	// Backend settings
	BaseURL   string `yaml:"base_url"`
	APIPrefix string `yaml:"api_prefix"`
	Timeout   string `yaml:"timeout"` // Go duration string, e.g. "120s"
	Retries   *int   `yaml:"retries"` // retry budget for idempotent GETs

	// Workflow settings
	Parallel  int   `yaml:"parallel"`   // catalog fetch and judge concurrency
	SelectAll *bool `yaml:"select_all"` // select every model once the catalog loads

	// Evaluator settings
	Evaluator      string `yaml:"evaluator"` // backend, anthropic, openai
	JudgeModel     string `yaml:"judge_model"`
	JudgeBaseURL   string `yaml:"judge_base_url"`
	JudgeAPIKey    string `yaml:"judge_api_key"`
	JudgeMaxTokens int64  `yaml:"judge_max_tokens"`
	CacheTTL       string `yaml:"cache_ttl"` // verdict cache TTL, "0" disables

	// Local commit journal (SQLite path); "off" disables
	Journal string `yaml:"journal"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed values (not from YAML, set after loading)
	TimeoutDuration  time.Duration `yaml:"-"`
	CacheTTLDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	selectAll := true
	retries := 3
	return &Config{
		BaseURL:        "https://pennh4i-tentacool.hf.space",
		APIPrefix:      "/api",
		Timeout:        "120s",
		Retries:        &retries,
		Parallel:       4,
		SelectAll:      &selectAll,
		Evaluator:      EvaluatorBackend,
		JudgeMaxTokens: 1024,
		CacheTTL:       "0",
		Journal:        DefaultJournalPath(),
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads configuration from .env, file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Defaults()

	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	mergeEnv(cfg)

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finalize parses durations and validates enumerations.
func (c *Config) finalize() error {
	var err error
	c.TimeoutDuration, err = parseDurationOrDisable(c.Timeout, 120*time.Second)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	c.CacheTTLDuration, err = parseDurationOrDisable(c.CacheTTL, 0)
	if err != nil {
		return fmt.Errorf("invalid cache TTL %q: %w", c.CacheTTL, err)
	}

	if err := c.UseEvaluator(c.Evaluator); err != nil {
		return err
	}
	if c.Parallel < 1 {
		c.Parallel = 1
	}
	if c.Retries == nil || *c.Retries < 0 {
		zero := 0
		c.Retries = &zero
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	return nil
}

// UseEvaluator selects the jailbreak classifier and fills in the judge
// model and API key defaults for it.
func (c *Config) UseEvaluator(name string) error {
	switch name {
	case EvaluatorBackend, EvaluatorAnthropic, EvaluatorOpenAI:
	default:
		return fmt.Errorf("unknown evaluator %q (supported: backend, anthropic, openai)", name)
	}
	c.Evaluator = name

	switch name {
	case EvaluatorAnthropic:
		if c.JudgeModel == "" {
			c.JudgeModel = "claude-haiku-4-5"
		}
		if c.JudgeAPIKey == "" {
			c.JudgeAPIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case EvaluatorOpenAI:
		if c.JudgeModel == "" {
			c.JudgeModel = "gpt-4o-mini"
		}
		if c.JudgeAPIKey == "" {
			c.JudgeAPIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	return nil
}

// RetryBudget returns how many times idempotent requests are retried.
func (c *Config) RetryBudget() int {
	if c.Retries == nil {
		return 0
	}
	return *c.Retries
}

// SelectAllByDefault reports whether every model starts out selected.
func (c *Config) SelectAllByDefault() bool {
	return c.SelectAll == nil || *c.SelectAll
}

// JournalEnabled reports whether commits are recorded locally.
func (c *Config) JournalEnabled() bool {
	switch c.Journal {
	case "", "off", "disable", "0":
		return false
	}
	return true
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	if data, err := os.ReadFile(".tentacool.yaml"); err == nil {
		return ".tentacool.yaml", data, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "tentacool", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// DefaultJournalPath returns the default location of the commit journal.
func DefaultJournalPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tentacool", "journal.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "tentacool", "journal.db")
	}
	return filepath.Join(os.TempDir(), "tentacool-journal.db")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.BaseURL != "" {
		cfg.BaseURL = file.BaseURL
	}
	if file.APIPrefix != "" {
		cfg.APIPrefix = file.APIPrefix
	}
	if file.Timeout != "" {
		cfg.Timeout = file.Timeout
	}
	if file.Retries != nil {
		v := *file.Retries
		cfg.Retries = &v
	}
	if file.Parallel > 0 {
		cfg.Parallel = file.Parallel
	}
	if file.SelectAll != nil {
		v := *file.SelectAll
		cfg.SelectAll = &v
	}
	if file.Evaluator != "" {
		cfg.Evaluator = file.Evaluator
	}
	if file.JudgeModel != "" {
		cfg.JudgeModel = file.JudgeModel
	}
	if file.JudgeBaseURL != "" {
		cfg.JudgeBaseURL = file.JudgeBaseURL
	}
	if file.JudgeAPIKey != "" {
		cfg.JudgeAPIKey = file.JudgeAPIKey
	}
	if file.JudgeMaxTokens > 0 {
		cfg.JudgeMaxTokens = file.JudgeMaxTokens
	}
	if file.CacheTTL != "" {
		cfg.CacheTTL = file.CacheTTL
	}
	if file.Journal != "" {
		cfg.Journal = file.Journal
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.LogFormat != "" {
		cfg.LogFormat = file.LogFormat
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("TENTACOOL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("TENTACOOL_API_PREFIX"); v != "" {
		cfg.APIPrefix = v
	}
	if v := os.Getenv("TENTACOOL_TIMEOUT"); v != "" {
		cfg.Timeout = v
	}
	if v := os.Getenv("TENTACOOL_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retries = &n
		}
	}
	if v := os.Getenv("TENTACOOL_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Parallel = n
		}
	}
	if v := os.Getenv("TENTACOOL_SELECT_ALL"); v != "" {
		b := v == "true" || v == "1"
		cfg.SelectAll = &b
	}
	if v := os.Getenv("TENTACOOL_EVALUATOR"); v != "" {
		cfg.Evaluator = v
	}
	if v := os.Getenv("TENTACOOL_JUDGE_MODEL"); v != "" {
		cfg.JudgeModel = v
	}
	if v := os.Getenv("TENTACOOL_JUDGE_BASE_URL"); v != "" {
		cfg.JudgeBaseURL = v
	}
	if v := os.Getenv("TENTACOOL_JUDGE_API_KEY"); v != "" {
		cfg.JudgeAPIKey = v
	}
	if v := os.Getenv("TENTACOOL_CACHE_TTL"); v != "" {
		cfg.CacheTTL = v
	}
	if v := os.Getenv("TENTACOOL_JOURNAL"); v != "" {
		cfg.Journal = v
	}
	if v := os.Getenv("TENTACOOL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TENTACOOL_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}

}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

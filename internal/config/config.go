// Package config loads and persists config.ini, the per-workspace settings
// shared by every stage.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

const (
	DefaultFile           = "config.ini"
	DefaultModel          = "claude-3-7-sonnet-20250219"
	DefaultMaxTokens      = 64000
	DefaultThinkingBudget = 20000
	DefaultTemperature    = 1.0

	// MinThinkingBudget is the smallest reasoning budget the API accepts.
	MinThinkingBudget = 1024

	apiKeyEnv = "ANTHROPIC_API_KEY"
)

// ErrNotFound means the config file has not been created yet.
var ErrNotFound = errors.New("config not found")

// Config is loaded once per stage run and passed read-only to every call
// that talks to the model.
type Config struct {
	APIKey         string
	Model          string
	Temperature    float64
	MaxTokens      int64
	ThinkingBudget int64
}

func Defaults() Config {
	return Config{
		Model:          DefaultModel,
		Temperature:    DefaultTemperature,
		MaxTokens:      DefaultMaxTokens,
		ThinkingBudget: DefaultThinkingBudget,
	}
}

// Load reads path. A .env next to the file is loaded first; when the file
// has no key, ANTHROPIC_API_KEY supplies it.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s (run `pathway-pipeline setup` or `pathway-pipeline extract` first)", ErrNotFound, path)
		}
		return Config{}, err
	}
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	f, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg := Defaults()
	api := f.Section("API")
	params := f.Section("Parameters")

	cfg.APIKey = strings.TrimSpace(api.Key("key").String())
	if model := strings.TrimSpace(api.Key("model").String()); model != "" {
		cfg.Model = model
	}
	if params.HasKey("temperature") {
		if cfg.Temperature, err = params.Key("temperature").Float64(); err != nil {
			return Config{}, fmt.Errorf("parse Parameters.temperature: %w", err)
		}
	}
	if params.HasKey("max_tokens") {
		if cfg.MaxTokens, err = params.Key("max_tokens").Int64(); err != nil {
			return Config{}, fmt.Errorf("parse Parameters.max_tokens: %w", err)
		}
	}
	if params.HasKey("thinking_budget") {
		if cfg.ThinkingBudget, err = params.Key("thinking_budget").Int64(); err != nil {
			return Config{}, fmt.Errorf("parse Parameters.thinking_budget: %w", err)
		}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv(apiKeyEnv))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("API key is empty: set [API] key in config.ini or ANTHROPIC_API_KEY")
	}
	if c.Model == "" {
		return errors.New("model is empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.ThinkingBudget != 0 {
		if c.ThinkingBudget < MinThinkingBudget {
			return fmt.Errorf("thinking_budget must be 0 or at least %d, got %d", MinThinkingBudget, c.ThinkingBudget)
		}
		if c.ThinkingBudget >= c.MaxTokens {
			return fmt.Errorf("thinking_budget (%d) must be below max_tokens (%d)", c.ThinkingBudget, c.MaxTokens)
		}
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be within [0, 1], got %v", c.Temperature)
	}
	return nil
}

// Save writes c to path in the config.ini layout.
func Save(path string, c Config) error {
	f := ini.Empty()
	api := f.Section("API")
	api.Key("key").SetValue(c.APIKey)
	api.Key("model").SetValue(c.Model)
	params := f.Section("Parameters")
	params.Key("temperature").SetValue(strconv.FormatFloat(c.Temperature, 'f', -1, 64))
	params.Key("max_tokens").SetValue(strconv.FormatInt(c.MaxTokens, 10))
	params.Key("thinking_budget").SetValue(strconv.FormatInt(c.ThinkingBudget, 10))

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return f.SaveTo(path)
}

// LoadOrCreate loads path, or on first run asks for the API key and writes
// a config with default parameters.
func LoadOrCreate(path string, askKey func() (string, error)) (Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Config{}, false, err
	}
	key, err := askKey()
	if err != nil {
		return Config{}, false, fmt.Errorf("read API key: %w", err)
	}
	cfg = Defaults()
	cfg.APIKey = strings.TrimSpace(key)
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv(apiKeyEnv))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("write %s: %w", path, err)
	}
	return cfg, true, nil
}

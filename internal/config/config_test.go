package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFile))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "setup")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	want := Config{
		APIKey:         "sk-test",
		Model:          "claude-sonnet-4-20250514",
		Temperature:    0.7,
		MaxTokens:      32000,
		ThinkingBudget: 8000,
	}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[API]")
	assert.Contains(t, string(raw), "[Parameters]")
	assert.Contains(t, string(raw), "thinking_budget")
}

func TestLoadAppliesDefaultsForMissingParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("[API]\nkey = sk-abc\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-abc", got.APIKey)
	assert.Equal(t, DefaultModel, got.Model)
	assert.EqualValues(t, DefaultMaxTokens, got.MaxTokens)
	assert.EqualValues(t, DefaultThinkingBudget, got.ThinkingBudget)
	assert.Equal(t, DefaultTemperature, got.Temperature)
}

func TestLoadFallsBackToEnvKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("[API]\nmodel = m\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", got.APIKey)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("[API]\nkey = k\n[Parameters]\nmax_tokens = lots\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestValidateThinkingBudget(t *testing.T) {
	cfg := Defaults()
	cfg.APIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.ThinkingBudget = 0
	require.NoError(t, cfg.Validate())

	cfg.ThinkingBudget = 512
	assert.Error(t, cfg.Validate())

	cfg.ThinkingBudget = cfg.MaxTokens
	assert.Error(t, cfg.Validate())
}

func TestLoadOrCreatePromptsOnce(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := filepath.Join(t.TempDir(), DefaultFile)
	asked := 0
	ask := func() (string, error) {
		asked++
		return "  sk-first-run  ", nil
	}

	cfg, created, err := LoadOrCreate(path, ask)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sk-first-run", cfg.APIKey)

	cfg, created, err = LoadOrCreate(path, ask)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "sk-first-run", cfg.APIKey)
	assert.Equal(t, 1, asked)
}

func TestLoadOrCreateRejectsEmptyKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := filepath.Join(t.TempDir(), DefaultFile)
	_, _, err := LoadOrCreate(path, func() (string, error) { return "", nil })
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/llmask/internal/llog"
)

func Test_ParserLimits_FillDefaults(t *testing.T) {
	l := ParserLimits{MaxItemsInRow: 10}
	filled := l.FillDefaults()

	assert.Equal(t, 10, filled.MaxItemsInRow)
	assert.Equal(t, defaultParserLimits.StepLexerFuel, filled.StepLexerFuel)
	assert.Equal(t, defaultParserLimits.MaxGrammarDepth, filled.MaxGrammarDepth)
}

func Test_Default(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Stop.HealingTokensEnabled)
	assert.False(t, cfg.Capabilities.FFTokens)
}

func Test_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llmask.toml")
	doc := `
log_level = "debug"

[limits]
max_items_in_row = 500

[capabilities]
ff_tokens = true
backtrack = true

[stop]
healing_tokens_enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Limits.MaxItemsInRow)
	assert.Equal(t, defaultParserLimits.StepLexerFuel, cfg.Limits.StepLexerFuel, "zero field filled from default")
	assert.True(t, cfg.Capabilities.FFTokens)
	assert.True(t, cfg.Capabilities.Backtrack)
	assert.False(t, cfg.Stop.HealingTokensEnabled)
	assert.Equal(t, llog.LevelDebug, cfg.LogLevelValue())
}

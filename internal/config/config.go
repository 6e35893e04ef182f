// Package config loads the host-facing settings a matcher is constructed
// with — parser resource limits, the inference engine's declared
// capabilities, logging level, and stop-controller defaults — from a TOML
// file, the same way the teacher's internal/tqw loads world data: plain
// structs with `toml:"..."` tags decoded via BurntSushi/toml.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/dekarrin/llmask/internal/llog"
)

// ParserLimits carries the resource bounds a host configures for a
// matcher, mirroring the original ParserLimits (parser/src/ffi.rs)
// field-for-field: a zero value for any field means "use the package
// default" rather than "no limit", exactly as the Rust default-fill
// behavior documents. parser.New fills and stores them, but no grammar
// engine, trie walk, or mid_process step reads them: none of these bounds
// is enforced, and exceeding one produces no error.
type ParserLimits struct {
	// MaxItemsInRow is the cap on Earley items in one chart column.
	MaxItemsInRow int `toml:"max_items_in_row"`

	// InitialLexerFuel and StepLexerFuel are the caps on derivative/closure
	// work for grammar construction and for a single TryAppend step.
	InitialLexerFuel int `toml:"initial_lexer_fuel"`
	StepLexerFuel     int `toml:"step_lexer_fuel"`

	// MaxGrammarDepth is the cap on a CFG's recursion depth. Recognizer
	// stacks do not use it; they are sized from the maximum token length.
	MaxGrammarDepth int `toml:"max_grammar_depth"`

	// StepMaxItems is the cap on trie DFS edges one compute_mask call may
	// visit.
	StepMaxItems int `toml:"step_max_items"`
}

// defaultParserLimits matches the original ParserLimits::default() values
// (parser/src/api.rs was not kept in the retrieved source, so these mirror
// the magnitudes ffi.rs's comments and llmatcher.rs's usage imply: generous
// enough that a well-formed grammar never hits them, tight enough to catch
// a runaway one quickly).
var defaultParserLimits = ParserLimits{
	MaxItemsInRow:     2_000,
	InitialLexerFuel:   1_000_000,
	StepLexerFuel:      500_000,
	MaxGrammarDepth:    2_000,
	StepMaxItems:       5_000_000,
}

// FillDefaults returns a copy of l with every zero field replaced by the
// package default, mirroring the teacher's Config.FillDefaults pattern
// (server/config.go) and the original "Default values will be used for all
// fields that are 0" contract on LlgConstraintInit.limits.
func (l ParserLimits) FillDefaults() ParserLimits {
	out := l
	if out.MaxItemsInRow == 0 {
		out.MaxItemsInRow = defaultParserLimits.MaxItemsInRow
	}
	if out.InitialLexerFuel == 0 {
		out.InitialLexerFuel = defaultParserLimits.InitialLexerFuel
	}
	if out.StepLexerFuel == 0 {
		out.StepLexerFuel = defaultParserLimits.StepLexerFuel
	}
	if out.MaxGrammarDepth == 0 {
		out.MaxGrammarDepth = defaultParserLimits.MaxGrammarDepth
	}
	if out.StepMaxItems == 0 {
		out.StepMaxItems = defaultParserLimits.StepMaxItems
	}
	return out
}

// InferenceCapabilities declares what the host inference engine driving a
// matcher is willing to do, mirroring the original InferenceCapabilities
// (toktrie) used by LlgConstraintInit.inference_capabilities(): whether it
// can accept more than one fast-forwarded token per step, whether it can
// backtrack already-emitted tokens, and the two capabilities the original
// always reports false for since they need engine-side support this module
// doesn't model.
type InferenceCapabilities struct {
	// FFTokens: the engine can append more than one token to its output in
	// a single step (a true fast-forward splice rather than one token at a
	// time).
	FFTokens bool `toml:"ff_tokens"`

	// Backtrack: the engine can remove already-emitted tokens from its
	// output (used when a forced-bytes re-tokenization disagrees with what
	// was already committed).
	Backtrack bool `toml:"backtrack"`

	// ConditionalFFTokens and Fork are carried for parity with the original
	// shape but are not exercised: this module never asks a host to
	// conditionally fast-forward, and has no multi-branch "fork" concept.
	ConditionalFFTokens bool `toml:"conditional_ff_tokens"`
	Fork                bool `toml:"fork"`
}

// Stop holds the stop-controller's configurable default (C6): whether
// healing tokens are enabled. Nothing in this module reads it when building
// a matcher or a stopctl.Controller.
type Stop struct {
	HealingTokensEnabled bool `toml:"healing_tokens_enabled"`
}

// Config is the top-level TOML document a host (cmd/llmaskctl, or an
// embedding application) loads once at startup.
type Config struct {
	Limits       ParserLimits          `toml:"limits"`
	Capabilities InferenceCapabilities `toml:"capabilities"`
	LogLevel     string                `toml:"log_level"`
	Stop         Stop                  `toml:"stop"`
}

// Default returns the zero-config baseline: generous limits, a conservative
// capability set (no fast-forward, no backtrack — the safest assumption for
// an engine the config hasn't described), warn-level logging.
func Default() Config {
	return Config{
		Limits:       ParserLimits{}.FillDefaults(),
		Capabilities: InferenceCapabilities{},
		LogLevel:     "warn",
		Stop:         Stop{HealingTokensEnabled: true},
	}
}

// Load decodes a TOML document from path into a Config, filling in defaults
// for zero-valued limits and an empty log level. Capabilities and Stop keep
// exactly what the file says (false when omitted).
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Limits = cfg.Limits.FillDefaults()
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}

// LogLevelValue parses cfg.LogLevel into an llog.Level, defaulting to
// LevelWarn for an empty or unrecognized value.
func (cfg Config) LogLevelValue() llog.Level {
	switch cfg.LogLevel {
	case "info":
		return llog.LevelInfo
	case "debug":
		return llog.LevelDebug
	case "trace":
		return llog.LevelTrace
	default:
		return llog.LevelWarn
	}
}

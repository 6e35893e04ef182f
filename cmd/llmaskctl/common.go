package main

import (
	"fmt"
	"os"

	"github.com/dekarrin/llmask/internal/config"
	"github.com/dekarrin/llmask/internal/grammar/fixtures"
	"github.com/dekarrin/llmask/internal/llog"
	"github.com/dekarrin/llmask/internal/matcher"
	"github.com/dekarrin/llmask/internal/parser"
	"github.com/dekarrin/llmask/internal/toktrie"
	"github.com/dekarrin/llmask/internal/vocab"
)

// session bundles everything built from a fixture and config file, ready to
// drive through a matcher — shared setup for mask, repl, and serve.
type session struct {
	vocab *vocab.Vocabulary
	trie  *toktrie.Trie
	m     *matcher.Matcher
	log   *llog.Logger
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newSession(fixturePath, configPath string) (*session, error) {
	doc, err := fixtures.Load(fixturePath)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	v, err := doc.BuildVocabulary()
	if err != nil {
		return nil, err
	}
	trie := toktrie.New(v)
	rec, err := doc.BuildRecognizer(trie.MaxTokenLen())
	if err != nil {
		return nil, err
	}

	log := llog.New(os.Stderr, cfg.LogLevelValue())
	tokenizer := parser.TokenizerFunc(trie.GreedyTokenize)
	tp := parser.New(trie, v, rec, tokenizer, cfg.Capabilities, cfg.Limits, log)

	return &session{
		vocab: v,
		trie:  trie,
		m:     matcher.New(tp, trie, v, log),
		log:   log,
	}, nil
}

// permittedTokenNames renders every token set in set as its decoded text,
// quoted, for use with util.MakeTextList's human-readable listing.
func permittedTokenNames(v *vocab.Vocabulary, set toktrie.TokenSet) []string {
	var names []string
	v.Each(func(t vocab.Token, b []byte) {
		if set.IsSet(t) {
			names = append(names, fmt.Sprintf("%q", string(b)))
		}
	})
	return names
}

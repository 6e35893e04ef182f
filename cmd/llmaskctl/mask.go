package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dekarrin/llmask/internal/util"
	"github.com/dekarrin/llmask/internal/vocab"
)

func newMaskCommand() *cobra.Command {
	var fixturePath, configPath, tokensFlag string
	var showBias, showBitmask bool

	cmd := &cobra.Command{
		Use:   "mask",
		Short: "Compute and print the sampling mask for a hand-fed token prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(fixturePath, configPath)
			if err != nil {
				return err
			}

			tokens, err := parseTokenList(tokensFlag)
			if err != nil {
				return err
			}
			if len(tokens) > 0 {
				if err := sess.m.ConsumeTokens(tokens); err != nil {
					return fmt.Errorf("consume prefix: %w", err)
				}
			}

			if showBias {
				bias, err := sess.m.ComputeLogitBias()
				if err != nil {
					return err
				}
				cmd.Printf("logit_bias: %v\n", bias)
				return nil
			}
			if showBitmask {
				words, err := sess.m.ComputeBitmask()
				if err != nil {
					return err
				}
				cmd.Printf("bitmask (%d words): %v\n", len(words), words)
				return nil
			}

			set, err := sess.m.ComputeMask()
			if err != nil {
				return err
			}
			names := permittedTokenNames(sess.vocab, set)
			cmd.Printf("%d of %d tokens permitted: %s\n", len(names), sess.vocab.Size(), util.MakeTextList(names))

			accepting, err := sess.m.IsAccepting()
			if err != nil {
				return err
			}
			cmd.Printf("accepting: %t\n", accepting)
			return nil
		},
	}

	cmd.Flags().StringVarP(&fixturePath, "fixture", "f", "fixtures/digits.yaml", "Path to a vocab/grammar fixture YAML document")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file (defaults baked in if omitted)")
	cmd.Flags().StringVarP(&tokensFlag, "tokens", "t", "", "Comma-separated token ids to commit before computing the mask")
	cmd.Flags().BoolVar(&showBias, "logit-bias", false, "Print the compute_logit_bias encoding instead of the token list")
	cmd.Flags().BoolVar(&showBitmask, "bitmask", false, "Print the compute_bitmask encoding instead of the token list")

	return cmd
}

// parseTokenList parses a comma-separated list of token ids, e.g. "1,4,2".
func parseTokenList(s string) ([]vocab.Token, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]vocab.Token, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q: %w", p, err)
		}
		out = append(out, vocab.Token(n))
	}
	return out, nil
}

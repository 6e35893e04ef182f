package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/dekarrin/llmask/internal/input"
	"github.com/dekarrin/llmask/internal/util"
	"github.com/dekarrin/llmask/internal/vocab"
)

// commandReader is the subset of input.DirectCommandReader and
// input.InteractiveCommandReader the repl loop needs.
type commandReader interface {
	ReadCommand() (string, error)
	AllowBlank(bool)
	Close() error
}

func newReplCommand() *cobra.Command {
	var fixturePath, configPath string
	var forceDirect bool

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactively step a matcher one token at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(fixturePath, configPath)
			if err != nil {
				return err
			}

			var reader commandReader
			if !forceDirect && isatty.IsTerminal(os.Stdin.Fd()) {
				icr, err := input.NewInteractiveReader()
				if err != nil {
					return fmt.Errorf("start readline: %w", err)
				}
				icr.SetPrompt("llmaskctl> ")
				reader = icr
			} else {
				reader = input.NewDirectReader(os.Stdin)
			}
			defer reader.Close()

			return runRepl(cmd, sess, reader)
		},
	}

	cmd.Flags().StringVarP(&fixturePath, "fixture", "f", "fixtures/digits.yaml", "Path to a vocab/grammar fixture YAML document")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file (defaults baked in if omitted)")
	cmd.Flags().BoolVarP(&forceDirect, "direct", "d", false, "Force reading directly from stdin instead of GNU readline")

	return cmd
}

// runRepl drives sess.m one command at a time. Commands:
//
//	push ID    commit token ID
//	back       roll back the last committed token
//	mask       print the current permitted-token list
//	text       print the decoded text committed so far
//	quit       exit
func runRepl(cmd *cobra.Command, sess *session, reader commandReader) error {
	usb := &util.UndoableStringBuilder{}
	history := []vocab.Token{}
	seenCommands := util.NewStringSet()

	cmd.Println("llmaskctl repl — type \"help\" for commands")

	for {
		line, err := reader.ReadCommand()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		seenCommands.Add(fields[0])

		switch fields[0] {
		case "help":
			cmd.Println("commands: push ID | back | mask | text | quit")
		case "quit", "exit":
			cmd.Printf("commands used this session: %s\n", seenCommands.StringOrdered())
			return nil
		case "mask":
			set, err := sess.m.ComputeMask()
			if err != nil {
				cmd.Printf("error: %s\n", err)
				continue
			}
			names := permittedTokenNames(sess.vocab, set)
			cmd.Printf("permitted: %s\n", util.MakeTextList(names))
		case "text":
			cmd.Printf("%q\n", usb.String())
		case "back":
			if len(history) == 0 {
				cmd.Println("nothing to roll back")
				continue
			}
			before := usb.String()
			if err := sess.m.Rollback(1); err != nil {
				cmd.Printf("error: %s\n", err)
				continue
			}
			usb.Undo()
			history = history[:len(history)-1]
			printDiff(cmd, before, usb.String())
		case "push":
			if len(fields) != 2 {
				cmd.Println("usage: push ID")
				continue
			}
			n, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				cmd.Printf("invalid token id %q\n", fields[1])
				continue
			}
			tok := vocab.Token(n)

			before := usb.String()
			if err := sess.m.ConsumeTokens([]vocab.Token{tok}); err != nil {
				cmd.Printf("rejected: %s\n", err)
				continue
			}
			usb.WriteString(string(sess.vocab.Bytes(tok)))
			history = append(history, tok)
			printDiff(cmd, before, usb.String())

			if sess.m.IsStopped() {
				cmd.Printf("stopped: %s\n", sess.m.StopReason())
			}
		default:
			cmd.Printf("unknown command %q; type \"help\"\n", fields[0])
		}
	}
}

func printDiff(cmd *cobra.Command, before, after string) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil || text == "" {
		cmd.Printf("-> %q\n", after)
		return
	}
	cmd.Print(text)
}

/*
Llmaskctl is a development tool for exercising a grammar-constrained token
matcher against a toy vocabulary and grammar fixture, outside of any real
inference engine.

Usage:

	llmaskctl [command] [flags]

The commands are:

	mask    compute and print the sampling mask for a hand-fed token prefix
	repl    interactively step a matcher one token at a time
	serve   run a dev-only HTTP introspection server over a fixture

Run "llmaskctl [command] --help" for flags specific to each command. This
tool is not the production FFI host boundary a real inference engine would
embed this module through; it exists to make the matcher's behavior
inspectable by hand.
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dekarrin/llmask/internal/version"
)

func main() {
	exitCode := 0

	defer func() {
		if panicErr := recover(); panicErr != nil {
			panic(fmt.Sprintf("unrecoverable panic occurred: %v", panicErr))
		}
		os.Exit(exitCode)
	}()

	root := &cobra.Command{
		Use:           "llmaskctl",
		Short:         "Exercise a grammar-constrained token matcher against a toy fixture",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Current,
	}

	root.AddCommand(newMaskCommand())
	root.AddCommand(newReplCommand())
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
		exitCode = 1
	}
}

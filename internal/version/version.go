// Package version contains information on the current version of the
// module. It is split from the main program for easy use.
package version

// Current is the string representing the current version of llmask.
const Current = "0.1.0"

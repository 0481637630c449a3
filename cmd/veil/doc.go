// Package veil provides the command-line interface for the veil tool.
// It configures subcommands (anonymize, replace, health, etc.), parses flags,
// and executes the selected command.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/veil-pii/veil/cmd/veil"
//	func main() { veil.Execute() }
package veil

// Package files holds the small file-system helpers shared by the CLI and
// the engine: output naming, atomic writes and .gitignore maintenance.
package files

package veil

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
)

// newProgress returns a callback that redraws a single progress line on w.
func newProgress(w io.Writer, noColor bool) func(current, total int, path string) {
	if noColor {
		return func(current, total int, _ string) {
			pct := float64(current) / float64(total) * 100
			fmt.Fprintf(w, "\r[%d/%d] %.0f%%", current, total, pct)
		}
	}
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	return func(current, total int, _ string) {
		fmt.Fprintf(w, "\r%s %d/%d", bar.ViewAs(float64(current)/float64(total)), current, total)
	}
}

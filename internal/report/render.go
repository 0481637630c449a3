// Package report renders run results for people (substitution listings and
// a summary table) and for machines (JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/veil-pii/veil/internal/engine"
	"github.com/veil-pii/veil/internal/types"
)

// NoChanges is printed when a text produced no substitutions.
const NoChanges = "No replacements or anonymizations were made."

type PrintOptions struct {
	NoColor bool
	// Root is trimmed from paths in the table when set.
	Root string
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	headStyle = lipgloss.NewStyle().Bold(true)
)

// PrintSubstitutions lists records as "- 'x' was replaced to 'y' (Type: T)".
func PrintSubstitutions(w io.Writer, records []types.SubstitutionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, NoChanges)
		return
	}
	for _, r := range records {
		prefix := "- "
		if r.Field != "" {
			prefix = "- " + r.Field + ": "
		}
		fmt.Fprintf(w, "%s'%s' was %s to '%s' (Type: %s)\n", prefix, r.OriginalText, pastTense(r.Operator), r.ResultText, r.EntityType)
	}
}

// pastTense names what happened to a value. Operators echoed back by the
// anonymizer service that veil does not know are printed as-is.
func pastTense(op types.Operator) string {
	switch op {
	case types.OpReplace:
		return "replaced"
	case types.OpMask:
		return "masked"
	default:
		return string(op)
	}
}

// PrintSummary writes one table row per file followed by totals.
func PrintSummary(w io.Writer, rep engine.Report, opts PrintOptions) error {
	style := func(s lipgloss.Style, v string) string {
		if opts.NoColor {
			return v
		}
		return s.Render(v)
	}

	if len(rep.Results) == 0 {
		fmt.Fprintln(w, "No files matched.")
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("File", "Status", "Substitutions", "Malformed", "Duration", "Error")
		for _, r := range rep.Results {
			status := style(okStyle, "ok")
			switch {
			case r.Skipped:
				status = style(skipStyle, "cached")
			case !r.Success:
				status = style(failStyle, "failed")
			}
			if err := table.Append([]string{
				displayPath(r.Path, opts.Root),
				status,
				strconv.Itoa(r.Substitutions),
				strconv.Itoa(r.Malformed),
				r.Duration.Round(time.Millisecond).String(),
				r.Error,
			}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %d succeeded, %d failed, %d unchanged\n",
		style(headStyle, "Files:"), rep.Succeeded, rep.Failed, rep.Skipped)
	fmt.Fprintf(w, "%s %d", style(headStyle, "Substitutions:"), rep.Substitutions)
	if names := rep.EntityTypes(); len(names) > 0 {
		fmt.Fprint(w, " (")
		for i, t := range names {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprintf(w, "%s: %d", t, rep.EntityCounts[t])
		}
		fmt.Fprint(w, ")")
	}
	fmt.Fprintln(w)
	if rep.Malformed > 0 {
		fmt.Fprintf(w, "%s %d spans discarded\n", style(headStyle, "Malformed:"), rep.Malformed)
	}
	fmt.Fprintf(w, "%s %.2fs\n", style(headStyle, "Duration:"), rep.Duration.Seconds())
	return nil
}

// PrintFailures lists failed files with their reasons, sorted by path.
func PrintFailures(w io.Writer, rep engine.Report) {
	fails := rep.Failures()
	sort.Slice(fails, func(i, j int) bool { return fails[i].Path < fails[j].Path })
	for _, f := range fails {
		fmt.Fprintf(w, "failed: %s: %s\n", f.Path, f.Error)
	}
}

// WriteJSON encodes rep with two-space indentation.
func WriteJSON(w io.Writer, rep engine.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func displayPath(p, root string) string {
	if root == "" {
		return p
	}
	if rel, err := filepath.Rel(root, p); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return p
}

package veil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/veil-pii/veil/internal/audit"
)

var (
	flagHistoryLimit  int
	flagHistoryDelete int
)

func init() {
	cmd := &cobra.Command{
		Use:   "history [dir]",
		Short: "Show past runs from the audit log",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	rootCmd.AddCommand(cmd)
	cmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "show at most this many runs (0 = all)")
	cmd.Flags().IntVar(&flagHistoryDelete, "delete", -1, "delete the run at this index (0 = newest)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return usageError("%s: %v", dir, err)
	}
	al := audit.NewAuditLog(abs)
	out := cmd.OutOrStdout()

	if flagHistoryDelete >= 0 {
		if err := al.DeleteRecord(flagHistoryDelete); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted run %d from %s\n", flagHistoryDelete, al.Path())
		return nil
	}

	records, err := al.LoadHistory()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(out, "No runs recorded yet.")
			return nil
		}
		return err
	}
	if flagHistoryLimit > 0 && len(records) > flagHistoryLimit {
		records = records[:flagHistoryLimit]
	}

	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	tw := tablewriter.NewWriter(out)
	tw.Header("#", "When", "Run", "Mode", "Strategy", "OK", "Failed", "Cached", "Substitutions")
	for i, r := range records {
		id := r.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		if err := tw.Append([]string{
			strconv.Itoa(i),
			r.Timestamp.Local().Format("2006-01-02 15:04"),
			id,
			r.Mode,
			r.Strategy,
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Substitutions),
		}); err != nil {
			return err
		}
	}
	return tw.Render()
}

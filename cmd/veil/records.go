package veil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/veil-pii/veil/internal/store"
)

var (
	flagRecordsDB         string
	flagRecordsType       string
	flagRecordsConfidence float64
)

func init() {
	recCmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and edit the detected-entity database",
	}
	rootCmd.AddCommand(recCmd)
	recCmd.PersistentFlags().StringVar(&flagRecordsDB, "db", "", "entity database path (default: record_db from config)")

	recCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(s *store.Store) error {
				ents, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				return printEntities(cmd, ents)
			})
		},
	})

	recCmd.AddCommand(&cobra.Command{
		Use:   "get <text>",
		Short: "Show the first entity recorded for text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.Store) error {
				e, err := s.Get(cmd.Context(), args[0])
				if errors.Is(err, store.ErrNotFound) {
					return &exitError{code: 1, err: fmt.Errorf("%q: %w", args[0], err)}
				}
				if err != nil {
					return err
				}
				return printEntities(cmd, []store.Entity{e})
			})
		},
	})

	updateCmd := &cobra.Command{
		Use:   "update <text>",
		Short: "Change the entity type or confidence of recorded entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ch store.Changes
			if cmd.Flags().Changed("type") {
				ch.EntityType = &flagRecordsType
			}
			if cmd.Flags().Changed("confidence") {
				if flagRecordsConfidence < 0 || flagRecordsConfidence > 1 {
					return usageError("--confidence must be within [0,1]")
				}
				ch.Confidence = &flagRecordsConfidence
			}
			if ch.EntityType == nil && ch.Confidence == nil {
				return usageError("nothing to update: pass --type or --confidence")
			}
			return withStore(func(s *store.Store) error {
				n, err := s.Update(cmd.Context(), args[0], ch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %d record(s)\n", n)
				return nil
			})
		},
	}
	updateCmd.Flags().StringVar(&flagRecordsType, "type", "", "new entity type")
	updateCmd.Flags().Float64Var(&flagRecordsConfidence, "confidence", 0, "new confidence score")
	recCmd.AddCommand(updateCmd)

	recCmd.AddCommand(&cobra.Command{
		Use:   "delete <text>",
		Short: "Delete every entity recorded for text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.Store) error {
				n, err := s.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s)\n", n)
				return nil
			})
		},
	})
}

func withStore(fn func(*store.Store) error) error {
	path := flagRecordsDB
	if path == "" {
		fc, err := loadConfig(".")
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		path = pickString("", fc.RecordDB, "")
	}
	if path == "" {
		return usageError("no database: pass --db or set record_db")
	}
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func printEntities(cmd *cobra.Command, ents []store.Entity) error {
	out := cmd.OutOrStdout()
	if flagJSON {
		if ents == nil {
			ents = []store.Entity{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ents)
	}
	if len(ents) == 0 {
		fmt.Fprintln(out, "No records.")
		return nil
	}
	tw := tablewriter.NewWriter(out)
	tw.Header("ID", "Text", "Type", "Confidence", "Source", "Recorded")
	for _, e := range ents {
		if err := tw.Append([]string{
			strconv.FormatInt(e.ID, 10),
			e.Text,
			e.EntityType,
			strconv.FormatFloat(e.Confidence, 'f', 2, 64),
			e.Source,
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
		}); err != nil {
			return err
		}
	}
	return tw.Render()
}


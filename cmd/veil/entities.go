package veil

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/veil-pii/veil/internal/analyzer"
	"github.com/veil-pii/veil/internal/policy"
	"github.com/veil-pii/veil/internal/types"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "entities",
		Short: "List entity types and the policy applied to each",
		Args:  cobra.NoArgs,
		RunE:  runEntities,
	})
}

type entityRow struct {
	Entity   string        `json:"entity"`
	Detected bool          `json:"detected_by_default"`
	Policy   policy.Policy `json:"policy"`
}

func runEntities(cmd *cobra.Command, _ []string) error {
	wd, _ := os.Getwd()
	fc, err := loadConfig(wd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	table := fc.PolicyTable()
	defaults := map[string]bool{}
	for _, e := range analyzer.DefaultEntities {
		defaults[e] = true
	}

	var rows []entityRow
	for _, e := range table.EntityTypes() {
		if e == "DEFAULT" {
			continue
		}
		rows = append(rows, entityRow{Entity: e, Detected: defaults[e], Policy: table.PolicyFor(e)})
	}
	rows = append(rows, entityRow{Entity: "DEFAULT", Policy: table.PolicyFor("DEFAULT")})

	out := cmd.OutOrStdout()
	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	tw := tablewriter.NewWriter(out)
	tw.Header("Entity", "Default", "Operator", "Result")
	for _, r := range rows {
		detected := ""
		if r.Detected {
			detected = "yes"
		}
		if err := tw.Append([]string{r.Entity, detected, string(r.Policy.Operator), describePolicy(r.Policy)}); err != nil {
			return err
		}
	}
	return tw.Render()
}

func describePolicy(p policy.Policy) string {
	if p.Operator == types.OpMask {
		side := "start"
		if p.FromEnd {
			side = "end"
		}
		return fmt.Sprintf("%d x %q from %s", p.CharsToMask, p.MaskingChar, side)
	}
	return p.NewValue
}

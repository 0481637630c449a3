// Package audit keeps an append-only JSONL history of runs. Original PII is
// never written; sampled substitutions carry "[REDACTED]" in its place.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/veil-pii/veil/internal/types"
)

const (
	redacted   = "[REDACTED]"
	maxSamples = 10
)

// RunRecord summarizes one anonymize or replace run.
type RunRecord struct {
	Timestamp     time.Time                  `json:"timestamp"`
	RunID         string                     `json:"run_id"`
	Root          string                     `json:"root"`
	Mode          string                     `json:"mode"`
	Strategy      string                     `json:"strategy"`
	Files         int                        `json:"files"`
	Succeeded     int                        `json:"succeeded"`
	Failed        int                        `json:"failed"`
	Skipped       int                        `json:"skipped"`
	Substitutions int                        `json:"substitutions"`
	Malformed     int                        `json:"malformed"`
	EntityCounts  map[string]int             `json:"entity_counts"`
	Duration      string                     `json:"duration"`
	Failures      []FailureSummary           `json:"failures,omitempty"`
	Samples       []types.SubstitutionRecord `json:"samples,omitempty"`
}

// FailureSummary names a file that could not be processed.
type FailureSummary struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// AuditLog is the history file for one root.
type AuditLog struct {
	logPath string
}

// NewAuditLog returns the log for root, stored under .git when present.
func NewAuditLog(root string) *AuditLog {
	gitDir := filepath.Join(root, ".git")
	logPath := filepath.Join(root, ".veil_audit.jsonl")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		logPath = filepath.Join(gitDir, "veil_audit.jsonl")
	}
	return &AuditLog{logPath: logPath}
}

// Path is the log file location.
func (a *AuditLog) Path() string { return a.logPath }

// LoadHistory returns all records, newest first. Undecodable lines are
// skipped.
func (a *AuditLog) LoadHistory() ([]RunRecord, error) {
	f, err := os.Open(a.logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var records []RunRecord
	decoder := json.NewDecoder(f)
	for decoder.More() {
		var record RunRecord
		if err := decoder.Decode(&record); err != nil {
			continue
		}
		records = append(records, record)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// LogRun appends record.
func (a *AuditLog) LogRun(record RunRecord) error {
	if record.RunID == "" {
		record.RunID = uuid.NewString()
	}
	record.Samples = redactOriginals(record.Samples)

	// owner-only: the log names files that contained PII
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(record); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// DeleteRecord removes the record at index in LoadHistory order.
func (a *AuditLog) DeleteRecord(index int) error {
	records, err := a.LoadHistory()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(records) {
		return fmt.Errorf("invalid index: %d", index)
	}
	records = append(records[:index], records[index+1:]...)

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to write audit record: %w", err)
		}
	}
	return nil
}

// CreateRunRecord builds a record from per-file results.
func CreateRunRecord(runID, root, mode, strategy string, results []types.BatchResult, duration time.Duration) RunRecord {
	rec := RunRecord{
		Timestamp:    time.Now(),
		RunID:        runID,
		Root:         root,
		Mode:         mode,
		Strategy:     strategy,
		Files:        len(results),
		EntityCounts: map[string]int{},
		Duration:     duration.String(),
	}
	for _, r := range results {
		switch {
		case r.Skipped:
			rec.Skipped++
		case r.Success:
			rec.Succeeded++
		default:
			rec.Failed++
			rec.Failures = append(rec.Failures, FailureSummary{Path: r.Path, Error: r.Error})
		}
		rec.Substitutions += r.Substitutions
		rec.Malformed += r.Malformed
		for _, s := range r.Records {
			rec.EntityCounts[s.EntityType]++
			if len(rec.Samples) < maxSamples {
				rec.Samples = append(rec.Samples, s)
			}
		}
	}
	sort.Slice(rec.Failures, func(i, j int) bool { return rec.Failures[i].Path < rec.Failures[j].Path })
	rec.Samples = redactOriginals(rec.Samples)
	return rec
}

// redactOriginals returns a copy of recs with OriginalText replaced.
func redactOriginals(recs []types.SubstitutionRecord) []types.SubstitutionRecord {
	if len(recs) == 0 {
		return recs
	}
	out := make([]types.SubstitutionRecord, len(recs))
	for i, r := range recs {
		out[i] = r
		if r.OriginalText != "" {
			out[i].OriginalText = redacted
		}
	}
	return out
}

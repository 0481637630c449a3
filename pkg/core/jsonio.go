package core

import (
	"encoding/json"
	"io"
)

// MarshalReport pretty-prints a run report as JSON for humans or pipelines.
func MarshalReport(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// MarshalRecords pretty-prints substitution records as JSON.
func MarshalRecords(w io.Writer, recs []Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// UnmarshalRecords decodes records JSON, useful for ingestion tests.
func UnmarshalRecords(r io.Reader) ([]Record, error) {
	var recs []Record
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Package structured redacts the string values of YAML and JSON documents.
// Keys, non-string scalars and key order are left exactly as they were.
package structured

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/veil-pii/veil/internal/pipeline"
	"github.com/veil-pii/veil/internal/types"
)

// Format is the serialization of a structured document.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// FormatFor picks the format from a file extension. Anything that is not
// .json is treated as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return YAML
}

// Redact applies r to every string value in data and re-encodes the result
// in the same format. Records carry the dotted path of their value in Field.
func Redact(ctx context.Context, data []byte, format Format, r pipeline.Redactor) ([]byte, types.Outcome, error) {
	docs, err := decode(data)
	if err != nil {
		return nil, types.Outcome{}, err
	}
	if len(docs) == 0 {
		return data, types.Outcome{Text: string(data)}, nil
	}

	w := walker{ctx: ctx, r: r}
	for _, d := range docs {
		if err := w.walk(d, nil); err != nil {
			return nil, types.Outcome{}, err
		}
	}

	var out []byte
	if format == JSON {
		out, err = encodeJSON(docs)
	} else {
		out, err = encodeYAML(docs)
	}
	if err != nil {
		return nil, types.Outcome{}, err
	}
	w.total.Text = string(out)
	return out, w.total, nil
}

func decode(data []byte) ([]*yaml.Node, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var docs []*yaml.Node
	for {
		var n yaml.Node
		err := dec.Decode(&n)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}
		docs = append(docs, &n)
	}
}

type walker struct {
	ctx   context.Context
	r     pipeline.Redactor
	total types.Outcome
}

func (w *walker) walk(n *yaml.Node, path []string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := w.walk(c, path); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if err := w.walk(n.Content[i+1], append(path, key)); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for i, c := range n.Content {
			if err := w.walk(c, append(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if n.ShortTag() != "!!str" || n.Value == "" {
			return nil
		}
		out, err := w.r.Redact(w.ctx, n.Value)
		if err != nil {
			return fmt.Errorf("value %s: %w", strings.Join(path, "."), err)
		}
		field := strings.Join(path, ".")
		for i := range out.Records {
			out.Records[i].Field = field
		}
		w.total.Merge(out)
		if out.Text != n.Value {
			n.Value = out.Text
			// keep it a string even if the new value reads as a number or bool
			n.Tag = "!!str"
		}
	}
	return nil
}

func encodeYAML(docs []*yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeJSON(docs []*yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	for _, d := range docs {
		var raw bytes.Buffer
		if err := writeJSON(&raw, d); err != nil {
			return nil, err
		}
		if err := json.Indent(&buf, raw.Bytes(), "", "  "); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// writeJSON emits n as compact JSON, preserving mapping order.
func writeJSON(w *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			w.WriteString("null")
			return nil
		}
		return writeJSON(w, n.Content[0])
	case yaml.AliasNode:
		return writeJSON(w, n.Alias)
	case yaml.MappingNode:
		w.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				w.WriteByte(',')
			}
			writeString(w, n.Content[i].Value)
			w.WriteByte(':')
			if err := writeJSON(w, n.Content[i+1]); err != nil {
				return err
			}
		}
		w.WriteByte('}')
	case yaml.SequenceNode:
		w.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := writeJSON(w, c); err != nil {
				return err
			}
		}
		w.WriteByte(']')
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			w.WriteString("null")
		case "!!bool", "!!int", "!!float":
			if !json.Valid([]byte(n.Value)) {
				writeString(w, n.Value)
				return nil
			}
			w.WriteString(n.Value)
		default:
			writeString(w, n.Value)
		}
	default:
		return fmt.Errorf("encode json: unsupported node kind %d", n.Kind)
	}
	return nil
}

func writeString(w *bytes.Buffer, s string) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline
	w.Truncate(w.Len() - 1)
}

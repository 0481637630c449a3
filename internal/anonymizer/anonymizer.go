// Package anonymizer is the redaction client for a Presidio-compatible
// /anonymize endpoint.
package anonymizer

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/veil-pii/veil/internal/policy"
	"github.com/veil-pii/veil/internal/presidio"
	"github.com/veil-pii/veil/internal/types"
)

// ErrUnavailable is matched by every failed Anonymize or Health call.
var ErrUnavailable = types.ErrDependencyUnavailable

// Client calls the anonymizer service.
type Client struct {
	api *presidio.Client
}

// New wraps api.
func New(api *presidio.Client) *Client {
	return &Client{api: api}
}

type analyzerResult struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	EntityType string  `json:"entity_type"`
	Score      float64 `json:"score"`
}

type anonymizeRequest struct {
	Text            string                   `json:"text"`
	AnalyzerResults []analyzerResult         `json:"analyzer_results"`
	Anonymizers     map[string]policy.Policy `json:"anonymizers"`
	Language        string                   `json:"language,omitempty"`
}

type item struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	EntityType string `json:"entity_type"`
	Operator   string `json:"operator"`
	Text       string `json:"text"`
}

type anonymizeResponse struct {
	Text  string `json:"text"`
	Items []item `json:"items"`
}

// Anonymize asks the service to transform spans in text according to
// anonymizers. spans carry byte offsets; they are converted to code points
// on the wire.
//
// The service reports item offsets against its output, so each item is paired
// with the input span of the same entity type in left-to-right order to
// recover the original offsets and text. Records come back in descending
// offset order to match the local engine.
func (c *Client) Anonymize(ctx context.Context, text string, spans []types.Span, anonymizers map[string]policy.Policy, language string) (string, []types.SubstitutionRecord, error) {
	if text == "" || len(spans) == 0 {
		return text, []types.SubstitutionRecord{}, nil
	}
	wire := types.ByteToChar(text, spans)
	req := anonymizeRequest{
		Text:            text,
		AnalyzerResults: make([]analyzerResult, len(wire)),
		Anonymizers:     anonymizers,
		Language:        language,
	}
	for i, sp := range wire {
		req.AnalyzerResults[i] = analyzerResult{Start: sp.Start, End: sp.End, EntityType: sp.EntityType, Score: sp.Score}
	}

	var resp anonymizeResponse
	if err := c.api.PostJSON(ctx, "/anonymize", req, &resp); err != nil {
		return "", nil, fmt.Errorf("anonymize: %w", err)
	}

	records := pairItems(text, resp.Text, spans, resp.Items)
	log.Debug().Int("items", len(resp.Items)).Int("records", len(records)).Msg("anonymize complete")
	return resp.Text, records, nil
}

// Health probes the service.
func (c *Client) Health(ctx context.Context) error {
	return c.api.Health(ctx)
}

func pairItems(input, output string, spans []types.Span, items []item) []types.SubstitutionRecord {
	queues := map[string][]types.Span{}
	ordered := append([]types.Span(nil), spans...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })
	for _, sp := range ordered {
		if sp.ValidIn(len(input)) {
			queues[sp.EntityType] = append(queues[sp.EntityType], sp)
		}
	}

	outItems := make([]types.Span, len(items))
	for i, it := range items {
		outItems[i] = types.Span{Start: it.Start, End: it.End, EntityType: it.EntityType}
	}
	outItems = types.CharToByte(output, outItems)

	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return outItems[idx[a]].Start < outItems[idx[b]].Start })

	records := make([]types.SubstitutionRecord, 0, len(items))
	for _, i := range idx {
		it := items[i]
		rec := types.SubstitutionRecord{
			EntityType: it.EntityType,
			Operator:   types.Operator(it.Operator),
			ResultText: it.Text,
		}
		if q := queues[it.EntityType]; len(q) > 0 {
			sp := q[0]
			queues[it.EntityType] = q[1:]
			rec.Start, rec.End = sp.Start, sp.End
			rec.OriginalText = input[sp.Start:sp.End]
		} else {
			o := outItems[i]
			rec.Start, rec.End = o.Start, o.End
			if o.ValidIn(len(input)) {
				rec.OriginalText = input[o.Start:o.End]
			}
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Start != records[j].Start {
			return records[i].Start > records[j].Start
		}
		return records[i].End > records[j].End
	})
	return records
}

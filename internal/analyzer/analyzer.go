// Package analyzer is the detection client: it sends text to a
// Presidio-compatible /analyze endpoint and returns the PII spans found,
// converted to byte offsets.
package analyzer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/veil-pii/veil/internal/policy"
	"github.com/veil-pii/veil/internal/presidio"
	"github.com/veil-pii/veil/internal/types"
)

// DefaultEntities is the allow-list used when none is configured.
var DefaultEntities = []string{
	"PERSON", "LOCATION", "EMAIL_ADDRESS", "PHONE_NUMBER",
	"DATE_TIME", "NRP", "IBAN_CODE", "CREDIT_CARD",
}

const (
	// DefaultScoreThreshold drops low-confidence results server side.
	DefaultScoreThreshold = 0.7
	// CustomScore is the confidence attached to the custom-word recognizer.
	CustomScore = 0.85
)

// ErrUnavailable is matched by every failed Detect or Health call.
var ErrUnavailable = types.ErrDependencyUnavailable

// Options tunes the analyze request.
type Options struct {
	ScoreThreshold        float64
	CorrelationID         string
	ReturnDecisionProcess bool
}

// Client calls the analyzer service.
type Client struct {
	api  *presidio.Client
	opts Options
}

// New wraps api. A zero ScoreThreshold becomes DefaultScoreThreshold and an
// empty CorrelationID gets a fresh UUID shared by every request of this
// client.
func New(api *presidio.Client, opts Options) *Client {
	if opts.ScoreThreshold <= 0 {
		opts.ScoreThreshold = DefaultScoreThreshold
	}
	if opts.CorrelationID == "" {
		opts.CorrelationID = uuid.NewString()
	}
	return &Client{api: api, opts: opts}
}

// CorrelationID identifies this client's requests in the service logs.
func (c *Client) CorrelationID() string { return c.opts.CorrelationID }

type analyzeRequest struct {
	Text                  string            `json:"text"`
	Language              string            `json:"language"`
	Entities              []string          `json:"entities,omitempty"`
	ScoreThreshold        float64           `json:"score_threshold"`
	CorrelationID         string            `json:"correlation_id,omitempty"`
	ReturnDecisionProcess bool              `json:"return_decision_process"`
	AdHocRecognizers      []adHocRecognizer `json:"ad_hoc_recognizers,omitempty"`
}

type adHocRecognizer struct {
	Name              string    `json:"name"`
	SupportedLanguage string    `json:"supported_language"`
	SupportedEntity   string    `json:"supported_entity"`
	Patterns          []pattern `json:"patterns"`
}

type pattern struct {
	Name  string  `json:"name"`
	Regex string  `json:"regex"`
	Score float64 `json:"score"`
}

type recognizerResult struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	EntityType string  `json:"entity_type"`
	Score      float64 `json:"score"`
	Metadata   *struct {
		RecognizerName string `json:"recognizer_name"`
	} `json:"recognition_metadata,omitempty"`
}

// Detect returns the PII spans found in text. entities is the allow-list;
// an empty list means DefaultEntities. A non-zero custom entity adds an ad
// hoc pattern recognizer and its label to the allow-list.
//
// Empty text returns no spans without calling the service. Any failure is
// returned as an error matching ErrUnavailable, so callers can tell an outage
// apart from "nothing found".
func (c *Client) Detect(ctx context.Context, text, language string, entities []string, custom policy.CustomEntity) ([]types.Span, error) {
	if text == "" {
		return []types.Span{}, nil
	}
	allow := allowList(entities, custom)
	req := analyzeRequest{
		Text:                  text,
		Language:              language,
		Entities:              allow,
		ScoreThreshold:        c.opts.ScoreThreshold,
		CorrelationID:         c.opts.CorrelationID,
		ReturnDecisionProcess: c.opts.ReturnDecisionProcess,
	}
	if !custom.IsZero() {
		req.AdHocRecognizers = []adHocRecognizer{{
			Name:              "Custom pattern for " + custom.Word,
			SupportedLanguage: language,
			SupportedEntity:   custom.Label,
			Patterns: []pattern{{
				Name:  "custom word",
				Regex: custom.Pattern(),
				Score: CustomScore,
			}},
		}}
	}

	var results []recognizerResult
	if err := c.api.PostJSON(ctx, "/analyze", req, &results); err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	allowed := make(map[string]bool, len(allow))
	for _, e := range allow {
		allowed[e] = true
	}
	spans := make([]types.Span, 0, len(results))
	for _, r := range results {
		if !allowed[r.EntityType] {
			log.Debug().Str("entity", r.EntityType).Msg("analyzer returned entity outside allow-list; dropped")
			continue
		}
		sp := types.Span{Start: r.Start, End: r.End, EntityType: r.EntityType, Score: r.Score}
		if r.Metadata != nil {
			sp.RecognizerName = r.Metadata.RecognizerName
		}
		spans = append(spans, sp)
	}
	log.Debug().Int("spans", len(spans)).Str("correlation_id", c.opts.CorrelationID).Msg("analyze complete")
	return types.CharToByte(text, spans), nil
}

// Health probes the service.
func (c *Client) Health(ctx context.Context) error {
	return c.api.Health(ctx)
}

func allowList(entities []string, custom policy.CustomEntity) []string {
	if len(entities) == 0 {
		entities = DefaultEntities
	}
	out := make([]string, 0, len(entities)+1)
	seen := make(map[string]bool, len(entities)+1)
	for _, e := range entities {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	if !custom.IsZero() && !seen[custom.Label] {
		out = append(out, custom.Label)
	}
	return out
}

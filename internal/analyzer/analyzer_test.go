package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veil-pii/veil/internal/policy"
	"github.com/veil-pii/veil/internal/presidio"
	"github.com/veil-pii/veil/internal/types"
)

func fakeAnalyzer(t *testing.T, got *analyzeRequest, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
}

func TestDetect_EmptyTextSkipsService(t *testing.T) {
	c := New(presidio.New("analyzer", "http://127.0.0.1:1"), Options{})
	spans, err := c.Detect(context.Background(), "", "en", nil, policy.CustomEntity{})
	require.NoError(t, err)
	assert.NotNil(t, spans)
	assert.Empty(t, spans)
}

func TestDetect_RequestShapeAndDefaults(t *testing.T) {
	var req analyzeRequest
	srv := fakeAnalyzer(t, &req, `[]`)
	defer srv.Close()

	c := New(presidio.New("analyzer", srv.URL), Options{CorrelationID: "run-1"})
	spans, err := c.Detect(context.Background(), "hello", "en", nil, policy.CustomEntity{})
	require.NoError(t, err)
	assert.Empty(t, spans)

	assert.Equal(t, "hello", req.Text)
	assert.Equal(t, "en", req.Language)
	assert.Equal(t, DefaultEntities, req.Entities)
	assert.InDelta(t, 0.7, req.ScoreThreshold, 1e-9)
	assert.Equal(t, "run-1", req.CorrelationID)
	assert.Empty(t, req.AdHocRecognizers)
}

func TestDetect_CustomEntityReachesRequest(t *testing.T) {
	var req analyzeRequest
	srv := fakeAnalyzer(t, &req, `[{"start":0,"end":4,"entity_type":"CUSTOM_ENTITY","score":0.85}]`)
	defer srv.Close()

	c := New(presidio.New("analyzer", srv.URL), Options{})
	spans, err := c.Detect(context.Background(), "Acme rocks", "en", []string{"PERSON"}, policy.NewCustomEntity("Acme", "[CO]"))
	require.NoError(t, err)

	assert.Equal(t, []string{"PERSON", types.CustomEntityLabel}, req.Entities)
	require.Len(t, req.AdHocRecognizers, 1)
	rec := req.AdHocRecognizers[0]
	assert.Equal(t, types.CustomEntityLabel, rec.SupportedEntity)
	require.Len(t, rec.Patterns, 1)
	assert.Equal(t, `(?i)\bAcme\b`, rec.Patterns[0].Regex)
	assert.InDelta(t, CustomScore, rec.Patterns[0].Score, 1e-9)

	require.Len(t, spans, 1)
	assert.Equal(t, types.CustomEntityLabel, spans[0].EntityType)
}

func TestDetect_ConvertsCodePointOffsets(t *testing.T) {
	text := "Zoë Müller paid"
	srv := fakeAnalyzer(t, nil, `[{"start":0,"end":10,"entity_type":"PERSON","score":0.9,"recognition_metadata":{"recognizer_name":"SpacyRecognizer"}}]`)
	defer srv.Close()

	c := New(presidio.New("analyzer", srv.URL), Options{})
	spans, err := c.Detect(context.Background(), text, "en", nil, policy.CustomEntity{})
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "Zoë Müller", text[spans[0].Start:spans[0].End])
	assert.Equal(t, "SpacyRecognizer", spans[0].RecognizerName)
}

func TestDetect_DropsEntitiesOutsideAllowList(t *testing.T) {
	srv := fakeAnalyzer(t, nil, `[{"start":0,"end":3,"entity_type":"URL","score":0.9},{"start":4,"end":7,"entity_type":"PERSON","score":0.9}]`)
	defer srv.Close()

	c := New(presidio.New("analyzer", srv.URL), Options{})
	spans, err := c.Detect(context.Background(), "abc Bob", "en", []string{"PERSON"}, policy.CustomEntity{})
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "PERSON", spans[0].EntityType)
}

func TestDetect_FailureIsDistinctFromEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(presidio.New("analyzer", srv.URL), Options{})
	spans, err := c.Detect(context.Background(), "John", "en", nil, policy.CustomEntity{})
	require.Error(t, err)
	assert.Nil(t, spans)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestNew_GeneratesCorrelationID(t *testing.T) {
	a := New(presidio.New("analyzer", "http://x"), Options{})
	b := New(presidio.New("analyzer", "http://x"), Options{})
	assert.NotEmpty(t, a.CorrelationID())
	assert.NotEqual(t, a.CorrelationID(), b.CorrelationID())
}

func TestAllowList_Dedupes(t *testing.T) {
	got := allowList([]string{"PERSON", "PERSON", "", types.CustomEntityLabel}, policy.NewCustomEntity("x", ""))
	assert.Equal(t, []string{"PERSON", types.CustomEntityLabel}, got)
}

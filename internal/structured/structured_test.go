package structured

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veil-pii/veil/internal/pipeline"
	"github.com/veil-pii/veil/internal/types"
)

type failing struct{}

func (failing) Redact(context.Context, string) (types.Outcome, error) {
	return types.Outcome{}, errors.New("analyzer down")
}

func TestRedactYAML_ValuesOnlyAndOrderKept(t *testing.T) {
	in := "" +
		"zeta: Acme Inc\n" +
		"Acme: untouched key\n" +
		"alpha:\n" +
		"  owner: Acme\n" +
		"  count: 3\n" +
		"list:\n" +
		"  - Acme one\n" +
		"  - true\n"

	out, res, err := Redact(context.Background(), []byte(in), YAML, pipeline.NewLiteral("Acme", "[CO]"))
	require.NoError(t, err)
	got := string(out)

	assert.Contains(t, got, "zeta: '[CO] Inc'")
	assert.Contains(t, got, "Acme: untouched key")
	assert.Contains(t, got, "owner: '[CO]'")
	assert.Contains(t, got, "count: 3")
	assert.Contains(t, got, "- true")
	assert.Less(t, strings.Index(got, "zeta"), strings.Index(got, "alpha"))
	assert.Less(t, strings.Index(got, "alpha"), strings.Index(got, "list"))

	require.Len(t, res.Records, 3)
	fields := []string{res.Records[0].Field, res.Records[1].Field, res.Records[2].Field}
	assert.Equal(t, []string{"zeta", "alpha.owner", "list.0"}, fields)
}

func TestRedactJSON_PreservesOrderAndTypes(t *testing.T) {
	in := `{"name": "Bob Smith", "age": 42, "tags": ["Bob", null], "active": false, "z": {"y": "Bob"}}`
	out, res, err := Redact(context.Background(), []byte(in), JSON, pipeline.NewLiteral("Bob", "<P>"))
	require.NoError(t, err)

	want := `{
  "name": "<P> Smith",
  "age": 42,
  "tags": [
    "<P>",
    null
  ],
  "active": false,
  "z": {
    "y": "<P>"
  }
}
`
	assert.Equal(t, want, string(out))
	assert.Len(t, res.Records, 3)
}

func TestRedactYAML_NumberLikeReplacementStaysString(t *testing.T) {
	out, _, err := Redact(context.Background(), []byte("code: secret\n"), YAML, pipeline.NewLiteral("secret", "123"))
	require.NoError(t, err)
	assert.Equal(t, "code: \"123\"\n", string(out))
}

func TestRedact_EmptyDocument(t *testing.T) {
	out, res, err := Redact(context.Background(), []byte(""), YAML, pipeline.NewLiteral("x", "y"))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, res.Records)
}

func TestRedact_InvalidDocument(t *testing.T) {
	_, _, err := Redact(context.Background(), []byte("a: [unclosed\n"), YAML, pipeline.NewLiteral("x", "y"))
	assert.Error(t, err)
}

func TestRedact_RedactorErrorNamesField(t *testing.T) {
	_, _, err := Redact(context.Background(), []byte("a:\n  b: text\n"), YAML, failing{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.b")
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, JSON, FormatFor("x/data.JSON"))
	assert.Equal(t, YAML, FormatFor("x/data.yml"))
	assert.Equal(t, YAML, FormatFor("x/data.yaml"))
}

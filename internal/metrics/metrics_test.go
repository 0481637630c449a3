package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveFile("success", 10*time.Millisecond)
	m.ObserveFile("success", 20*time.Millisecond)
	m.ObserveFile("failure", time.Millisecond)
	m.ObserveSubstitution("PERSON", "replace")
	m.ObserveMalformed(3)
	m.ObserveMalformed(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.files.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.substitutions.WithLabelValues("PERSON", "replace")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.malformed))
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("analyzer", "/analyze", 5*time.Millisecond, nil)
	m.ObserveRequest("analyzer", "/analyze", 5*time.Millisecond, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("analyzer", "/analyze", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("analyzer", "/analyze", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveMalformed(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.malformed))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveFile("skipped", time.Millisecond)
	p := filepath.Join(t.TempDir(), "veil.prom")
	require.NoError(t, m.WriteTextfile(p))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `veil_files_total{result="skipped"} 1`))
}

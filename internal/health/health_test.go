package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veil-pii/veil/internal/types"
)

func TestProbe_MixedResults(t *testing.T) {
	st := Probe(context.Background(), time.Second, map[string]CheckFunc{
		Analyzer:   func(context.Context) error { return nil },
		Anonymizer: func(context.Context) error { return errors.New("connection refused") },
	})

	assert.True(t, st.Available(Analyzer))
	assert.Empty(t, st.Reason(Analyzer))
	assert.False(t, st.Available(Anonymizer))
	assert.Contains(t, st.Reason(Anonymizer), "connection refused")
	assert.Equal(t, []string{Analyzer, Anonymizer}, st.Services())
}

func TestProbe_Timeout(t *testing.T) {
	st := Probe(context.Background(), 20*time.Millisecond, map[string]CheckFunc{
		Analyzer: func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	})
	assert.False(t, st.Available(Analyzer))
	assert.Equal(t, "health check timeout", st.Reason(Analyzer))
}

func TestProbe_RunsEachCheckOnce(t *testing.T) {
	calls := 0
	st := Probe(context.Background(), time.Second, map[string]CheckFunc{
		Analyzer: func(context.Context) error { calls++; return nil },
	})
	_ = st.Available(Analyzer)
	_ = st.Available(Analyzer)
	assert.Equal(t, 1, calls)
}

func TestStatus_UnprobedIsUnavailable(t *testing.T) {
	var st Status
	assert.False(t, st.Available(Analyzer))
	assert.Equal(t, "not probed", st.Reason(Analyzer))
	assert.Empty(t, st.Services())
}

func TestRequire(t *testing.T) {
	st := Static(map[string]bool{Analyzer: false, Anonymizer: true})
	require.NoError(t, st.Require(Anonymizer))
	err := st.Require(Analyzer, Anonymizer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDependencyUnavailable))
	assert.Contains(t, err.Error(), Analyzer)
}

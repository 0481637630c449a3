// Package health probes the external services once, before any file is
// touched, and captures the outcome in an immutable Status.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/veil-pii/veil/internal/types"
)

// Service names used as check keys.
const (
	Analyzer   = "analyzer"
	Anonymizer = "anonymizer"
)

// DefaultTimeout bounds each probe when Probe is given zero.
const DefaultTimeout = 5 * time.Second

// CheckFunc returns nil when the service is healthy.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Available bool          `json:"available"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Status is a snapshot of service availability. It is never changed after
// Probe returns; copies share no mutable state with the original.
type Status struct {
	checks    map[string]CheckResult
	checkedAt time.Time
}

// Probe runs every check once, concurrently, each bounded by timeout.
func Probe(ctx context.Context, timeout time.Duration, checks map[string]CheckFunc) Status {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			res := run(ctx, timeout, check)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	for name, r := range results {
		ev := log.Debug()
		if !r.Available {
			ev = log.Warn()
		}
		ev.Str("service", name).Bool("available", r.Available).Dur("took", r.Duration).Str("reason", r.Message).Msg("health probe")
	}
	return Status{checks: results, checkedAt: time.Now()}
}

// Static builds a Status from known availability, for callers that skip
// probing (literal mode) and for tests.
func Static(available map[string]bool) Status {
	out := make(map[string]CheckResult, len(available))
	for k, v := range available {
		r := CheckResult{Available: v}
		if !v {
			r.Message = "marked unavailable"
		}
		out[k] = r
	}
	return Status{checks: out, checkedAt: time.Now()}
}

func run(ctx context.Context, timeout time.Duration, check CheckFunc) CheckResult {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()

	errCh := make(chan error, 1)
	go func() { errCh <- check(cctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			return CheckResult{Message: err.Error(), Duration: time.Since(start)}
		}
		return CheckResult{Available: true, Duration: time.Since(start)}
	case <-cctx.Done():
		return CheckResult{Message: "health check timeout", Duration: time.Since(start)}
	}
}

// Available reports whether name was probed and healthy.
func (s Status) Available(name string) bool {
	return s.checks[name].Available
}

// Reason explains why name is unavailable. It is empty for healthy services.
func (s Status) Reason(name string) string {
	r, ok := s.checks[name]
	if !ok {
		return "not probed"
	}
	return r.Message
}

// Result returns the raw probe result for name.
func (s Status) Result(name string) (CheckResult, bool) {
	r, ok := s.checks[name]
	return r, ok
}

// Services lists the probed service names in sorted order.
func (s Status) Services() []string {
	out := make([]string, 0, len(s.checks))
	for k := range s.checks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CheckedAt is when the probe finished.
func (s Status) CheckedAt() time.Time { return s.checkedAt }

// Require returns an error matching types.ErrDependencyUnavailable when any
// of names is unavailable.
func (s Status) Require(names ...string) error {
	var errs []error
	for _, n := range names {
		if !s.Available(n) {
			errs = append(errs, fmt.Errorf("%s: %s: %w", n, s.Reason(n), types.ErrDependencyUnavailable))
		}
	}
	return errors.Join(errs...)
}

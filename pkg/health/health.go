package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/refit/pkg/log"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// ProbeConfig controls WaitHealthy
type ProbeConfig struct {
	// Interval is the time between attempts
	Interval time.Duration

	// Timeout bounds the whole probe
	Timeout time.Duration

	// Successes is the number of consecutive healthy results required
	Successes int
}

// DefaultProbeConfig returns a ProbeConfig with sensible defaults
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Interval:  time.Second,
		Timeout:   30 * time.Second,
		Successes: 2,
	}
}

// Status tracks consecutive results of a probe
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	Attempts             int
	LastResult           Result
}

// Update records a new result
func (s *Status) Update(result Result) {
	s.Attempts++
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
	}
}

// NewChecker builds a checker for target: "tcp://host:port" dials, anything
// else is fetched over HTTP
func NewChecker(target string) Checker {
	if addr, ok := strings.CutPrefix(target, "tcp://"); ok {
		return NewTCPChecker(addr)
	}
	return NewHTTPChecker(target)
}

// WaitHealthy polls checker until it reports cfg.Successes consecutive
// healthy results, or fails when cfg.Timeout elapses
func WaitHealthy(ctx context.Context, checker Checker, cfg ProbeConfig) (*Status, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Successes <= 0 {
		cfg.Successes = 1
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	logger := log.WithComponent("health")
	status := &Status{}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// cause is the last failure seen while the probe was still live; a check
	// cut short by the deadline only reports the deadline
	cause := "no attempt completed"
	for {
		if err := ctx.Err(); err != nil {
			return status, fmt.Errorf("service not healthy after %d attempts: %s", status.Attempts, cause)
		}

		result := checker.Check(ctx)
		status.Update(result)
		logger.Debug().
			Str("type", string(checker.Type())).
			Bool("healthy", result.Healthy).
			Str("message", result.Message).
			Msg("Probe attempt")

		if status.ConsecutiveSuccesses >= cfg.Successes {
			return status, nil
		}
		if !result.Healthy && ctx.Err() == nil {
			cause = result.Message
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

package catchup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/contextgg/go-projections/es"
)

// Options bound a convergent catch-up
type Options struct {
	MaxIterations         int           `json:"max_iterations" yaml:"max_iterations"`
	MaxEventsPerIteration int64         `json:"max_events_per_iteration" yaml:"max_events_per_iteration"`
	IterationDelay        time.Duration `json:"iteration_delay" yaml:"iteration_delay"`
}

// DefaultOptions returns the default bounds
func DefaultOptions() Options {
	return Options{
		MaxIterations:         10,
		MaxEventsPerIteration: 10000,
		IterationDelay:        100 * time.Millisecond,
	}
}

// withDefaults fills unset bounds from DefaultOptions. A zero delay is kept.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.MaxEventsPerIteration <= 0 {
		o.MaxEventsPerIteration = def.MaxEventsPerIteration
	}
	if o.IterationDelay < 0 {
		o.IterationDelay = 0
	}
	return o
}

// Result of a convergent catch-up. Not converging is reported here with a
// FailureReason, not as an error.
type Result struct {
	IsSynced            bool            `json:"is_synced"`
	IterationsPerformed int             `json:"iterations_performed"`
	TotalEventsApplied  int64           `json:"total_events_applied"`
	FailureReason       string          `json:"failure_reason,omitempty"`
	FinalDiff           *CheckpointDiff `json:"final_diff,omitempty"`
}

// CheckerOption configures a Checker
type CheckerOption func(*Checker)

// WithCheckerMetrics records iterations and outcomes on the recorder
func WithCheckerMetrics(metrics MetricsRecorder) CheckerOption {
	return func(c *Checker) {
		c.metrics = metrics
	}
}

// Checker compares versions of one projection type and drives the target
// towards the source
type Checker struct {
	factory es.ProjectionFactory
	metrics MetricsRecorder
}

// NewChecker creates a checker for the projections of a factory
func NewChecker(factory es.ProjectionFactory, opts ...CheckerOption) *Checker {
	c := &Checker{
		factory: factory,
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvergentCatchUp repeatedly replays the events the target version misses
// until it covers the source version or a bound is hit
func (c *Checker) ConvergentCatchUp(ctx context.Context, objectID string, sourceVersion, targetVersion int, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	started := time.Now()
	logger := log.
		With().
		Str("projection", c.factory.TypeName()).
		Str("objectid", objectID).
		Int("source", sourceVersion).
		Int("target", targetVersion).
		Logger()

	result := &Result{}
	finish := func() (*Result, error) {
		if !result.IsSynced {
			logger.
				Warn().
				Int("iterations", result.IterationsPerformed).
				Str("reason", result.FailureReason).
				Msg("Catch up did not converge")
		}
		c.metrics.RecordCatchUp(ctx, c.factory.TypeName(), result.IsSynced, result.IterationsPerformed, time.Since(started))
		return result, nil
	}

	for result.IterationsPerformed < opts.MaxIterations {
		cmp, source, target, err := c.compare(ctx, objectID, sourceVersion, targetVersion)
		if err != nil {
			return nil, err
		}
		if cmp.IsSynced {
			result.IsSynced = true
			result.FinalDiff = nil
			return finish()
		}
		result.FinalDiff = cmp.Diff

		estimated := cmp.Diff.EstimatedEvents()
		if estimated > opts.MaxEventsPerIteration {
			result.FailureReason = fmt.Sprintf("Too many events to catch up in one iteration: %d estimated, limit is %d",
				estimated, opts.MaxEventsPerIteration)
			return finish()
		}

		applied, err := target.UpdateToVersion(ctx, source.Checkpoint())
		if err != nil {
			return nil, err
		}
		if err := c.factory.Save(ctx, target, c.versionName(targetVersion)); err != nil {
			return nil, err
		}
		result.IterationsPerformed++
		result.TotalEventsApplied += applied
		c.metrics.RecordIteration(ctx, c.factory.TypeName(), applied)

		logger.
			Debug().
			Int("iteration", result.IterationsPerformed).
			Int64("applied", applied).
			Int64("estimated", estimated).
			Msg("Catch up iteration")

		if err := wait(ctx, opts.IterationDelay); err != nil {
			return nil, err
		}
	}

	cmp, _, _, err := c.compare(ctx, objectID, sourceVersion, targetVersion)
	if err != nil {
		return nil, err
	}
	if cmp.IsSynced {
		result.IsSynced = true
		result.FinalDiff = nil
		return finish()
	}
	result.FinalDiff = cmp.Diff
	result.FailureReason = fmt.Sprintf("Max iterations (%d) reached without converging", opts.MaxIterations)
	return finish()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

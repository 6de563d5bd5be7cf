package builder

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/contextgg/go-projections/es"
	"github.com/contextgg/go-projections/es/catchup"
	"github.com/contextgg/go-projections/es/loader"
)

// Option configures a Client
type Option func(*Client)

// WithCatchUpOptions sets the bounds of every convergent catch-up
func WithCatchUpOptions(opts catchup.Options) Option {
	return func(c *Client) {
		c.Options = opts
	}
}

// WithPageSize sets the discovery page size
func WithPageSize(pageSize int) Option {
	return func(c *Client) {
		c.PageSize = pageSize
	}
}

// WithRebuildTimeout sets how long a rebuild token stays valid
func WithRebuildTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.RebuildTimeout = timeout
	}
}

// WithMetrics records discovery and catch-up metrics
func WithMetrics(metrics catchup.MetricsRecorder) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithLoaderOptions configures the loader
func WithLoaderOptions(opts ...loader.Option) Option {
	return func(c *Client) {
		c.loaderOpts = append(c.loaderOpts, opts...)
	}
}

// NewClient creates a client for one projection type
func NewClient(
	coordinator es.StatusCoordinator,
	provider es.ObjectIDProvider,
	factory es.ProjectionFactory,
	opts ...Option,
) *Client {
	c := &Client{
		Coordinator:    coordinator,
		Options:        catchup.DefaultOptions(),
		PageSize:       catchup.DefaultPageSize,
		RebuildTimeout: 30 * time.Minute,
		factory:        factory,
		metrics:        catchup.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Discovery = catchup.NewDiscovery(provider,
		catchup.WithProjectionTypeName(factory.TypeName()),
		catchup.WithDiscoveryMetrics(c.metrics),
	)
	c.Checker = catchup.NewChecker(factory, catchup.WithCheckerMetrics(c.metrics))
	c.Loader = loader.New(factory, coordinator, c.loaderOpts...)
	return c
}

// Client has all the services to keep one projection type consistent
type Client struct {
	Coordinator es.StatusCoordinator
	Discovery   *catchup.Discovery
	Checker     *catchup.Checker
	Loader      *loader.Loader

	Options        catchup.Options
	PageSize       int
	RebuildTimeout time.Duration

	factory    es.ProjectionFactory
	metrics    catchup.MetricsRecorder
	loaderOpts []loader.Option
}

// Report summarises a catch-up over many objects
type Report struct {
	Processed int               `json:"processed"`
	Synced    int               `json:"synced"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// CatchUpAll walks every object of the object names and converges the
// target version of each towards the source version
func (c *Client) CatchUpAll(ctx context.Context, objectNames []string, sourceVersion, targetVersion int) (*Report, error) {
	report := &Report{
		Failed: make(map[string]string),
	}
	for item, err := range c.Discovery.Stream(ctx, objectNames, c.PageSize) {
		if err != nil {
			return nil, err
		}

		result, err := c.Checker.ConvergentCatchUp(ctx, item.ObjectID, sourceVersion, targetVersion, c.Options)
		if err != nil {
			return nil, err
		}
		report.Processed++
		if result.IsSynced {
			report.Synced++
			continue
		}
		report.Failed[item.ObjectID] = result.FailureReason
	}
	return report, nil
}

// Rebuild runs a blue green rebuild of one object: the next version is
// converged on the active one and promoted, or the rebuild is failed with
// the reason it did not converge
func (c *Client) Rebuild(ctx context.Context, objectID string) (*catchup.Result, error) {
	name := c.factory.TypeName()
	logger := log.
		With().
		Str("projection", name).
		Str("objectid", objectID).
		Logger()

	token, err := c.Coordinator.StartRebuild(ctx, name, objectID, es.BlueGreen, c.RebuildTimeout)
	if err != nil {
		return nil, err
	}

	meta, err := c.Loader.GetVersionMetadata(ctx, objectID)
	if err != nil {
		return nil, c.abort(ctx, token, err)
	}
	if err := c.Coordinator.StartCatchUp(ctx, token); err != nil {
		return nil, c.abort(ctx, token, err)
	}

	target := meta.ActiveVersion + 1
	if meta.RebuildingVersion != nil {
		target = *meta.RebuildingVersion
	}
	result, err := c.Checker.ConvergentCatchUp(ctx, objectID, meta.ActiveVersion, target, c.Options)
	if err != nil {
		return nil, c.abort(ctx, token, err)
	}

	if !result.IsSynced {
		logger.
			Warn().
			Str("reason", result.FailureReason).
			Msg("Rebuild did not converge")
		if err := c.Coordinator.CancelRebuild(ctx, token, result.FailureReason); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := c.Coordinator.CompleteRebuild(ctx, token); err != nil {
		return nil, err
	}
	logger.
		Info().
		Int("version", target).
		Msg("Rebuild completed")
	return result, nil
}

func (c *Client) abort(ctx context.Context, token *es.RebuildToken, cause error) error {
	// the caller's context may be the reason we stopped
	if err := c.Coordinator.CancelRebuild(context.WithoutCancel(ctx), token, cause.Error()); err != nil {
		log.
			Error().
			Err(err).
			Str("token", token.Token).
			Msg("Could not cancel rebuild")
	}
	return cause
}

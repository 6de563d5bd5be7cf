package loader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/contextgg/go-projections/es"
)

// SchemaMismatchBehavior decides what happens when a stored projection was
// built with another schema version than the code expects
type SchemaMismatchBehavior int

const (
	// Throw fails the load with a SchemaMismatchError
	Throw SchemaMismatchBehavior = iota
	// Warn returns the projection flagged as mismatched
	Warn
	// AutoRebuild returns the flagged projection and starts a rebuild
	AutoRebuild
)

// String implements the Stringer interface
func (b SchemaMismatchBehavior) String() string {
	switch b {
	case Throw:
		return "Throw"
	case Warn:
		return "Warn"
	case AutoRebuild:
		return "AutoRebuild"
	}
	return fmt.Sprintf("SchemaMismatchBehavior(%d)", int(b))
}

// ParseSchemaMismatchBehavior matches a behavior name case-insensitively
func ParseSchemaMismatchBehavior(name string) (SchemaMismatchBehavior, error) {
	switch strings.ToLower(name) {
	case "throw":
		return Throw, nil
	case "warn":
		return Warn, nil
	case "autorebuild", "auto-rebuild":
		return AutoRebuild, nil
	}
	return Throw, fmt.Errorf("unknown schema mismatch behavior %q", name)
}

// UnmarshalText reads a behavior name
func (b *SchemaMismatchBehavior) UnmarshalText(text []byte) error {
	parsed, err := ParseSchemaMismatchBehavior(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// VersionMetadata tells which versions of a projection exist
type VersionMetadata struct {
	ActiveVersion     int   `json:"active_version"`
	RebuildingVersion *int  `json:"rebuilding_version,omitempty"`
	AllVersions       []int `json:"all_versions"`
}

// LoadResult is the outcome of GetWithVersionCheck
type LoadResult struct {
	Projection     es.Projection
	Found          bool
	SchemaMismatch bool
}

// Option configures a Loader
type Option func(*Loader)

// WithSchemaMismatchBehavior sets the mismatch policy, Throw by default
func WithSchemaMismatchBehavior(behavior SchemaMismatchBehavior) Option {
	return func(l *Loader) {
		l.behavior = behavior
	}
}

// WithRebuild sets the strategy and timeout of automatic rebuilds
func WithRebuild(strategy es.RebuildStrategy, timeout time.Duration) Option {
	return func(l *Loader) {
		l.strategy = strategy
		l.timeout = timeout
	}
}

// Loader loads projections of one type, aware of versions and schema
type Loader struct {
	factory     es.ProjectionFactory
	coordinator es.StatusCoordinator
	behavior    SchemaMismatchBehavior
	strategy    es.RebuildStrategy
	timeout     time.Duration
}

// New creates a loader
func New(factory es.ProjectionFactory, coordinator es.StatusCoordinator, opts ...Option) *Loader {
	l := &Loader{
		factory:     factory,
		coordinator: coordinator,
		behavior:    Throw,
		strategy:    es.BlueGreen,
		timeout:     30 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get loads the unversioned projection, nil when it does not exist
func (l *Loader) Get(ctx context.Context, objectID string) (es.Projection, error) {
	return l.load(ctx, objectID, "")
}

// GetVersion loads a pinned version, nil when it does not exist
func (l *Loader) GetVersion(ctx context.Context, objectID string, version int) (es.Projection, error) {
	return l.load(ctx, objectID, es.VersionName(l.factory.TypeName(), version))
}

func (l *Loader) load(ctx context.Context, objectID, versionName string) (es.Projection, error) {
	ok, err := l.factory.Exists(ctx, objectID, versionName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return l.factory.GetOrCreate(ctx, objectID, versionName)
}

// GetVersionMetadata reports the active and rebuilding versions
func (l *Loader) GetVersionMetadata(ctx context.Context, objectID string) (*VersionMetadata, error) {
	info, err := l.coordinator.GetStatus(ctx, l.factory.TypeName(), objectID)
	if err != nil {
		return nil, err
	}

	meta := &VersionMetadata{
		ActiveVersion: 1,
		AllVersions:   []int{1},
	}
	if info == nil {
		return meta, nil
	}
	if info.ActiveVersion > 1 {
		meta.ActiveVersion = info.ActiveVersion
		meta.AllVersions = []int{info.ActiveVersion}
	}
	if info.Status.IsRebuilding() && info.Rebuild != nil {
		rebuilding := meta.ActiveVersion + 1
		meta.RebuildingVersion = &rebuilding
		meta.AllVersions = append(meta.AllVersions, rebuilding)
	}
	return meta, nil
}

// GetWithVersionCheck loads the projection and applies the schema mismatch policy
func (l *Loader) GetWithVersionCheck(ctx context.Context, objectID string) (*LoadResult, error) {
	p, err := l.Get(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &LoadResult{}, nil
	}

	result := &LoadResult{
		Projection: p,
		Found:      true,
	}
	if !p.NeedsSchemaUpgrade() {
		return result, nil
	}

	logger := log.
		With().
		Str("projection", l.factory.TypeName()).
		Str("objectid", objectID).
		Int("stored", p.SchemaVersion()).
		Int("expected", p.CodeSchemaVersion()).
		Logger()

	switch l.behavior {
	case Warn:
		logger.Warn().Msg("Projection schema mismatch")
	case AutoRebuild:
		logger.Warn().Msg("Projection schema mismatch")
		if err := l.autoRebuild(ctx, objectID); err != nil {
			logger.
				Error().
				Err(err).
				Msg("Could not start rebuild")
			return nil, err
		}
	default:
		return nil, &es.SchemaMismatchError{
			ProjectionName: l.factory.TypeName(),
			ObjectID:       objectID,
			Stored:         p.SchemaVersion(),
			Expected:       p.CodeSchemaVersion(),
		}
	}

	result.SchemaMismatch = true
	return result, nil
}

func (l *Loader) autoRebuild(ctx context.Context, objectID string) error {
	info, err := l.coordinator.GetStatus(ctx, l.factory.TypeName(), objectID)
	if err != nil {
		return err
	}
	if info != nil && info.Status.IsTransitioning() {
		return nil
	}
	if info != nil && info.Status != es.StatusActive && info.Status != es.StatusFailed {
		log.
			Warn().
			Str("projection", l.factory.TypeName()).
			Str("objectid", objectID).
			Str("status", info.Status.String()).
			Msg("Skipping schema upgrade rebuild")
		return nil
	}
	if _, err := l.coordinator.StartRebuild(ctx, l.factory.TypeName(), objectID, l.strategy, l.timeout); err != nil {
		return err
	}

	log.
		Info().
		Str("projection", l.factory.TypeName()).
		Str("objectid", objectID).
		Str("strategy", l.strategy.String()).
		Msg("Started rebuild for schema upgrade")
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/contextgg/go-projections/builder"
	"github.com/contextgg/go-projections/es"
	"github.com/contextgg/go-projections/es/catchup"
	"github.com/contextgg/go-projections/es/loader"
)

// Store kinds
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Settings of the projection engine. Values come from the defaults, then
// the YAML file, then the environment.
type Settings struct {
	Store          string        `yaml:"store" env:"PROJECTIONS_STORE"`
	SQLitePath     string        `yaml:"sqlite_path" env:"PROJECTIONS_SQLITE_PATH"`
	MongoURI       string        `yaml:"mongo_uri" env:"PROJECTIONS_MONGO_URI"`
	MongoDB        string        `yaml:"mongo_db" env:"PROJECTIONS_MONGO_DB"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"PROJECTIONS_CONNECT_TIMEOUT"`

	NatsURL       string `yaml:"nats_url" env:"PROJECTIONS_NATS_URL"`
	NatsTLS       bool   `yaml:"nats_tls" env:"PROJECTIONS_NATS_TLS"`
	NatsNamespace string `yaml:"nats_namespace" env:"PROJECTIONS_NATS_NAMESPACE"`

	PageSize              int           `yaml:"page_size" env:"PROJECTIONS_PAGE_SIZE"`
	MaxIterations         int           `yaml:"max_iterations" env:"PROJECTIONS_MAX_ITERATIONS"`
	MaxEventsPerIteration int64         `yaml:"max_events_per_iteration" env:"PROJECTIONS_MAX_EVENTS_PER_ITERATION"`
	IterationDelay        time.Duration `yaml:"iteration_delay" env:"PROJECTIONS_ITERATION_DELAY"`

	RebuildTimeout time.Duration `yaml:"rebuild_timeout" env:"PROJECTIONS_REBUILD_TIMEOUT"`
	SchemaMismatch string        `yaml:"schema_mismatch" env:"PROJECTIONS_SCHEMA_MISMATCH"`
}

// Default returns the settings used when nothing is configured
func Default() Settings {
	opts := catchup.DefaultOptions()
	return Settings{
		Store:                 StoreMemory,
		ConnectTimeout:        10 * time.Second,
		PageSize:              catchup.DefaultPageSize,
		MaxIterations:         opts.MaxIterations,
		MaxEventsPerIteration: opts.MaxEventsPerIteration,
		IterationDelay:        opts.IterationDelay,
		RebuildTimeout:        30 * time.Minute,
		SchemaMismatch:        loader.Throw.String(),
	}
}

// Load reads the YAML file at path, when given, and applies the environment
func Load(path string) (*Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings can be wired
func (s *Settings) Validate() error {
	switch s.Store {
	case StoreMemory:
	case StoreSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("sqlite store needs sqlite_path")
		}
	case StoreMongo:
		if s.MongoURI == "" || s.MongoDB == "" {
			return fmt.Errorf("mongo store needs mongo_uri and mongo_db")
		}
	default:
		return fmt.Errorf("unknown store %q", s.Store)
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive, got %d", s.MaxIterations)
	}
	if s.MaxEventsPerIteration < 1 {
		return fmt.Errorf("max_events_per_iteration must be positive, got %d", s.MaxEventsPerIteration)
	}
	if s.PageSize < 1 {
		return fmt.Errorf("page_size must be positive, got %d", s.PageSize)
	}
	if s.IterationDelay < 0 {
		return fmt.Errorf("iteration_delay can't be negative, got %s", s.IterationDelay)
	}
	if _, err := loader.ParseSchemaMismatchBehavior(s.SchemaMismatch); err != nil {
		return err
	}
	return nil
}

// CatchUpOptions returns the convergent catch-up bounds
func (s *Settings) CatchUpOptions() catchup.Options {
	return catchup.Options{
		MaxIterations:         s.MaxIterations,
		MaxEventsPerIteration: s.MaxEventsPerIteration,
		IterationDelay:        s.IterationDelay,
	}
}

// StatusStore picks the status store factory for the configured store
func (s *Settings) StatusStore() StatusStore {
	switch s.Store {
	case StoreSQLite:
		return SQLiteStatusStore(s.SQLitePath)
	case StoreMongo:
		return MongoStatusStore(s.MongoURI, s.MongoDB, s.ConnectTimeout)
	}
	return LocalStatusStore()
}

// EventBus publishes on NATS when a URL is configured
func (s *Settings) EventBus() EventBus {
	if s.NatsURL != "" {
		return Nats(s.NatsURL, s.NatsTLS, s.NatsNamespace)
	}
	return LocalPublisher()
}

// BuilderOptions returns the options for a builder.Client
func (s *Settings) BuilderOptions() []builder.Option {
	behavior, _ := loader.ParseSchemaMismatchBehavior(s.SchemaMismatch)
	return []builder.Option{
		builder.WithCatchUpOptions(s.CatchUpOptions()),
		builder.WithPageSize(s.PageSize),
		builder.WithRebuildTimeout(s.RebuildTimeout),
		builder.WithLoaderOptions(
			loader.WithSchemaMismatchBehavior(behavior),
			loader.WithRebuild(es.BlueGreen, s.RebuildTimeout),
		),
	}
}

// FromSettings creates the client for the settings
func FromSettings(s *Settings, opts ...es.CoordinatorOption) (*Client, error) {
	return NewClient(s.StatusStore(), s.EventBus(), opts...)
}

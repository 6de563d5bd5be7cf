package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextgg/go-projections/builder"
	"github.com/contextgg/go-projections/es"
	"github.com/contextgg/go-projections/es/basic"
	"github.com/contextgg/go-projections/es/nats"
	"github.com/contextgg/go-projections/es/tests"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "projections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *s)
	assert.Equal(t, StoreMemory, s.Store)
	assert.Equal(t, 10, s.MaxIterations)
	assert.Equal(t, "Throw", s.SchemaMismatch)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
store: sqlite
sqlite_path: /tmp/status.db
page_size: 25
max_iterations: 4
iteration_delay: 250ms
schema_mismatch: warn
`)
	t.Setenv("PROJECTIONS_PAGE_SIZE", "50")
	t.Setenv("PROJECTIONS_REBUILD_TIMEOUT", "5m")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, s.Store)
	assert.Equal(t, "/tmp/status.db", s.SQLitePath)
	assert.Equal(t, 50, s.PageSize)
	assert.Equal(t, 4, s.MaxIterations)
	assert.Equal(t, int64(10000), s.MaxEventsPerIteration)
	assert.Equal(t, 250*time.Millisecond, s.IterationDelay)
	assert.Equal(t, 5*time.Minute, s.RebuildTimeout)

	opts := s.CatchUpOptions()
	assert.Equal(t, 4, opts.MaxIterations)
	assert.Equal(t, 250*time.Millisecond, opts.IterationDelay)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "store: [nope"))
	assert.Error(t, err)

	t.Setenv("PROJECTIONS_MAX_ITERATIONS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Settings){
		"unknown store":       func(s *Settings) { s.Store = "redis" },
		"sqlite without path": func(s *Settings) { s.Store = StoreSQLite },
		"mongo without db":    func(s *Settings) { s.Store = StoreMongo; s.MongoURI = "mongodb://localhost" },
		"no iterations":       func(s *Settings) { s.MaxIterations = 0 },
		"no event budget":     func(s *Settings) { s.MaxEventsPerIteration = 0 },
		"negative page size":  func(s *Settings) { s.PageSize = -1 },
		"negative delay":      func(s *Settings) { s.IterationDelay = -time.Second },
		"unknown behavior":    func(s *Settings) { s.SchemaMismatch = "ignore" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := Default()
			mutate(&s)
			assert.Error(t, s.Validate())
		})
	}

	s := Default()
	assert.NoError(t, s.Validate())
}

func TestFromSettings(t *testing.T) {
	ctx := context.Background()
	s := Default()
	s.Store = StoreSQLite
	s.SQLitePath = filepath.Join(t.TempDir(), "status.db")

	client, err := FromSettings(&s)
	require.NoError(t, err)
	defer client.Close()

	token, err := client.Coordinator.StartRebuild(ctx, "OrderSummary", "1", es.BlueGreen, time.Minute)
	require.NoError(t, err)

	info, err := client.StatusStore.Get(ctx, "OrderSummary", "1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, token.Token, info.Token.Token)
}

func TestBuilderOptions(t *testing.T) {
	s := Default()
	s.PageSize = 7
	s.RebuildTimeout = time.Hour
	s.MaxIterations = 2

	client, err := NewClient(LocalStatusStore(), LocalPublisher())
	require.NoError(t, err)
	defer client.Close()

	store := basic.NewMemoryStore()
	projections := basic.NewProjectionStore(tests.OrderSummaryName, tests.NewOrderSummary(1), store, store)
	b := builder.NewClient(client.Coordinator, store, projections, s.BuilderOptions()...)
	assert.Equal(t, 7, b.PageSize)
	assert.Equal(t, time.Hour, b.RebuildTimeout)
	assert.Equal(t, 2, b.Options.MaxIterations)
}

func TestEventBusSelection(t *testing.T) {
	s := Default()
	bus, err := s.EventBus()()
	require.NoError(t, err)
	assert.NotNil(t, bus)

	s.NatsURL = "nats://localhost:4222"
	bus, err = s.EventBus()()
	require.NoError(t, err)
	assert.IsType(t, &nats.Client{}, bus)
}

func TestCombined(t *testing.T) {
	ctx := context.Background()
	first, second := &basic.RecordingEventBus{}, &basic.RecordingEventBus{}
	recording := func(bus *basic.RecordingEventBus) EventBus {
		return func() (es.EventBus, error) { return bus, nil }
	}

	client, err := NewClient(LocalStatusStore(), Combined(recording(first), recording(second)))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Coordinator.Disable(ctx, "OrderSummary", "1"))
	assert.Len(t, first.Published(), 1)
	assert.Len(t, second.Published(), 1)

	failing := func() (es.EventBus, error) { return nil, errors.New("no bus") }
	_, err = NewClient(LocalStatusStore(), Combined(recording(first), failing))
	assert.EqualError(t, err, "no bus")
}

package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextgg/go-projections/es"
	"github.com/contextgg/go-projections/es/basic"
	"github.com/contextgg/go-projections/es/tests"
)

// newFactory stores a schema 1 summary for "old" and a schema 2 one for
// "new", the code expects schema 2
func newFactory(t *testing.T) *basic.ProjectionStore {
	ctx := context.Background()
	store := basic.NewMemoryStore()
	projections := basic.NewProjectionStore(tests.OrderSummaryName, tests.NewOrderSummary(2), store, store)

	require.NoError(t, projections.Save(ctx, tests.NewOrderSummary(1)("old"), ""))
	require.NoError(t, projections.Save(ctx, tests.NewOrderSummary(2)("new"), ""))
	require.NoError(t, projections.Save(ctx, tests.NewOrderSummary(2)("new"), es.VersionName(tests.OrderSummaryName, 3)))
	return projections
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	l := New(newFactory(t), es.NewCoordinator(basic.NewStatusStore()))

	p, err := l.Get(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "new", p.ObjectID())

	p, err = l.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = l.GetVersion(ctx, "new", 3)
	require.NoError(t, err)
	assert.NotNil(t, p)

	p, err = l.GetVersion(ctx, "new", 2)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetWithVersionCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		l := New(newFactory(t), es.NewCoordinator(basic.NewStatusStore()))
		result, err := l.GetWithVersionCheck(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, result.Found)
		assert.Nil(t, result.Projection)
	})

	t.Run("matching schema", func(t *testing.T) {
		l := New(newFactory(t), es.NewCoordinator(basic.NewStatusStore()))
		result, err := l.GetWithVersionCheck(ctx, "new")
		require.NoError(t, err)
		assert.True(t, result.Found)
		assert.False(t, result.SchemaMismatch)
	})

	t.Run("throw", func(t *testing.T) {
		l := New(newFactory(t), es.NewCoordinator(basic.NewStatusStore()))
		_, err := l.GetWithVersionCheck(ctx, "old")

		var mismatch *es.SchemaMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, 1, mismatch.Stored)
		assert.Equal(t, 2, mismatch.Expected)
		assert.Equal(t, "old", mismatch.ObjectID)
	})

	t.Run("warn", func(t *testing.T) {
		coordinator := es.NewCoordinator(basic.NewStatusStore())
		l := New(newFactory(t), coordinator, WithSchemaMismatchBehavior(Warn))
		result, err := l.GetWithVersionCheck(ctx, "old")
		require.NoError(t, err)
		assert.True(t, result.Found)
		assert.True(t, result.SchemaMismatch)

		info, err := coordinator.GetStatus(ctx, tests.OrderSummaryName, "old")
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("auto rebuild", func(t *testing.T) {
		coordinator := es.NewCoordinator(basic.NewStatusStore())
		l := New(newFactory(t), coordinator,
			WithSchemaMismatchBehavior(AutoRebuild),
			WithRebuild(es.BlockingWithCatchUp, time.Minute),
		)

		result, err := l.GetWithVersionCheck(ctx, "old")
		require.NoError(t, err)
		assert.True(t, result.SchemaMismatch)

		info, err := coordinator.GetStatus(ctx, tests.OrderSummaryName, "old")
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, es.StatusRebuilding, info.Status)
		assert.Equal(t, es.BlockingWithCatchUp, info.Token.Strategy)

		// a second load leaves the running rebuild alone
		result, err = l.GetWithVersionCheck(ctx, "old")
		require.NoError(t, err)
		assert.True(t, result.SchemaMismatch)

		again, err := coordinator.GetStatus(ctx, tests.OrderSummaryName, "old")
		require.NoError(t, err)
		assert.Equal(t, info.Token.Token, again.Token.Token)
	})

	t.Run("auto rebuild disabled", func(t *testing.T) {
		coordinator := es.NewCoordinator(basic.NewStatusStore())
		require.NoError(t, coordinator.Disable(ctx, tests.OrderSummaryName, "old"))
		l := New(newFactory(t), coordinator, WithSchemaMismatchBehavior(AutoRebuild))

		result, err := l.GetWithVersionCheck(ctx, "old")
		require.NoError(t, err)
		assert.True(t, result.SchemaMismatch)
		assert.NotNil(t, result.Projection)

		info, err := coordinator.GetStatus(ctx, tests.OrderSummaryName, "old")
		require.NoError(t, err)
		assert.Equal(t, es.StatusDisabled, info.Status)
		assert.Nil(t, info.Token)
	})
}

func TestGetVersionMetadata(t *testing.T) {
	ctx := context.Background()
	coordinator := es.NewCoordinator(basic.NewStatusStore())
	l := New(newFactory(t), coordinator)

	meta, err := l.GetVersionMetadata(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, &VersionMetadata{ActiveVersion: 1, AllVersions: []int{1}}, meta)

	token, err := coordinator.StartRebuild(ctx, tests.OrderSummaryName, "new", es.BlueGreen, time.Minute)
	require.NoError(t, err)

	meta, err = l.GetVersionMetadata(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.ActiveVersion)
	require.NotNil(t, meta.RebuildingVersion)
	assert.Equal(t, 2, *meta.RebuildingVersion)
	assert.Equal(t, []int{1, 2}, meta.AllVersions)

	require.NoError(t, coordinator.StartCatchUp(ctx, token))
	meta, err = l.GetVersionMetadata(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, meta.RebuildingVersion)

	require.NoError(t, coordinator.CompleteRebuild(ctx, token))
	meta, err = l.GetVersionMetadata(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, &VersionMetadata{ActiveVersion: 2, AllVersions: []int{2}}, meta)
}

func TestParseSchemaMismatchBehavior(t *testing.T) {
	for name, want := range map[string]SchemaMismatchBehavior{
		"throw":        Throw,
		"Warn":         Warn,
		"AutoRebuild":  AutoRebuild,
		"auto-rebuild": AutoRebuild,
	} {
		got, err := ParseSchemaMismatchBehavior(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	var b SchemaMismatchBehavior
	assert.Error(t, b.UnmarshalText([]byte("explode")))
	require.NoError(t, b.UnmarshalText([]byte("warn")))
	assert.Equal(t, "Warn", b.String())
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextgg/go-projections/es/tests"
)

func TestStatusStore(t *testing.T) {
	store, err := NewStatusStore(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	defer store.Close()

	tests.StatusStoreSuite(t, store)
}

func TestStatusStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "status.db")

	store, err := NewStatusStore(path)
	require.NoError(t, err)
	tests.StatusStoreSuite(t, store)
	require.NoError(t, store.Close())

	reopened, err := NewStatusStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	info, err := reopened.Get(ctx, "Orders", "1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 3, info.ActiveVersion)
}

func TestStatusStoreClosed(t *testing.T) {
	store, err := NewStatusStore(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Get(context.Background(), "Orders", "1")
	assert.Equal(t, ErrStoreClosed, err)
}

package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextgg/go-projections/es"
)

// StatusStoreSuite runs the behaviour every es.StatusStore must have
func StatusStoreSuite(t *testing.T, store es.StatusStore) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("missing entry", func(t *testing.T) {
		info, err := store.Get(ctx, "Missing", "1")
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("put and get", func(t *testing.T) {
		rebuild := es.StartRebuildInfo(es.BlueGreen, 2, "abc", at)
		token := es.NewRebuildToken("Orders", "1", es.BlueGreen, time.Minute, at)
		require.NoError(t, store.Put(ctx, &es.StatusInfo{
			ProjectionName:  "Orders",
			ObjectID:        "1",
			Status:          es.StatusRebuilding,
			StatusChangedAt: at,
			ActiveVersion:   2,
			Rebuild:         &rebuild,
			Token:           token,
			UpdatedAt:       at,
		}))

		info, err := store.Get(ctx, "Orders", "1")
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, es.StatusRebuilding, info.Status)
		assert.True(t, at.Equal(info.StatusChangedAt))
		assert.Equal(t, 2, info.ActiveVersion)
		require.NotNil(t, info.Rebuild)
		assert.Equal(t, es.BlueGreen, info.Rebuild.Strategy)
		assert.Equal(t, 2, info.Rebuild.SourceVersion)
		assert.Equal(t, "abc", info.Rebuild.SourceCheckpointFingerprint)
		require.NotNil(t, info.Token)
		assert.Equal(t, token.Token, info.Token.Token)
		assert.True(t, token.ExpiresAt.Equal(info.Token.ExpiresAt))
	})

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, &es.StatusInfo{
			ProjectionName: "Orders",
			ObjectID:       "1",
			Status:         es.StatusActive,
			ActiveVersion:  3,
		}))

		info, err := store.Get(ctx, "Orders", "1")
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, es.StatusActive, info.Status)
		assert.Equal(t, 3, info.ActiveVersion)
		assert.Nil(t, info.Rebuild)
		assert.Nil(t, info.Token)
	})

	t.Run("list by status", func(t *testing.T) {
		for _, e := range []struct {
			id     string
			status es.ProjectionStatus
		}{
			{"b", es.StatusRebuilding},
			{"a", es.StatusCatchingUp},
			{"c", es.StatusFailed},
		} {
			require.NoError(t, store.Put(ctx, &es.StatusInfo{
				ProjectionName: "Listed",
				ObjectID:       e.id,
				Status:         e.status,
			}))
		}

		list, err := store.ListByStatus(ctx, es.StatusRebuilding, es.StatusCatchingUp)
		require.NoError(t, err)
		ids := []string{}
		for _, info := range list {
			ids = append(ids, info.ProjectionName+"/"+info.ObjectID)
		}
		assert.Equal(t, []string{"Listed/a", "Listed/b"}, ids)

		none, err := store.ListByStatus(ctx)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// ObjectIDProviderSuite checks paging over a provider seeded with
// "order" ids 1 to 5 and no "invoice" ids
func ObjectIDProviderSuite(t *testing.T, provider es.ObjectIDProvider) {
	ctx := context.Background()

	t.Run("pages in order", func(t *testing.T) {
		ids := []string{}
		token := ""
		pages := 0
		for {
			page, err := provider.GetObjectIDs(ctx, "order", token, 2)
			require.NoError(t, err)
			ids = append(ids, page.IDs...)
			pages++
			if page.ContinuationToken == "" {
				break
			}
			token = page.ContinuationToken
		}
		assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
		assert.Equal(t, 3, pages)
	})

	t.Run("exact page has no continuation", func(t *testing.T) {
		page, err := provider.GetObjectIDs(ctx, "order", "", 5)
		require.NoError(t, err)
		assert.Len(t, page.IDs, 5)
		assert.Empty(t, page.ContinuationToken)
	})

	t.Run("count", func(t *testing.T) {
		n, err := provider.Count(ctx, "order")
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		n, err = provider.Count(ctx, "invoice")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("unknown object name", func(t *testing.T) {
		page, err := provider.GetObjectIDs(ctx, "invoice", "", 10)
		require.NoError(t, err)
		assert.Empty(t, page.IDs)
		assert.Empty(t, page.ContinuationToken)
	})
}

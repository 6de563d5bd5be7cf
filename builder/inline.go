package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/contextgg/go-projections/es"
)

// ErrEventWithoutObject when an event does not name its owning object
var ErrEventWithoutObject = errors.New("event metadata does not name an object")

// InlineUpdater folds live events into the active version of a projection
// while its status allows inline updates
type InlineUpdater struct {
	client    *Client
	documents es.DocumentFactory
}

var _ es.EventHandler = (*InlineUpdater)(nil)

// InlineUpdater creates the event handler for live updates
func (c *Client) InlineUpdater(documents es.DocumentFactory) *InlineUpdater {
	return &InlineUpdater{
		client:    c,
		documents: documents,
	}
}

// HandleEvent implements es.EventHandler
func (u *InlineUpdater) HandleEvent(ctx context.Context, evt *es.Event) error {
	obj, ok := evt.Object()
	if !ok {
		return ErrEventWithoutObject
	}

	name := u.client.factory.TypeName()
	logger := log.
		With().
		Str("projection", name).
		Str("objectid", obj.ObjectID).
		Str("event", evt.String()).
		Logger()

	info, err := u.client.Coordinator.GetStatus(ctx, name, obj.ObjectID)
	if err != nil {
		return err
	}
	if info != nil && !info.Status.ShouldProcessInlineUpdates() {
		logger.
			Debug().
			Str("status", info.Status.String()).
			Msg("Skipping inline update")
		return nil
	}

	meta, err := u.client.Loader.GetVersionMetadata(ctx, obj.ObjectID)
	if err != nil {
		return err
	}
	doc, err := u.documents.Get(ctx, obj.ObjectName, obj.ObjectID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document %s not found", obj)
	}

	versionName := es.VersionName(name, meta.ActiveVersion)
	p, err := u.client.factory.GetOrCreate(ctx, obj.ObjectID, versionName)
	if err != nil {
		return err
	}
	applied, err := p.Fold(ctx, doc, evt)
	if err != nil {
		logger.
			Error().
			Err(err).
			Msg("Could not fold event")
		return err
	}
	if !applied {
		return nil
	}
	return u.client.factory.Save(ctx, p, versionName)
}

package es

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Destination is a sub projection a routed projection folds into. It is
// persisted with its parent.
type Destination interface {
	Fold(ctx context.Context, doc *Document, evt *Event) (bool, error)
	Checkpoint() *Checkpoint
	Snapshot() *ProjectionSnapshot
	Restore(*ProjectionSnapshot)
	ReadModel() interface{}
}

// DestinationCreator recreates a persisted destination when its parent is loaded
type DestinationCreator func(key string, meta *DestinationMetadata) Destination

// DestinationMetadata describes one destination of a routed projection
type DestinationMetadata struct {
	TypeName              string            `json:"type_name" bson:"type_name"`
	CreatedAt             time.Time         `json:"created_at" bson:"created_at"`
	LastModified          time.Time         `json:"last_modified" bson:"last_modified"`
	CheckpointFingerprint string            `json:"checkpoint_fingerprint,omitempty" bson:"checkpoint_fingerprint,omitempty"`
	System                map[string]string `json:"system,omitempty" bson:"system,omitempty"`
	User                  map[string]string `json:"user,omitempty" bson:"user,omitempty"`
}

// DestinationRegistry tracks the destinations of a routed projection
type DestinationRegistry struct {
	Destinations map[string]*DestinationMetadata `json:"destinations" bson:"destinations"`
	LastUpdated  time.Time                       `json:"last_updated" bson:"last_updated"`
}

// DestinationState is the persisted bookkeeping and read model of one destination
type DestinationState struct {
	Snapshot *ProjectionSnapshot `json:"snapshot" bson:"snapshot"`
	State    []byte              `json:"state,omitempty" bson:"state,omitempty"`
}

// RoutedSnapshot is stored with the snapshot of a routed projection
type RoutedSnapshot struct {
	Registry     DestinationRegistry          `json:"registry" bson:"registry"`
	Destinations map[string]*DestinationState `json:"destinations,omitempty" bson:"destinations,omitempty"`
}

type dispatch struct {
	fc      *FoldContext
	touched map[string]struct{}
}

// RoutedProjection fans a single event out to a dynamic set of keyed destinations
type RoutedProjection struct {
	BaseProjection

	registry     DestinationRegistry
	destinations map[string]Destination
	// restored but not yet recreated
	pending map[string]*DestinationState
	creator DestinationCreator
	current *dispatch
	clock   func() time.Time
}

// InitializeRouted sets up the base projection and the routing middleware
func (r *RoutedProjection) InitializeRouted(name, objectID string, codeSchemaVersion int) {
	r.Initialize(name, objectID, codeSchemaVersion)
	r.registry = DestinationRegistry{
		Destinations: make(map[string]*DestinationMetadata),
	}
	r.destinations = make(map[string]Destination)
	r.pending = make(map[string]*DestinationState)
	r.Use(r.route)
}

// SetDestinationCreator recreates every persisted destination on Restore.
// Without one a destination comes back when AddDestination names it again.
func (r *RoutedProjection) SetDestinationCreator(creator DestinationCreator) {
	r.creator = creator
}

// SetClock replaces the time source
func (r *RoutedProjection) SetClock(clock func() time.Time) {
	r.clock = clock
}

func (r *RoutedProjection) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return GetTimestamp()
}

func (r *RoutedProjection) route(next FoldHandler) FoldHandler {
	return func(ctx context.Context, fc *FoldContext) error {
		r.current = &dispatch{
			fc:      fc,
			touched: make(map[string]struct{}),
		}
		defer func() { r.current = nil }()

		if err := next(ctx, fc); err != nil {
			return err
		}

		now := r.now()
		for key := range r.current.touched {
			meta := r.registry.Destinations[key]
			meta.LastModified = now
			meta.CheckpointFingerprint = r.destinations[key].Checkpoint().Fingerprint()
		}
		r.registry.LastUpdated = now
		return nil
	}
}

// Registry returns the destination registry
func (r *RoutedProjection) Registry() DestinationRegistry {
	return r.registry
}

// RestoreRegistry loads a persisted registry
func (r *RoutedProjection) RestoreRegistry(registry DestinationRegistry) {
	if registry.Destinations == nil {
		registry.Destinations = make(map[string]*DestinationMetadata)
	}
	r.registry = registry
}

// Snapshot adds the registry and every destination to the base snapshot
func (r *RoutedProjection) Snapshot() *ProjectionSnapshot {
	s := r.BaseProjection.Snapshot()
	routes := &RoutedSnapshot{
		Registry: DestinationRegistry{
			Destinations: make(map[string]*DestinationMetadata, len(r.registry.Destinations)),
			LastUpdated:  r.registry.LastUpdated,
		},
		Destinations: make(map[string]*DestinationState, len(r.registry.Destinations)),
	}
	for key, meta := range r.registry.Destinations {
		if meta == nil {
			continue
		}
		m := *meta
		routes.Registry.Destinations[key] = &m
	}
	for key, state := range r.pending {
		routes.Destinations[key] = state
	}
	for key, dest := range r.destinations {
		routes.Destinations[key] = r.destinationState(key, dest)
	}
	s.Routes = routes
	return s
}

func (r *RoutedProjection) destinationState(key string, dest Destination) *DestinationState {
	state := &DestinationState{Snapshot: dest.Snapshot()}
	model := dest.ReadModel()
	if model == nil {
		return state
	}
	blob, err := json.Marshal(model)
	if err != nil {
		log.
			Error().
			Err(err).
			Str("projection", r.Name()).
			Str("destination", key).
			Msg("Could not marshal destination state")
		return state
	}
	state.State = blob
	return state
}

// Restore loads the base snapshot, the registry and the destination states
func (r *RoutedProjection) Restore(s *ProjectionSnapshot) {
	if s == nil {
		return
	}
	r.BaseProjection.Restore(s)
	r.destinations = make(map[string]Destination)
	r.pending = make(map[string]*DestinationState)
	if s.Routes == nil {
		r.RestoreRegistry(DestinationRegistry{})
		return
	}

	registry := DestinationRegistry{
		Destinations: make(map[string]*DestinationMetadata, len(s.Routes.Registry.Destinations)),
		LastUpdated:  s.Routes.Registry.LastUpdated,
	}
	for key, meta := range s.Routes.Registry.Destinations {
		if meta == nil {
			continue
		}
		m := *meta
		registry.Destinations[key] = &m
	}
	r.RestoreRegistry(registry)
	for key, state := range s.Routes.Destinations {
		r.pending[key] = state
	}

	if r.creator == nil {
		return
	}
	for key, meta := range r.registry.Destinations {
		if err := r.recreate(key, func() Destination { return r.creator(key, meta) }); err != nil {
			log.
				Error().
				Err(err).
				Str("projection", r.Name()).
				Str("destination", key).
				Msg("Could not restore destination")
		}
	}
}

// recreate builds a registered destination and loads its persisted state
func (r *RoutedProjection) recreate(key string, create func() Destination) error {
	dest := create()
	if state, ok := r.pending[key]; ok && state != nil {
		dest.Restore(state.Snapshot)
		if model := dest.ReadModel(); model != nil && len(state.State) > 0 {
			if err := json.Unmarshal(state.State, model); err != nil {
				return err
			}
		}
	}
	delete(r.pending, key)
	r.destinations[key] = dest
	return nil
}

// Destination returns the live destination for a key
func (r *RoutedProjection) Destination(key string) (Destination, bool) {
	d, ok := r.destinations[key]
	return d, ok
}

// Destinations returns the live destinations keyed by name
func (r *RoutedProjection) Destinations() map[string]Destination {
	return r.destinations
}

// AddDestination registers a destination. It can only be called while an
// event is being dispatched; adding an existing key does nothing.
func (r *RoutedProjection) AddDestination(key string, create func() Destination, metadata map[string]string) error {
	if r.current == nil {
		return &InvalidOperationError{
			Op:  "AddDestination",
			Msg: "destinations can only be added while dispatching an event",
		}
	}
	if _, ok := r.destinations[key]; ok {
		return nil
	}
	if _, ok := r.registry.Destinations[key]; ok {
		return r.recreate(key, create)
	}

	dest := create()
	_, typeName := GetTypeName(dest)
	now := r.now()

	r.destinations[key] = dest
	r.registry.Destinations[key] = &DestinationMetadata{
		TypeName:     typeName,
		CreatedAt:    now,
		LastModified: now,
		System: map[string]string{
			"parent":    r.Name(),
			"object_id": r.ObjectID(),
		},
		User: metadata,
	}
	return nil
}

// RouteToDestination folds the current event, or evt when given, into a destination
func (r *RoutedProjection) RouteToDestination(ctx context.Context, key string, evt *Event) error {
	if r.current == nil {
		return &InvalidOperationError{
			Op:  "RouteToDestination",
			Msg: "routing is only possible while dispatching an event",
		}
	}
	dest, ok := r.destinations[key]
	if !ok {
		return &InvalidOperationError{
			Op:  "RouteToDestination",
			Msg: "destination " + key + " does not exist",
		}
	}

	if evt == nil {
		evt = r.current.fc.Event
	}
	if _, err := dest.Fold(ctx, r.current.fc.Document, evt); err != nil {
		return err
	}
	r.current.touched[key] = struct{}{}
	return nil
}

// RouteToDestinations routes the current event to each key in order
func (r *RoutedProjection) RouteToDestinations(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := r.RouteToDestination(ctx, key, nil); err != nil {
			return err
		}
	}
	return nil
}

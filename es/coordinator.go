package es

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// StatusInfo is what the coordinator records per projection and object id
type StatusInfo struct {
	ProjectionName  string           `json:"projection_name" bson:"projection_name"`
	ObjectID        string           `json:"object_id" bson:"object_id"`
	Status          ProjectionStatus `json:"status" bson:"status"`
	StatusChangedAt time.Time        `json:"status_changed_at" bson:"status_changed_at"`
	ActiveVersion   int              `json:"active_version" bson:"active_version"`
	Rebuild         *RebuildInfo     `json:"rebuild,omitempty" bson:"rebuild,omitempty"`
	Token           *RebuildToken    `json:"token,omitempty" bson:"token,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at" bson:"updated_at"`
}

func (i *StatusInfo) lifecycleState() LifecycleState {
	return LifecycleState{
		Status:          i.Status,
		StatusChangedAt: i.StatusChangedAt,
		Rebuild:         i.Rebuild,
	}
}

// ProjectionStatusChanged is published whenever the coordinator moves a projection
type ProjectionStatusChanged struct {
	ProjectionName string           `json:"projection_name"`
	ObjectID       string           `json:"object_id"`
	From           ProjectionStatus `json:"from"`
	To             ProjectionStatus `json:"to"`
	Reason         string           `json:"reason,omitempty"`
}

// StatusCoordinator tracks projection status across process boundaries
type StatusCoordinator interface {
	StartRebuild(ctx context.Context, projectionName, objectID string, strategy RebuildStrategy, timeout time.Duration) (*RebuildToken, error)
	StartCatchUp(ctx context.Context, token *RebuildToken) error
	MarkReady(ctx context.Context, token *RebuildToken) error
	CompleteRebuild(ctx context.Context, token *RebuildToken) error
	CancelRebuild(ctx context.Context, token *RebuildToken, reason string) error
	Disable(ctx context.Context, projectionName, objectID string) error
	Enable(ctx context.Context, projectionName, objectID string) error
	GetStatus(ctx context.Context, projectionName, objectID string) (*StatusInfo, error)
	GetByStatus(ctx context.Context, status ProjectionStatus) ([]*StatusInfo, error)
	RecoverStuckRebuilds(ctx context.Context) (int, error)
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithEventBus publishes ProjectionStatusChanged events on the bus
func WithEventBus(bus EventBus) CoordinatorOption {
	return func(c *Coordinator) {
		c.bus = bus
	}
}

// WithClock replaces the time source
func WithClock(clock func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// Coordinator implements StatusCoordinator on top of a StatusStore
type Coordinator struct {
	mu    sync.Mutex
	store StatusStore
	bus   EventBus
	clock func() time.Time
}

var _ StatusCoordinator = (*Coordinator)(nil)

// NewCoordinator creates a coordinator over a store
func NewCoordinator(store StatusStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store: store,
		clock: GetTimestamp,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) load(ctx context.Context, projectionName, objectID string) (*StatusInfo, *Lifecycle, error) {
	info, err := c.store.Get(ctx, projectionName, objectID)
	if err != nil {
		return nil, nil, err
	}
	if info == nil {
		info = &StatusInfo{
			ProjectionName: projectionName,
			ObjectID:       objectID,
			Status:         StatusActive,
			ActiveVersion:  1,
		}
	}
	lc := RestoreLifecycle(info.lifecycleState())
	lc.SetClock(c.clock)
	return info, lc, nil
}

func (c *Coordinator) authorize(ctx context.Context, token *RebuildToken) (*StatusInfo, *Lifecycle, error) {
	if token == nil {
		return nil, nil, &UnknownTokenError{}
	}
	info, lc, err := c.load(ctx, token.ProjectionName, token.ObjectID)
	if err != nil {
		return nil, nil, err
	}
	if info.Token == nil || info.Token.Token != token.Token {
		return nil, nil, &UnknownTokenError{
			ProjectionName: token.ProjectionName,
			ObjectID:       token.ObjectID,
			Token:          token.Token,
		}
	}
	return info, lc, nil
}

func (c *Coordinator) save(ctx context.Context, info *StatusInfo, lc *Lifecycle, reason string) error {
	from := info.Status
	state := lc.State()
	info.Status = state.Status
	info.StatusChangedAt = state.StatusChangedAt
	info.Rebuild = state.Rebuild
	info.UpdatedAt = c.clock()

	logger := log.
		With().
		Str("projection", info.ProjectionName).
		Str("objectid", info.ObjectID).
		Str("from", from.String()).
		Str("to", info.Status.String()).
		Logger()

	if err := c.store.Put(ctx, info); err != nil {
		logger.
			Error().
			Err(err).
			Msg("Could not save projection status")
		return err
	}
	if from == info.Status {
		return nil
	}

	logger.
		Info().
		Str("reason", reason).
		Msg("Projection status changed")

	if c.bus == nil {
		return nil
	}
	evt := NewEvent(&ProjectionStatusChanged{
		ProjectionName: info.ProjectionName,
		ObjectID:       info.ObjectID,
		From:           from,
		To:             info.Status,
		Reason:         reason,
	})
	evt.StreamID = info.ProjectionName + tokenSeparator + info.ObjectID
	if err := c.bus.PublishEvent(ctx, evt); err != nil {
		logger.
			Warn().
			Err(err).
			Msg("Could not publish status change")
	}
	return nil
}

// StartRebuild moves a projection to Rebuilding and returns the token that
// authenticates the later steps of the rebuild
func (c *Coordinator) StartRebuild(ctx context.Context, projectionName, objectID string, strategy RebuildStrategy, timeout time.Duration) (*RebuildToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, lc, err := c.load(ctx, projectionName, objectID)
	if err != nil {
		return nil, err
	}
	if info.ActiveVersion < 1 {
		info.ActiveVersion = 1
	}
	if err := lc.StartRebuild(strategy, info.ActiveVersion, ""); err != nil {
		return nil, err
	}

	token := NewRebuildToken(projectionName, objectID, strategy, timeout, c.clock())
	info.Token = token
	if err := c.save(ctx, info, lc, "rebuild started"); err != nil {
		return nil, err
	}
	return token, nil
}

// StartCatchUp moves a rebuilding projection to CatchingUp
func (c *Coordinator) StartCatchUp(ctx context.Context, token *RebuildToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, lc, err := c.authorize(ctx, token)
	if err != nil {
		return err
	}
	if err := lc.StartCatchUp(); err != nil {
		return err
	}
	return c.save(ctx, info, lc, "catch up started")
}

// MarkReady moves a rebuilding or catching up projection to Ready
func (c *Coordinator) MarkReady(ctx context.Context, token *RebuildToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, lc, err := c.authorize(ctx, token)
	if err != nil {
		return err
	}
	if err := lc.MarkReady(); err != nil {
		return err
	}
	return c.save(ctx, info, lc, "rebuild ready")
}

// CompleteRebuild activates the rebuilt projection. A blue green rebuild
// promotes the new version.
func (c *Coordinator) CompleteRebuild(ctx context.Context, token *RebuildToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, lc, err := c.authorize(ctx, token)
	if err != nil {
		return err
	}
	if lc.Status().IsRebuilding() {
		if err := lc.MarkReady(); err != nil {
			return err
		}
	}
	if err := lc.Activate(); err != nil {
		return err
	}

	if token.Strategy == BlueGreen && info.Rebuild != nil {
		info.ActiveVersion = info.Rebuild.SourceVersion + 1
	}
	info.Token = nil
	return c.save(ctx, info, lc, "rebuild completed")
}

// CancelRebuild fails the rebuild when a reason is given, otherwise it
// returns the projection to Active
func (c *Coordinator) CancelRebuild(ctx context.Context, token *RebuildToken, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, lc, err := c.authorize(ctx, token)
	if err != nil {
		return err
	}
	if reason != "" {
		err = lc.MarkFailed(reason)
	} else {
		err = lc.AbortRebuild()
	}
	if err != nil {
		return err
	}

	info.Token = nil
	return c.save(ctx, info, lc, "rebuild cancelled")
}

// Disable stops a projection from serving or processing
func (c *Coordinator) Disable(ctx context.Context, projectionName, objectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, lc, err := c.load(ctx, projectionName, objectID)
	if err != nil {
		return err
	}
	lc.Disable()
	return c.save(ctx, info, lc, "disabled")
}

// Enable returns a disabled projection to Active
func (c *Coordinator) Enable(ctx context.Context, projectionName, objectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, lc, err := c.load(ctx, projectionName, objectID)
	if err != nil {
		return err
	}
	if err := lc.Enable(); err != nil {
		return err
	}
	return c.save(ctx, info, lc, "enabled")
}

// GetStatus returns nil when nothing was recorded
func (c *Coordinator) GetStatus(ctx context.Context, projectionName, objectID string) (*StatusInfo, error) {
	return c.store.Get(ctx, projectionName, objectID)
}

// GetByStatus returns every entry in the given status
func (c *Coordinator) GetByStatus(ctx context.Context, status ProjectionStatus) ([]*StatusInfo, error) {
	return c.store.ListByStatus(ctx, status)
}

// RecoverStuckRebuilds fails every in-progress rebuild whose token expired
// and returns how many were recovered
func (c *Coordinator) RecoverStuckRebuilds(ctx context.Context) (int, error) {
	stuck, err := c.store.ListByStatus(ctx, StatusRebuilding, StatusCatchingUp, StatusReady)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, candidate := range stuck {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		if candidate.Token == nil || !candidate.Token.IsExpired(c.clock()) {
			continue
		}

		ok, err := c.recover(ctx, candidate)
		if err != nil {
			return recovered, err
		}
		if ok {
			recovered++
		}
	}
	return recovered, nil
}

func (c *Coordinator) recover(ctx context.Context, candidate *StatusInfo) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// re-read so a rebuild failed or restarted meanwhile is left alone
	info, lc, err := c.load(ctx, candidate.ProjectionName, candidate.ObjectID)
	if err != nil {
		return false, err
	}
	if !info.Status.IsTransitioning() || info.Token == nil || info.Token.Token != candidate.Token.Token {
		return false, nil
	}

	reason := fmt.Sprintf("rebuild timed out: token expired at %s", info.Token.ExpiresAt.Format(time.RFC3339))
	if err := lc.MarkFailed(reason); err != nil {
		return false, err
	}
	token := info.Token.Token
	info.Token = nil

	log.
		Warn().
		Str("projection", info.ProjectionName).
		Str("objectid", info.ObjectID).
		Str("token", token).
		Msg("Recovered stuck rebuild")

	if err := c.save(ctx, info, lc, reason); err != nil {
		return false, err
	}
	return true, nil
}

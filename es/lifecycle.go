package es

import "time"

// LifecycleState is the persisted form of a Lifecycle
type LifecycleState struct {
	Status          ProjectionStatus `json:"status" bson:"status"`
	StatusChangedAt time.Time        `json:"status_changed_at" bson:"status_changed_at"`
	Rebuild         *RebuildInfo     `json:"rebuild,omitempty" bson:"rebuild,omitempty"`
}

// Lifecycle guards the status transitions of a projection
type Lifecycle struct {
	status    ProjectionStatus
	changedAt time.Time
	rebuild   *RebuildInfo

	clock func() time.Time
}

// NewLifecycle starts in the Active state
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// RestoreLifecycle loads a lifecycle from its persisted state
func RestoreLifecycle(state LifecycleState) *Lifecycle {
	l := &Lifecycle{
		status:    state.Status,
		changedAt: state.StatusChangedAt,
	}
	if state.Rebuild != nil {
		r := *state.Rebuild
		l.rebuild = &r
	}
	return l
}

// SetClock replaces the time source
func (l *Lifecycle) SetClock(clock func() time.Time) {
	l.clock = clock
}

func (l *Lifecycle) now() time.Time {
	if l.clock != nil {
		return l.clock()
	}
	return GetTimestamp()
}

// Status returns the current status
func (l *Lifecycle) Status() ProjectionStatus {
	return l.status
}

// StatusChangedAt returns when the status last changed
func (l *Lifecycle) StatusChangedAt() time.Time {
	return l.changedAt
}

// RebuildInfo returns a copy of the rebuild bookkeeping, nil if none
func (l *Lifecycle) RebuildInfo() *RebuildInfo {
	if l.rebuild == nil {
		return nil
	}
	r := *l.rebuild
	return &r
}

// State returns the persisted form
func (l *Lifecycle) State() LifecycleState {
	return LifecycleState{
		Status:          l.status,
		StatusChangedAt: l.changedAt,
		Rebuild:         l.RebuildInfo(),
	}
}

func (l *Lifecycle) set(status ProjectionStatus) {
	if l.status == status {
		return
	}
	l.status = status
	l.changedAt = l.now()
}

func (l *Lifecycle) require(to ProjectionStatus, allowed ...ProjectionStatus) error {
	for _, s := range allowed {
		if l.status == s {
			return nil
		}
	}
	return &InvalidStateTransitionError{From: l.status, To: to}
}

// StartRebuild moves Active (or Failed, to retry) to Rebuilding
func (l *Lifecycle) StartRebuild(strategy RebuildStrategy, sourceVersion int, fingerprint string) error {
	if err := l.require(StatusRebuilding, StatusActive, StatusFailed); err != nil {
		return err
	}
	info := StartRebuildInfo(strategy, sourceVersion, fingerprint, l.now())
	l.rebuild = &info
	l.set(StatusRebuilding)
	return nil
}

// StartCatchUp moves Rebuilding to CatchingUp
func (l *Lifecycle) StartCatchUp() error {
	if err := l.require(StatusCatchingUp, StatusRebuilding); err != nil {
		return err
	}
	l.progress("")
	l.set(StatusCatchingUp)
	return nil
}

// RecordProgress stamps the rebuild with a progress update
func (l *Lifecycle) RecordProgress(fingerprint string) {
	l.progress(fingerprint)
}

func (l *Lifecycle) progress(fingerprint string) {
	if l.rebuild == nil {
		return
	}
	next := l.rebuild.WithProgress(fingerprint, l.now())
	l.rebuild = &next
}

// MarkReady moves Rebuilding or CatchingUp to Ready
func (l *Lifecycle) MarkReady() error {
	if err := l.require(StatusReady, StatusRebuilding, StatusCatchingUp); err != nil {
		return err
	}
	if l.rebuild != nil {
		next := l.rebuild.WithCompletion(l.now())
		l.rebuild = &next
	}
	l.set(StatusReady)
	return nil
}

// Activate moves Ready to Active
func (l *Lifecycle) Activate() error {
	if err := l.require(StatusActive, StatusReady); err != nil {
		return err
	}
	l.set(StatusActive)
	return nil
}

// AbortRebuild drops an in-flight rebuild and returns to Active
func (l *Lifecycle) AbortRebuild() error {
	if !l.status.IsTransitioning() {
		return &InvalidStateTransitionError{From: l.status, To: StatusActive}
	}
	l.set(StatusActive)
	return nil
}

// Archive is legal from any state
func (l *Lifecycle) Archive() {
	l.set(StatusArchived)
}

// Disable is legal from any state
func (l *Lifecycle) Disable() {
	l.set(StatusDisabled)
}

// Enable moves Disabled back to Active
func (l *Lifecycle) Enable() error {
	if err := l.require(StatusActive, StatusDisabled); err != nil {
		return err
	}
	l.set(StatusActive)
	return nil
}

// MarkFailed records the reason on the rebuild and moves to Failed
func (l *Lifecycle) MarkFailed(reason string) error {
	if l.rebuild == nil {
		return &InvalidStateTransitionError{From: l.status, To: StatusFailed}
	}
	next := l.rebuild.WithError(reason, l.now())
	l.rebuild = &next
	l.set(StatusFailed)
	return nil
}

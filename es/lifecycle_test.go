package es

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestLifecycle(status ProjectionStatus) (*Lifecycle, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	state := LifecycleState{Status: status}
	if status != StatusActive {
		info := StartRebuildInfo(BlockingWithCatchUp, 1, "", clock.now)
		state.Rebuild = &info
	}
	l := RestoreLifecycle(state)
	l.SetClock(clock.Now)
	return l, clock
}

func TestStartCatchUpOnlyFromRebuilding(t *testing.T) {
	for _, status := range AllStatuses() {
		t.Run(status.String(), func(t *testing.T) {
			l, _ := newTestLifecycle(status)
			err := l.StartCatchUp()
			if status == StatusRebuilding {
				require.NoError(t, err)
				assert.Equal(t, StatusCatchingUp, l.Status())
				return
			}

			var transition *InvalidStateTransitionError
			require.True(t, errors.As(err, &transition))
			assert.Equal(t, status, transition.From)
			assert.Equal(t, StatusCatchingUp, transition.To)
			assert.Contains(t, err.Error(), status.String())
			assert.Equal(t, status, l.Status())
		})
	}
}

func TestTransitions(t *testing.T) {
	data := []struct {
		name  string
		from  ProjectionStatus
		apply func(l *Lifecycle) error
		to    ProjectionStatus
		fails bool
	}{
		{"rebuild from active", StatusActive, func(l *Lifecycle) error { return l.StartRebuild(BlueGreen, 1, "fp") }, StatusRebuilding, false},
		{"rebuild from failed", StatusFailed, func(l *Lifecycle) error { return l.StartRebuild(BlueGreen, 1, "fp") }, StatusRebuilding, false},
		{"rebuild from ready", StatusReady, func(l *Lifecycle) error { return l.StartRebuild(BlueGreen, 1, "fp") }, StatusReady, true},
		{"ready from rebuilding", StatusRebuilding, (*Lifecycle).MarkReady, StatusReady, false},
		{"ready from catching up", StatusCatchingUp, (*Lifecycle).MarkReady, StatusReady, false},
		{"ready from active", StatusActive, (*Lifecycle).MarkReady, StatusActive, true},
		{"activate from ready", StatusReady, (*Lifecycle).Activate, StatusActive, false},
		{"activate from rebuilding", StatusRebuilding, (*Lifecycle).Activate, StatusRebuilding, true},
		{"enable from disabled", StatusDisabled, (*Lifecycle).Enable, StatusActive, false},
		{"enable from failed", StatusFailed, (*Lifecycle).Enable, StatusFailed, true},
		{"abort from catching up", StatusCatchingUp, (*Lifecycle).AbortRebuild, StatusActive, false},
		{"abort from active", StatusActive, (*Lifecycle).AbortRebuild, StatusActive, true},
		{"archive from rebuilding", StatusRebuilding, func(l *Lifecycle) error { l.Archive(); return nil }, StatusArchived, false},
		{"disable from ready", StatusReady, func(l *Lifecycle) error { l.Disable(); return nil }, StatusDisabled, false},
		{"fail from catching up", StatusCatchingUp, func(l *Lifecycle) error { return l.MarkFailed("boom") }, StatusFailed, false},
		{"fail without rebuild", StatusActive, func(l *Lifecycle) error { return l.MarkFailed("boom") }, StatusActive, true},
	}

	for _, tt := range data {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLifecycle(tt.from)
			err := tt.apply(l)
			if tt.fails {
				var transition *InvalidStateTransitionError
				assert.True(t, errors.As(err, &transition))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.to, l.Status())
		})
	}
}

func TestStatusChangedAt(t *testing.T) {
	l, clock := newTestLifecycle(StatusActive)

	clock.Advance(time.Minute)
	l.Disable()
	changed := l.StatusChangedAt()
	assert.Equal(t, clock.now, changed)

	clock.Advance(time.Minute)
	l.Disable()
	assert.Equal(t, changed, l.StatusChangedAt())
}

func TestRebuildBookkeeping(t *testing.T) {
	l, clock := newTestLifecycle(StatusActive)

	require.NoError(t, l.StartRebuild(BlueGreen, 2, "fingerprint"))
	started := l.RebuildInfo()
	require.NotNil(t, started)
	assert.Equal(t, BlueGreen, started.Strategy)
	assert.Equal(t, 2, started.SourceVersion)
	assert.Equal(t, "fingerprint", started.SourceCheckpointFingerprint)
	assert.False(t, started.IsCompleted())

	clock.Advance(time.Minute)
	require.NoError(t, l.StartCatchUp())
	clock.Advance(time.Minute)
	require.NoError(t, l.MarkReady())

	done := l.RebuildInfo()
	require.True(t, done.IsCompleted())
	assert.Equal(t, clock.now, *done.CompletedAt)

	// earlier copies are untouched
	assert.False(t, started.IsCompleted())
	assert.Equal(t, started.StartedAt, started.LastUpdatedAt)
}

func TestMarkFailedRecordsReason(t *testing.T) {
	l, _ := newTestLifecycle(StatusRebuilding)
	require.NoError(t, l.MarkFailed("out of memory"))

	assert.Equal(t, StatusFailed, l.Status())
	assert.Equal(t, "out of memory", l.RebuildInfo().Error)
}

func TestRebuildInfoWithIsCopy(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	start := StartRebuildInfo(BlockingWithCatchUp, 1, "a", at)

	progressed := start.WithProgress("b", at.Add(time.Second))
	failed := progressed.WithError("nope", at.Add(2*time.Second))

	assert.Equal(t, "a", start.SourceCheckpointFingerprint)
	assert.Equal(t, "b", progressed.SourceCheckpointFingerprint)
	assert.Empty(t, progressed.Error)
	assert.Equal(t, "nope", failed.Error)
	assert.Equal(t, at, start.LastUpdatedAt)
}

func TestRebuildTokenExpiry(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := NewRebuildToken("Orders", "1", BlueGreen, time.Minute, at)

	assert.NotEmpty(t, tk.Token)
	assert.False(t, tk.IsExpired(at.Add(time.Minute)))
	assert.True(t, tk.IsExpired(at.Add(time.Minute+time.Nanosecond)))

	other := NewRebuildToken("Orders", "1", BlueGreen, time.Minute, at)
	assert.NotEqual(t, tk.Token, other.Token)
}

package es

import (
	"fmt"
	"strings"
)

// ProjectionStatus is the lifecycle state of a projection instance
type ProjectionStatus int

// The zero value is Active
const (
	StatusActive ProjectionStatus = iota
	StatusRebuilding
	StatusDisabled
	StatusCatchingUp
	StatusReady
	StatusArchived
	StatusFailed
)

var statusNames = []string{
	"Active",
	"Rebuilding",
	"Disabled",
	"CatchingUp",
	"Ready",
	"Archived",
	"Failed",
}

// AllStatuses lists every status in declaration order
func AllStatuses() []ProjectionStatus {
	out := make([]ProjectionStatus, len(statusNames))
	for i := range statusNames {
		out[i] = ProjectionStatus(i)
	}
	return out
}

// String implements the Stringer interface
func (s ProjectionStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("ProjectionStatus(%d)", int(s))
	}
	return statusNames[s]
}

// ParseProjectionStatus matches a status name case-insensitively
func ParseProjectionStatus(name string) (ProjectionStatus, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return ProjectionStatus(i), nil
		}
	}
	return StatusActive, fmt.Errorf("unknown projection status %q", name)
}

// MarshalText writes the status name
func (s ProjectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText reads a status name
func (s *ProjectionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseProjectionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ShouldProcessInlineUpdates is only true when the projection is live
func (s ProjectionStatus) ShouldProcessInlineUpdates() bool {
	return s == StatusActive
}

// IsTransitioning is true while a rebuild is moving through its phases
func (s ProjectionStatus) IsTransitioning() bool {
	return s == StatusRebuilding || s == StatusCatchingUp || s == StatusReady
}

// IsQueryable is true when reads can be served
func (s ProjectionStatus) IsQueryable() bool {
	return s == StatusActive || s == StatusReady || s == StatusArchived
}

// NeedsAttention is true when an operator has to act
func (s ProjectionStatus) NeedsAttention() bool {
	return s == StatusFailed || s == StatusDisabled
}

// IsRebuilding is true while events are being replayed
func (s ProjectionStatus) IsRebuilding() bool {
	return s == StatusRebuilding || s == StatusCatchingUp
}

// IsTerminal is true for resting states
func (s ProjectionStatus) IsTerminal() bool {
	switch s {
	case StatusActive, StatusDisabled, StatusArchived, StatusFailed:
		return true
	}
	return false
}

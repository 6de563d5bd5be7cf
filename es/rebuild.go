package es

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RebuildStrategy decides how a projection is rebuilt
type RebuildStrategy int

const (
	// BlockingWithCatchUp rebuilds in place and catches up afterwards
	BlockingWithCatchUp RebuildStrategy = iota
	// BlueGreen builds a new version and promotes it once ready
	BlueGreen
)

// String implements the Stringer interface
func (s RebuildStrategy) String() string {
	switch s {
	case BlockingWithCatchUp:
		return "BlockingWithCatchUp"
	case BlueGreen:
		return "BlueGreen"
	}
	return fmt.Sprintf("RebuildStrategy(%d)", int(s))
}

// ParseRebuildStrategy matches a strategy name case-insensitively
func ParseRebuildStrategy(name string) (RebuildStrategy, error) {
	switch strings.ToLower(name) {
	case "blockingwithcatchup", "blocking":
		return BlockingWithCatchUp, nil
	case "bluegreen", "blue-green":
		return BlueGreen, nil
	}
	return BlockingWithCatchUp, fmt.Errorf("unknown rebuild strategy %q", name)
}

// MarshalText writes the strategy name
func (s RebuildStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText reads a strategy name
func (s *RebuildStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseRebuildStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RebuildInfo is the bookkeeping of one rebuild. It is a value; the With
// methods return a new copy so earlier snapshots stay intact.
type RebuildInfo struct {
	Strategy                    RebuildStrategy `json:"strategy" bson:"strategy"`
	SourceVersion               int             `json:"source_version" bson:"source_version"`
	SourceCheckpointFingerprint string          `json:"source_checkpoint_fingerprint" bson:"source_checkpoint_fingerprint"`
	StartedAt                   time.Time       `json:"started_at" bson:"started_at"`
	LastUpdatedAt               time.Time       `json:"last_updated_at" bson:"last_updated_at"`
	CompletedAt                 *time.Time      `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Error                       string          `json:"error,omitempty" bson:"error,omitempty"`
}

// StartRebuildInfo records the start of a rebuild
func StartRebuildInfo(strategy RebuildStrategy, sourceVersion int, fingerprint string, at time.Time) RebuildInfo {
	return RebuildInfo{
		Strategy:                    strategy,
		SourceVersion:               sourceVersion,
		SourceCheckpointFingerprint: fingerprint,
		StartedAt:                   at,
		LastUpdatedAt:               at,
	}
}

// WithProgress stamps a progress update
func (r RebuildInfo) WithProgress(fingerprint string, at time.Time) RebuildInfo {
	if fingerprint != "" {
		r.SourceCheckpointFingerprint = fingerprint
	}
	r.LastUpdatedAt = at
	return r
}

// WithCompletion stamps the completion time
func (r RebuildInfo) WithCompletion(at time.Time) RebuildInfo {
	r.CompletedAt = &at
	r.LastUpdatedAt = at
	return r
}

// WithError records why the rebuild failed
func (r RebuildInfo) WithError(reason string, at time.Time) RebuildInfo {
	r.Error = reason
	r.LastUpdatedAt = at
	return r
}

// IsCompleted returns true once a completion time was stamped
func (r RebuildInfo) IsCompleted() bool {
	return r.CompletedAt != nil
}

// RebuildToken identifies one in-flight rebuild
type RebuildToken struct {
	ProjectionName string          `json:"projection_name" bson:"projection_name"`
	ObjectID       string          `json:"object_id" bson:"object_id"`
	Token          string          `json:"token" bson:"token"`
	Strategy       RebuildStrategy `json:"strategy" bson:"strategy"`
	StartedAt      time.Time       `json:"started_at" bson:"started_at"`
	ExpiresAt      time.Time       `json:"expires_at" bson:"expires_at"`
}

// NewRebuildToken creates a token that expires after timeout
func NewRebuildToken(projectionName, objectID string, strategy RebuildStrategy, timeout time.Duration, now time.Time) *RebuildToken {
	return &RebuildToken{
		ProjectionName: projectionName,
		ObjectID:       objectID,
		Token:          uuid.New().String(),
		Strategy:       strategy,
		StartedAt:      now,
		ExpiresAt:      now.Add(timeout),
	}
}

// IsExpired returns true when now is past the expiry
func (t *RebuildToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

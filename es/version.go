package es

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// LatestVersion is the sentinel used for an unbounded upper position
	LatestVersion int64 = math.MaxInt64

	tokenSeparator = "__"
	versionDigits  = 20
)

// ObjectIdentifier identifies a single event stream owner
type ObjectIdentifier struct {
	ObjectName string `json:"object_name" bson:"object_name"`
	ObjectID   string `json:"object_id" bson:"object_id"`
}

// NewObjectIdentifier creates an identifier
func NewObjectIdentifier(objectName, objectID string) ObjectIdentifier {
	return ObjectIdentifier{
		ObjectName: objectName,
		ObjectID:   objectID,
	}
}

// String returns the stream key, e.g. order__1
func (o ObjectIdentifier) String() string {
	return o.ObjectName + tokenSeparator + o.ObjectID
}

// VersionIdentifier is a position inside a stream
type VersionIdentifier struct {
	StreamID string `json:"stream_id" bson:"stream_id"`
	Version  int64  `json:"version" bson:"version"`
}

// NewVersionIdentifier creates a version identifier
func NewVersionIdentifier(streamID string, version int64) VersionIdentifier {
	return VersionIdentifier{
		StreamID: streamID,
		Version:  version,
	}
}

// String implements the Stringer interface
func (v VersionIdentifier) String() string {
	return fmt.Sprintf("%s:%d", v.StreamID, v.Version)
}

// VersionToken identifies how far into a stream something has seen
type VersionToken struct {
	Object  ObjectIdentifier
	Version VersionIdentifier

	// Latest marks the token as the unbounded upper sentinel
	Latest bool
}

// NewVersionToken creates a concrete token
func NewVersionToken(object ObjectIdentifier, version VersionIdentifier) *VersionToken {
	return &VersionToken{
		Object:  object,
		Version: version,
	}
}

// LatestVersionToken creates a token representing the end of a stream
func LatestVersionToken(object ObjectIdentifier, streamID string) *VersionToken {
	return &VersionToken{
		Object:  object,
		Version: NewVersionIdentifier(streamID, LatestVersion),
		Latest:  true,
	}
}

func (t *VersionToken) number() int64 {
	if t.Latest {
		return LatestVersion
	}
	return t.Version.Version
}

// String returns the canonical form
// {objectName}__{objectId}__{streamId}__{version padded to 20 digits}
func (t *VersionToken) String() string {
	return strings.Join([]string{
		t.Object.ObjectName,
		t.Object.ObjectID,
		t.Version.StreamID,
		fmt.Sprintf("%0*d", versionDigits, t.number()),
	}, tokenSeparator)
}

// ParseVersionToken reads a token from its canonical form.
// The object id may itself contain the separator.
func ParseVersionToken(s string) (*VersionToken, error) {
	parts := strings.Split(s, tokenSeparator)
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersionToken, s)
	}

	last := len(parts) - 1
	raw := parts[last]
	if len(raw) != versionDigits {
		return nil, fmt.Errorf("%w: version %q is not %d digits", ErrInvalidVersionToken, raw, versionDigits)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidVersionToken, raw)
	}

	token := &VersionToken{
		Object: NewObjectIdentifier(
			parts[0],
			strings.Join(parts[1:last-1], tokenSeparator),
		),
		Version: NewVersionIdentifier(parts[last-1], version),
		Latest:  version == LatestVersion,
	}
	return token, nil
}

// Compare orders two tokens on the same object by version.
// A nil token sorts before any concrete token.
func Compare(a, b *VersionToken) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}

	if !strings.EqualFold(a.Object.ObjectName, b.Object.ObjectName) {
		return 0, &ComparisonError{
			Left:  a.Object.ObjectName,
			Right: b.Object.ObjectName,
		}
	}

	av, bv := a.number(), b.number()
	switch {
	case av < bv:
		return -1, nil
	case av > bv:
		return 1, nil
	}
	return 0, nil
}

// IsNewer returns true when there is no existing token or the candidate is after it
func IsNewer(candidate, existing *VersionToken) (bool, error) {
	if existing == nil {
		return true, nil
	}
	c, err := Compare(candidate, existing)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

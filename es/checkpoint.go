package es

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CheckpointEntry is one stream the projection has consumed
type CheckpointEntry struct {
	Object  ObjectIdentifier  `json:"object" bson:"object"`
	Version VersionIdentifier `json:"version" bson:"version"`
}

func (e CheckpointEntry) fingerprintPart() string {
	return fmt.Sprintf("%s_%s=%s:%d",
		e.Object.ObjectName,
		e.Object.ObjectID,
		e.Version.StreamID,
		e.Version.Version,
	)
}

// Checkpoint records how far each contributing stream has been consumed
type Checkpoint struct {
	entries     map[ObjectIdentifier]VersionIdentifier
	fingerprint string
}

// NewCheckpoint creates an empty checkpoint
func NewCheckpoint() *Checkpoint {
	c := &Checkpoint{
		entries: make(map[ObjectIdentifier]VersionIdentifier),
	}
	c.refresh()
	return c
}

// NewCheckpointFromEntries rebuilds a checkpoint from persisted entries
func NewCheckpointFromEntries(entries []CheckpointEntry) *Checkpoint {
	c := &Checkpoint{
		entries: make(map[ObjectIdentifier]VersionIdentifier, len(entries)),
	}
	for _, e := range entries {
		if existing, ok := c.entries[e.Object]; ok && existing.Version > e.Version.Version {
			continue
		}
		c.entries[e.Object] = e.Version
	}
	c.refresh()
	return c
}

// Advance moves the entry for an object forward and returns false when
// nothing changed. Versions only compare within a stream: an entry on a
// different stream is replaced.
func (c *Checkpoint) Advance(object ObjectIdentifier, version VersionIdentifier) bool {
	if existing, ok := c.entries[object]; ok && existing.StreamID == version.StreamID {
		if existing.Version >= version.Version {
			return false
		}
	}
	c.entries[object] = version
	c.refresh()
	return true
}

// Get returns the entry for an object
func (c *Checkpoint) Get(object ObjectIdentifier) (VersionIdentifier, bool) {
	v, ok := c.entries[object]
	return v, ok
}

// Token returns the version token recorded for an object, nil when unseen
func (c *Checkpoint) Token(object ObjectIdentifier) *VersionToken {
	v, ok := c.entries[object]
	if !ok {
		return nil
	}
	return NewVersionToken(object, v)
}

// Len returns the number of streams recorded
func (c *Checkpoint) Len() int {
	return len(c.entries)
}

// Entries returns the entries sorted by object then version
func (c *Checkpoint) Entries() []CheckpointEntry {
	out := make([]CheckpointEntry, 0, len(c.entries))
	for k, v := range c.entries {
		out = append(out, CheckpointEntry{Object: k, Version: v})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Object.ObjectName != b.Object.ObjectName {
			return a.Object.ObjectName < b.Object.ObjectName
		}
		if a.Object.ObjectID != b.Object.ObjectID {
			return a.Object.ObjectID < b.Object.ObjectID
		}
		if a.Version.StreamID != b.Version.StreamID {
			return a.Version.StreamID < b.Version.StreamID
		}
		return a.Version.Version < b.Version.Version
	})
	return out
}

// Fingerprint returns the digest of the checkpoint contents
func (c *Checkpoint) Fingerprint() string {
	return c.fingerprint
}

// Covers returns true if every entry of other is present here on the same
// stream at the same or a newer version
func (c *Checkpoint) Covers(other *Checkpoint) bool {
	for k, want := range other.entries {
		got, ok := c.entries[k]
		if !ok || got.StreamID != want.StreamID || got.Version < want.Version {
			return false
		}
	}
	return true
}

// Clone returns an independent copy
func (c *Checkpoint) Clone() *Checkpoint {
	out := &Checkpoint{
		entries:     make(map[ObjectIdentifier]VersionIdentifier, len(c.entries)),
		fingerprint: c.fingerprint,
	}
	for k, v := range c.entries {
		out.entries[k] = v
	}
	return out
}

// MarshalJSON writes the checkpoint as a sorted entry list
func (c *Checkpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Entries())
}

// UnmarshalJSON reads a sorted entry list
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	var entries []CheckpointEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*c = *NewCheckpointFromEntries(entries)
	return nil
}

func (c *Checkpoint) refresh() {
	c.fingerprint = ComputeFingerprint(c.Entries())
}

// ComputeFingerprint hashes the sorted entries so insertion order never matters
func ComputeFingerprint(entries []CheckpointEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.fingerprintPart())
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

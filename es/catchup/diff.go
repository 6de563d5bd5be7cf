package catchup

import (
	"context"

	"github.com/contextgg/go-projections/es"
)

// StreamDiff is a stream both checkpoints know where the target is behind
type StreamDiff struct {
	Object                 string `json:"object"`
	StreamID               string `json:"stream_id"`
	SourceVersion          int64  `json:"source_version"`
	TargetVersion          int64  `json:"target_version"`
	EstimatedMissingEvents int64  `json:"estimated_missing_events"`
}

// CheckpointDiff lists what the target lacks compared to the source
type CheckpointDiff struct {
	// MissingStreams are the object keys (order__1) the target never saw
	MissingStreams []string     `json:"missing_streams"`
	StreamDiffs    []StreamDiff `json:"stream_diffs"`

	// MissingStreamEvents estimates the events behind the missing streams
	MissingStreamEvents int64 `json:"missing_stream_events"`
}

// EstimatedEvents is the number of events needed to close the gap
func (d *CheckpointDiff) EstimatedEvents() int64 {
	if d == nil {
		return 0
	}
	total := d.MissingStreamEvents
	for _, s := range d.StreamDiffs {
		total += s.EstimatedMissingEvents
	}
	return total
}

// CompareResult is the outcome of comparing two projection instances
type CompareResult struct {
	IsSynced          bool            `json:"is_synced"`
	SourceFingerprint string          `json:"source_fingerprint"`
	TargetFingerprint string          `json:"target_fingerprint"`
	Diff              *CheckpointDiff `json:"diff,omitempty"`
}

// DiffCheckpoints compares target against source. The target is synced when
// it holds every source entry on the same stream at the same or a newer
// version; the fingerprints may still differ.
func DiffCheckpoints(source, target *es.Checkpoint) *CompareResult {
	result := &CompareResult{
		IsSynced:          target.Covers(source),
		SourceFingerprint: source.Fingerprint(),
		TargetFingerprint: target.Fingerprint(),
	}
	if result.IsSynced {
		return result
	}

	diff := &CheckpointDiff{
		MissingStreams: []string{},
		StreamDiffs:    []StreamDiff{},
	}
	for _, entry := range source.Entries() {
		got, ok := target.Get(entry.Object)
		if !ok {
			diff.MissingStreams = append(diff.MissingStreams, entry.Object.String())
			diff.MissingStreamEvents += entry.Version.Version
			continue
		}

		missing := entry.Version.Version - got.Version
		if got.StreamID != entry.Version.StreamID {
			// the target follows an older stream, the whole source stream is missing
			missing = entry.Version.Version
		}
		if missing <= 0 {
			continue
		}
		diff.StreamDiffs = append(diff.StreamDiffs, StreamDiff{
			Object:                 entry.Object.String(),
			StreamID:               entry.Version.StreamID,
			SourceVersion:          entry.Version.Version,
			TargetVersion:          got.Version,
			EstimatedMissingEvents: missing,
		})
	}
	result.Diff = diff
	return result
}

// Compare loads the source and target versions of a projection and diffs them
func (c *Checker) Compare(ctx context.Context, objectID string, sourceVersion, targetVersion int) (*CompareResult, error) {
	result, _, _, err := c.compare(ctx, objectID, sourceVersion, targetVersion)
	return result, err
}

func (c *Checker) compare(ctx context.Context, objectID string, sourceVersion, targetVersion int) (*CompareResult, es.Projection, es.Projection, error) {
	source, err := c.load(ctx, objectID, sourceVersion)
	if err != nil {
		return nil, nil, nil, err
	}
	target, err := c.load(ctx, objectID, targetVersion)
	if err != nil {
		return nil, nil, nil, err
	}
	return DiffCheckpoints(source.Checkpoint(), target.Checkpoint()), source, target, nil
}

func (c *Checker) load(ctx context.Context, objectID string, version int) (es.Projection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.factory.GetOrCreate(ctx, objectID, c.versionName(version))
}

func (c *Checker) versionName(version int) string {
	return es.VersionName(c.factory.TypeName(), version)
}

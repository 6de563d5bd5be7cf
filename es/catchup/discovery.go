package catchup

import (
	"context"
	"errors"
	"iter"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/contextgg/go-projections/es"
)

// DefaultPageSize is used when a page size below one is requested
const DefaultPageSize = 100

// ErrNoObjectNames when discovery is asked to look at nothing
var ErrNoObjectNames = errors.New("at least one object name is required")

// WorkItem is one object that may need catching up
type WorkItem struct {
	ObjectName         string `json:"object_name"`
	ObjectID           string `json:"object_id"`
	ProjectionTypeName string `json:"projection_type_name,omitempty"`
}

// DiscoveryResult is one page of work items. An empty ContinuationToken
// means every object name is exhausted.
type DiscoveryResult struct {
	WorkItems         []WorkItem `json:"work_items"`
	ContinuationToken string     `json:"continuation_token,omitempty"`
	TotalEstimate     *int64     `json:"total_estimate,omitempty"`
}

// DiscoveryOption configures a Discovery
type DiscoveryOption func(*Discovery)

// WithProjectionTypeName tags every work item with the projection type
func WithProjectionTypeName(name string) DiscoveryOption {
	return func(d *Discovery) {
		d.projectionTypeName = name
	}
}

// WithTotalEstimate makes the first page carry the estimated total
func WithTotalEstimate() DiscoveryOption {
	return func(d *Discovery) {
		d.estimate = true
	}
}

// WithDiscoveryMetrics records pages on the recorder
func WithDiscoveryMetrics(metrics MetricsRecorder) DiscoveryOption {
	return func(d *Discovery) {
		d.metrics = metrics
	}
}

// Discovery pages through object ids of several object names as if they
// were a single sequence
type Discovery struct {
	provider           es.ObjectIDProvider
	projectionTypeName string
	estimate           bool
	metrics            MetricsRecorder
}

// NewDiscovery creates a discovery service over a provider
func NewDiscovery(provider es.ObjectIDProvider, opts ...DiscoveryOption) *Discovery {
	d := &Discovery{
		provider: provider,
		metrics:  NoopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover returns the page of work items after continuationToken
func (d *Discovery) Discover(ctx context.Context, objectNames []string, pageSize int, continuationToken string) (*DiscoveryResult, error) {
	if len(objectNames) == 0 {
		return nil, ErrNoObjectNames
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	pos := decodeContinuationToken(continuationToken, len(objectNames))
	index := pos.ObjectIndex
	providerToken := ""
	if pos.ProviderToken != nil {
		providerToken = *pos.ProviderToken
	}

	result := &DiscoveryResult{
		WorkItems: make([]WorkItem, 0, pageSize),
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := objectNames[index]
		page, err := d.provider.GetObjectIDs(ctx, name, providerToken, pageSize-len(result.WorkItems))
		if err != nil {
			return nil, err
		}
		for _, id := range page.IDs {
			result.WorkItems = append(result.WorkItems, WorkItem{
				ObjectName:         name,
				ObjectID:           id,
				ProjectionTypeName: d.projectionTypeName,
			})
		}

		if page.ContinuationToken != "" {
			next := page.ContinuationToken
			result.ContinuationToken = EncodeContinuationToken(index, &next)
			break
		}
		if index+1 >= len(objectNames) {
			break
		}
		if len(result.WorkItems) >= pageSize {
			result.ContinuationToken = EncodeContinuationToken(index+1, nil)
			break
		}
		index++
		providerToken = ""
	}

	if d.estimate && continuationToken == "" {
		total, err := d.EstimateTotal(ctx, objectNames)
		if err != nil {
			return nil, err
		}
		result.TotalEstimate = &total
	}

	log.
		Debug().
		Int("items", len(result.WorkItems)).
		Bool("more", result.ContinuationToken != "").
		Msg("Discovered work items")

	d.metrics.RecordDiscoveryPage(ctx, len(result.WorkItems), result.ContinuationToken != "")
	return result, nil
}

// Stream lazily walks every page. The sequence is forward only; a failure
// or cancellation is yielded once as the last element.
func (d *Discovery) Stream(ctx context.Context, objectNames []string, pageSize int) iter.Seq2[WorkItem, error] {
	return func(yield func(WorkItem, error) bool) {
		token := ""
		for {
			result, err := d.Discover(ctx, objectNames, pageSize, token)
			if err != nil {
				yield(WorkItem{}, err)
				return
			}
			for _, item := range result.WorkItems {
				if err := ctx.Err(); err != nil {
					yield(WorkItem{}, err)
					return
				}
				if !yield(item, nil) {
					return
				}
			}
			if result.ContinuationToken == "" {
				return
			}
			token = result.ContinuationToken
		}
	}
}

// EstimateTotal sums the provider counts, saturating at math.MaxInt64
func (d *Discovery) EstimateTotal(ctx context.Context, objectNames []string) (int64, error) {
	var total int64
	for _, name := range objectNames {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := d.provider.Count(ctx, name)
		if err != nil {
			return 0, err
		}
		if n > 0 && total > math.MaxInt64-n {
			total = math.MaxInt64
			continue
		}
		total += n
	}
	return total, nil
}

package basic

import (
	"context"
	"sort"
	"sync"

	"github.com/contextgg/go-projections/es"
)

type statusKey struct {
	projectionName string
	objectID       string
}

// StatusStore keeps projection status in memory, fine for a single process
type StatusStore struct {
	sync.RWMutex
	entries map[statusKey]es.StatusInfo
}

var _ es.StatusStore = (*StatusStore)(nil)

// NewStatusStore creates an empty store
func NewStatusStore() *StatusStore {
	return &StatusStore{
		entries: make(map[statusKey]es.StatusInfo),
	}
}

func copyInfo(info es.StatusInfo) *es.StatusInfo {
	if info.Rebuild != nil {
		r := *info.Rebuild
		info.Rebuild = &r
	}
	if info.Token != nil {
		t := *info.Token
		info.Token = &t
	}
	return &info
}

// Get returns nil when nothing was stored for the key
func (s *StatusStore) Get(ctx context.Context, projectionName, objectID string) (*es.StatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	info, ok := s.entries[statusKey{projectionName, objectID}]
	if !ok {
		return nil, nil
	}
	return copyInfo(info), nil
}

// Put stores a copy of info
func (s *StatusStore) Put(ctx context.Context, info *es.StatusInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	s.entries[statusKey{info.ProjectionName, info.ObjectID}] = *copyInfo(*info)
	return nil
}

// ListByStatus returns entries in any of the statuses ordered by key
func (s *StatusStore) ListByStatus(ctx context.Context, statuses ...es.ProjectionStatus) ([]*es.StatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	out := []*es.StatusInfo{}
	for _, info := range s.entries {
		for _, status := range statuses {
			if info.Status == status {
				out = append(out, copyInfo(info))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectionName != out[j].ProjectionName {
			return out[i].ProjectionName < out[j].ProjectionName
		}
		return out[i].ObjectID < out[j].ObjectID
	})
	return out, nil
}

// Close underlying connection
func (s *StatusStore) Close() error {
	return nil
}

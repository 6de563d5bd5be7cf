package basic

import (
	"context"
	"sort"
	"sync"

	"github.com/contextgg/go-projections/es"
)

// ObjectIDs is a fixed population of object ids per object name
type ObjectIDs struct {
	sync.RWMutex
	ids map[string][]string

	// Calls counts GetObjectIDs invocations per object name
	Calls map[string]int
}

var _ es.ObjectIDProvider = (*ObjectIDs)(nil)

// NewObjectIDs creates an empty provider
func NewObjectIDs() *ObjectIDs {
	return &ObjectIDs{
		ids:   make(map[string][]string),
		Calls: make(map[string]int),
	}
}

// Add registers ids for an object name
func (o *ObjectIDs) Add(objectName string, ids ...string) *ObjectIDs {
	o.Lock()
	defer o.Unlock()

	all := append(o.ids[objectName], ids...)
	sort.Strings(all)
	o.ids[objectName] = all
	return o
}

// GetObjectIDs implements es.ObjectIDProvider
func (o *ObjectIDs) GetObjectIDs(ctx context.Context, objectName, continuationToken string, pageSize int) (*es.ObjectIDPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.Lock()
	defer o.Unlock()

	o.Calls[objectName]++
	return pageOf(o.ids[objectName], continuationToken, pageSize), nil
}

// Count implements es.ObjectIDProvider
func (o *ObjectIDs) Count(ctx context.Context, objectName string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	o.RLock()
	defer o.RUnlock()

	return int64(len(o.ids[objectName])), nil
}

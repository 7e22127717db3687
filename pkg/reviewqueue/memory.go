package reviewqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// MemoryAdapter is the in-process QueueAdapter used by tests and
// single-node deployments. All results are deep copies.
type MemoryAdapter struct {
	mu    sync.RWMutex
	items map[string]*models.QueueItem
	// order preserves insertion sequence so equal sort keys stay stable.
	order []string
}

var _ models.QueueAdapter = (*MemoryAdapter)(nil)

// NewMemoryAdapter returns an empty in-memory queue adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{items: make(map[string]*models.QueueItem)}
}

func (a *MemoryAdapter) Insert(_ context.Context, item *models.QueueItem) error {
	if item == nil || item.ID == "" {
		return &errors.QueueOperationError{Op: "insert", Cause: fmt.Errorf("queue item requires an id")}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.items[item.ID]; exists {
		return &errors.QueueOperationError{Op: "insert", Cause: fmt.Errorf("queue item '%s' already exists", item.ID)}
	}
	a.items[item.ID] = item.Clone()
	a.order = append(a.order, item.ID)
	return nil
}

func (a *MemoryAdapter) Update(_ context.Context, item *models.QueueItem) error {
	if item == nil || item.ID == "" {
		return &errors.QueueOperationError{Op: "update", Cause: fmt.Errorf("queue item requires an id")}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.items[item.ID]; !exists {
		return &errors.QueueItemNotFoundError{ID: item.ID}
	}
	a.items[item.ID] = item.Clone()
	return nil
}

func (a *MemoryAdapter) Get(_ context.Context, id string) (*models.QueueItem, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	item, ok := a.items[id]
	if !ok {
		return nil, &errors.QueueItemNotFoundError{ID: id}
	}
	return item.Clone(), nil
}

func (a *MemoryAdapter) Delete(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.items[id]; !ok {
		return &errors.QueueItemNotFoundError{ID: id}
	}
	delete(a.items, id)
	for i, existing := range a.order {
		if existing == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return nil
}

func (a *MemoryAdapter) List(_ context.Context, filter models.QueueFilter) ([]*models.QueueItem, error) {
	a.mu.RLock()
	matched := a.matchLocked(filter)
	a.mu.RUnlock()

	sortItems(matched, filter.OrderBy, filter.OrderDirection)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*models.QueueItem{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (a *MemoryAdapter) Count(_ context.Context, filter models.QueueFilter) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.matchLocked(filter)), nil
}

// matchLocked applies the filter's selection criteria, ignoring pagination.
func (a *MemoryAdapter) matchLocked(filter models.QueueFilter) []*models.QueueItem {
	matched := make([]*models.QueueItem, 0, len(a.items))
	for _, id := range a.order {
		item := a.items[id]
		if !matchesFilter(item, filter) {
			continue
		}
		matched = append(matched, item.Clone())
	}
	return matched
}

func matchesFilter(item *models.QueueItem, filter models.QueueFilter) bool {
	if len(filter.Status) > 0 {
		found := false
		for _, status := range filter.Status {
			if item.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// Tag filtering requires every requested tag to be present.
	for _, want := range filter.Tags {
		found := false
		for _, tag := range item.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.MinPriority != nil && item.Priority < *filter.MinPriority {
		return false
	}
	if filter.Since != nil && item.CreatedAt.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && item.CreatedAt.After(*filter.Until) {
		return false
	}
	return true
}

func sortItems(items []*models.QueueItem, orderBy string, direction models.SortOrder) {
	desc := direction == models.SortDesc

	sort.SliceStable(items, func(i, j int) bool {
		var less bool
		switch orderBy {
		case models.QueueOrderPriority:
			if items[i].Priority == items[j].Priority {
				return false
			}
			less = items[i].Priority < items[j].Priority
		case models.QueueOrderUpdatedAt:
			if items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
				return false
			}
			less = items[i].UpdatedAt.Before(items[j].UpdatedAt)
		default:
			if items[i].CreatedAt.Equal(items[j].CreatedAt) {
				return false
			}
			less = items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})
}

package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// MemoryInventory is the in-process RecordInventory used by tests and
// single-node deployments. Candidates returns every stored record; there
// is no blocking index, so it suits modest inventories only.
type MemoryInventory struct {
	mu      sync.RWMutex
	records map[string]models.SourceRecord
	// order preserves insertion sequence so candidate lists are stable.
	order []string
}

var _ RecordInventory = (*MemoryInventory)(nil)

// NewMemoryInventory returns an empty in-memory record inventory.
func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{records: make(map[string]models.SourceRecord)}
}

// Candidates returns every stored record except the incoming one.
func (m *MemoryInventory) Candidates(_ context.Context, record models.SourceRecord) ([]models.SourceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SourceRecord, 0, len(m.records))
	for _, id := range m.order {
		if id == record.ID {
			continue
		}
		out = append(out, m.records[id].Clone())
	}
	return out, nil
}

// SaveGolden stores the golden record and retires its absorbed sources.
func (m *MemoryInventory) SaveGolden(_ context.Context, result *models.MergeResult) error {
	if result == nil || result.GoldenRecordID == "" {
		return fmt.Errorf("merge result requires a golden record id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, src := range result.SourceRecords {
		m.remove(src.ID)
	}
	m.put(models.SourceRecord{
		ID:        result.GoldenRecordID,
		Record:    result.GoldenRecord.Clone(),
		CreatedAt: result.MergedAt,
		UpdatedAt: result.MergedAt,
	})
	return nil
}

// SaveStandalone stores a record that matched nothing.
func (m *MemoryInventory) SaveStandalone(_ context.Context, record models.SourceRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record requires an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(record.Clone())
	return nil
}

// Len reports how many records the inventory holds.
func (m *MemoryInventory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// IDs returns the stored record ids in sorted order.
func (m *MemoryInventory) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.records))
	for id := range m.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// put upserts without disturbing the position of an existing id, stamping
// missing timestamps. Callers hold the write lock.
func (m *MemoryInventory) put(record models.SourceRecord) {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	if _, exists := m.records[record.ID]; !exists {
		m.order = append(m.order, record.ID)
	}
	m.records[record.ID] = record
}

// remove drops an id if present. Callers hold the write lock.
func (m *MemoryInventory) remove(id string) {
	if _, exists := m.records[id]; !exists {
		return
	}
	delete(m.records, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

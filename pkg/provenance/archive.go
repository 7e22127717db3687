package provenance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// Archive preserves source records at merge time so an unmerge can restore
// them exactly as they were consumed. Records are keyed by the golden record
// they fed into.
type Archive interface {
	Save(ctx context.Context, goldenRecordID string, records []models.SourceRecord) error
	// Get returns the archived records matching the requested ids. Missing
	// ids are simply absent from the result; callers diff against the
	// request to detect them.
	Get(ctx context.Context, goldenRecordID string, sourceRecordIDs []string) ([]models.SourceRecord, error)
	GetAll(ctx context.Context, goldenRecordID string) ([]models.SourceRecord, error)
	Has(ctx context.Context, goldenRecordID, sourceRecordID string) (bool, error)
	Remove(ctx context.Context, goldenRecordID string, sourceRecordIDs []string) error
	Clear(ctx context.Context) error
}

// MemoryArchive is the in-process Archive used by tests and single-node
// deployments.
type MemoryArchive struct {
	mu   sync.RWMutex
	rows map[string]map[string]models.ArchivedRecord
	now  func() time.Time
}

var _ Archive = (*MemoryArchive)(nil)

// NewMemoryArchive returns an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		rows: make(map[string]map[string]models.ArchivedRecord),
		now:  time.Now,
	}
}

func (a *MemoryArchive) Save(_ context.Context, goldenRecordID string, records []models.SourceRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.rows[goldenRecordID]
	if !ok {
		set = make(map[string]models.ArchivedRecord, len(records))
		a.rows[goldenRecordID] = set
	}

	archivedAt := a.now()
	for _, record := range records {
		set[record.ID] = models.ArchivedRecord{
			GoldenRecordID: goldenRecordID,
			SourceRecord:   record.Clone(),
			ArchivedAt:     archivedAt,
		}
	}
	return nil
}

func (a *MemoryArchive) Get(_ context.Context, goldenRecordID string, sourceRecordIDs []string) ([]models.SourceRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	set := a.rows[goldenRecordID]
	found := make([]models.SourceRecord, 0, len(sourceRecordIDs))
	for _, id := range sourceRecordIDs {
		if archived, ok := set[id]; ok {
			found = append(found, archived.SourceRecord.Clone())
		}
	}
	return found, nil
}

func (a *MemoryArchive) GetAll(_ context.Context, goldenRecordID string) ([]models.SourceRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	set := a.rows[goldenRecordID]
	records := make([]models.SourceRecord, 0, len(set))
	for _, archived := range set {
		records = append(records, archived.SourceRecord.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (a *MemoryArchive) Has(_ context.Context, goldenRecordID, sourceRecordID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.rows[goldenRecordID][sourceRecordID]
	return ok, nil
}

func (a *MemoryArchive) Remove(_ context.Context, goldenRecordID string, sourceRecordIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := a.rows[goldenRecordID]
	for _, id := range sourceRecordIDs {
		delete(set, id)
	}
	if len(set) == 0 {
		delete(a.rows, goldenRecordID)
	}
	return nil
}

func (a *MemoryArchive) Clear(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = make(map[string]map[string]models.ArchivedRecord)
	return nil
}

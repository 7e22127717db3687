package provenance

import (
	"context"
	"sort"
	"sync"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// MemoryStore is the reference Store used by tests and single-process
// deployments. All results are deep copies; callers may mutate them freely.
type MemoryStore struct {
	mu       sync.RWMutex
	rows     map[string]*models.Provenance
	bySource map[string]map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory provenance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:     make(map[string]*models.Provenance),
		bySource: make(map[string]map[string]struct{}),
	}
}

// Save upserts by golden record id and rebuilds its source index entries.
func (s *MemoryStore) Save(_ context.Context, p *models.Provenance) error {
	if p == nil || p.GoldenRecordID == "" {
		return &errors.MergeValidationError{Reason: "provenance requires a golden record id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.rows[p.GoldenRecordID]; ok {
		s.unindexLocked(prev)
	}

	row := p.Clone()
	s.rows[row.GoldenRecordID] = row
	for _, sourceID := range row.SourceRecordIDs {
		set, ok := s.bySource[sourceID]
		if !ok {
			set = make(map[string]struct{})
			s.bySource[sourceID] = set
		}
		set[row.GoldenRecordID] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, goldenRecordID string) (*models.Provenance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[goldenRecordID]
	if !ok {
		return nil, &errors.ProvenanceNotFoundError{GoldenRecordID: goldenRecordID}
	}
	return row.Clone(), nil
}

func (s *MemoryStore) Exists(_ context.Context, goldenRecordID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows[goldenRecordID]
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, goldenRecordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[goldenRecordID]
	if !ok {
		return &errors.ProvenanceNotFoundError{GoldenRecordID: goldenRecordID}
	}
	s.unindexLocked(row)
	delete(s.rows, goldenRecordID)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, includeUnmerged bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if includeUnmerged {
		return len(s.rows), nil
	}

	count := 0
	for _, row := range s.rows {
		if !row.IsUnmerged() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string]*models.Provenance)
	s.bySource = make(map[string]map[string]struct{})
	return nil
}

func (s *MemoryStore) GetBySourceID(_ context.Context, sourceRecordID string, query models.ProvenanceQuery) ([]*models.Provenance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Provenance, 0)
	for goldenID := range s.bySource[sourceRecordID] {
		row := s.rows[goldenID]
		if row == nil {
			continue
		}
		if row.IsUnmerged() && !query.IncludeUnmerged {
			continue
		}
		matched = append(matched, row.Clone())
	}

	sortByMergedAt(matched, query.SortOrder != models.SortAsc)
	return paginate(matched, query.Offset, query.Limit), nil
}

func (s *MemoryStore) MarkUnmerged(_ context.Context, goldenRecordID string, meta UnmergeMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[goldenRecordID]
	if !ok {
		return &errors.ProvenanceNotFoundError{GoldenRecordID: goldenRecordID}
	}

	unmergedAt := meta.UnmergedAt
	row.Unmerged = true
	row.UnmergedAt = &unmergedAt
	row.UnmergedBy = meta.UnmergedBy
	row.UnmergeReason = meta.Reason
	return nil
}

// GetFieldHistory returns at most one entry per golden record: the store
// keeps the current attribution, not every revision.
func (s *MemoryStore) GetFieldHistory(_ context.Context, goldenRecordID, field string) ([]models.FieldHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[goldenRecordID]
	if !ok {
		return nil, &errors.ProvenanceNotFoundError{GoldenRecordID: goldenRecordID}
	}

	fp, ok := row.FieldSources[field]
	if !ok {
		return []models.FieldHistoryEntry{}, nil
	}

	fp.CandidateValues = append([]models.CandidateValue(nil), fp.CandidateValues...)
	return []models.FieldHistoryEntry{{
		GoldenRecordID: row.GoldenRecordID,
		MergedAt:       row.MergedAt,
		Provenance:     fp,
	}}, nil
}

func (s *MemoryStore) GetMergeTimeline(_ context.Context, query models.TimelineQuery) ([]*models.Provenance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Provenance, 0, len(s.rows))
	for _, row := range s.rows {
		if query.Since != nil && row.MergedAt.Before(*query.Since) {
			continue
		}
		if query.Until != nil && row.MergedAt.After(*query.Until) {
			continue
		}
		matched = append(matched, row.Clone())
	}

	sortByMergedAt(matched, query.SortOrder == models.SortDesc)
	return paginate(matched, query.Offset, query.Limit), nil
}

func (s *MemoryStore) FindGoldenRecordsBySource(_ context.Context, sourceRecordID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.bySource[sourceRecordID]))
	for goldenID := range s.bySource[sourceRecordID] {
		row := s.rows[goldenID]
		if row == nil || row.IsUnmerged() {
			continue
		}
		ids = append(ids, goldenID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) unindexLocked(row *models.Provenance) {
	for _, sourceID := range row.SourceRecordIDs {
		set := s.bySource[sourceID]
		delete(set, row.GoldenRecordID)
		if len(set) == 0 {
			delete(s.bySource, sourceID)
		}
	}
}

func sortByMergedAt(rows []*models.Provenance, newestFirst bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].MergedAt.Equal(rows[j].MergedAt) {
			return rows[i].GoldenRecordID < rows[j].GoldenRecordID
		}
		if newestFirst {
			return rows[i].MergedAt.After(rows[j].MergedAt)
		}
		return rows[i].MergedAt.Before(rows[j].MergedAt)
	})
}

func paginate(rows []*models.Provenance, offset, limit int) []*models.Provenance {
	if offset > 0 {
		if offset >= len(rows) {
			return []*models.Provenance{}
		}
		rows = rows[offset:]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

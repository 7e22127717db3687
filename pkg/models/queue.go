package models

import (
	"time"
)

// QueueStatus is the review state of a queued borderline match.
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusReviewing QueueStatus = "reviewing"
	QueueStatusConfirmed QueueStatus = "confirmed"
	QueueStatusRejected  QueueStatus = "rejected"
	QueueStatusMerged    QueueStatus = "merged"
	QueueStatusExpired   QueueStatus = "expired"
)

// IsTerminal reports whether no further transitions are allowed.
func (s QueueStatus) IsTerminal() bool {
	switch s {
	case QueueStatusConfirmed, QueueStatusRejected, QueueStatusMerged, QueueStatusExpired:
		return true
	}
	return false
}

// DecisionAction is what a reviewer chose to do with a queue item.
type DecisionAction string

const (
	DecisionConfirm DecisionAction = "confirm"
	DecisionReject  DecisionAction = "reject"
	DecisionMerge   DecisionAction = "merge"
)

// Decision captures a reviewer's verdict on a queue item.
type Decision struct {
	Action DecisionAction `json:"action" validate:"required,oneof=confirm reject merge"`
	// SelectedMatchID names the potential match the decision applies to.
	// Required when the item holds more than one potential match.
	SelectedMatchID string `json:"selected_match_id,omitempty"`
	Notes           string `json:"notes,omitempty"`
	// Confidence is the reviewer's self-reported certainty in [0, 1].
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// PotentialMatch is one scored candidate attached to a queue item.
type PotentialMatch struct {
	RecordID  string          `json:"record_id" validate:"required"`
	Record    Record          `json:"record,omitempty"`
	Score     float64         `json:"score"`
	Breakdown *ScoreBreakdown `json:"breakdown,omitempty"`
}

// QueueItem is one borderline match awaiting human review.
type QueueItem struct {
	ID               string           `json:"id" db:"id"`
	CandidateRecord  SourceRecord     `json:"candidate_record"`
	PotentialMatches []PotentialMatch `json:"potential_matches"`
	Status           QueueStatus      `json:"status" db:"status"`
	Priority         int              `json:"priority" db:"priority"`
	Tags             []string         `json:"tags,omitempty"`
	Context          map[string]any   `json:"context,omitempty"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
	DecidedAt        *time.Time       `json:"decided_at,omitempty" db:"decided_at"`
	DecidedBy        string           `json:"decided_by,omitempty" db:"decided_by"`
	Decision         *Decision        `json:"decision,omitempty"`
	ReviewedBy       string           `json:"reviewed_by,omitempty" db:"reviewed_by"`
}

// Clone returns a deep copy of the queue item.
func (q *QueueItem) Clone() *QueueItem {
	if q == nil {
		return nil
	}
	out := *q
	out.CandidateRecord = q.CandidateRecord.Clone()
	if q.PotentialMatches != nil {
		out.PotentialMatches = make([]PotentialMatch, len(q.PotentialMatches))
		for i, match := range q.PotentialMatches {
			match.Record = match.Record.Clone()
			if match.Breakdown != nil {
				breakdown := *match.Breakdown
				breakdown.Fields = append([]FieldScore(nil), match.Breakdown.Fields...)
				match.Breakdown = &breakdown
			}
			out.PotentialMatches[i] = match
		}
	}
	out.Tags = append([]string(nil), q.Tags...)
	if q.Context != nil {
		out.Context = make(map[string]any, len(q.Context))
		for k, v := range q.Context {
			out.Context[k] = v
		}
	}
	if q.DecidedAt != nil {
		t := *q.DecidedAt
		out.DecidedAt = &t
	}
	if q.Decision != nil {
		decision := *q.Decision
		if decision.Confidence != nil {
			c := *decision.Confidence
			decision.Confidence = &c
		}
		out.Decision = &decision
	}
	return &out
}

// EnqueueRequest adds a borderline match to the review queue.
type EnqueueRequest struct {
	CandidateRecord  SourceRecord     `json:"candidate_record" validate:"required"`
	PotentialMatches []PotentialMatch `json:"potential_matches" validate:"required,min=1,dive"`
	Priority         int              `json:"priority,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
	Context          map[string]any   `json:"context,omitempty"`
}

// DecideRequest records a reviewer verdict over the wire.
type DecideRequest struct {
	DecidedBy string   `json:"decided_by" validate:"required"`
	Decision  Decision `json:"decision" validate:"required"`
}

// Queue list ordering columns.
const (
	QueueOrderCreatedAt = "created_at"
	QueueOrderPriority  = "priority"
	QueueOrderUpdatedAt = "updated_at"
)

// QueueFilter selects and pages queue items.
type QueueFilter struct {
	Status      []QueueStatus `json:"status,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	MinPriority *int          `json:"min_priority,omitempty"`
	Since       *time.Time    `json:"since,omitempty"`
	Until       *time.Time    `json:"until,omitempty"`
	Limit       int           `json:"limit,omitempty"`
	Offset      int           `json:"offset,omitempty"`
	// OrderBy defaults to created_at ascending (oldest first).
	OrderBy        string    `json:"order_by,omitempty"`
	OrderDirection SortOrder `json:"order_direction,omitempty"`
}

// QueueThroughput counts decided items over trailing windows.
type QueueThroughput struct {
	Last24Hours int `json:"last_24_hours"`
	Last7Days   int `json:"last_7_days"`
	Last30Days  int `json:"last_30_days"`
}

// QueueStats is an aggregate snapshot of the review queue.
type QueueStats struct {
	Total         int                 `json:"total"`
	ByStatus      map[QueueStatus]int `json:"by_status"`
	AvgWaitTimeMs int64               `json:"avg_wait_time_ms"`
	OldestPending *time.Time          `json:"oldest_pending,omitempty"`
	Throughput    QueueThroughput     `json:"throughput"`
}

// QueueListResponse pages queue items over the wire.
type QueueListResponse struct {
	Items      []*QueueItem `json:"items"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}

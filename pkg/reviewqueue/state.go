// Package reviewqueue holds borderline matches for human adjudication and
// enforces the review state machine.
package reviewqueue

import (
	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// legalTransitions maps each non-terminal status to the statuses it may
// move to. Terminal statuses have no entry.
var legalTransitions = map[models.QueueStatus][]models.QueueStatus{
	models.QueueStatusPending: {
		models.QueueStatusReviewing,
		models.QueueStatusConfirmed,
		models.QueueStatusRejected,
		models.QueueStatusMerged,
		models.QueueStatusExpired,
	},
	models.QueueStatusReviewing: {
		models.QueueStatusConfirmed,
		models.QueueStatusRejected,
		models.QueueStatusMerged,
		models.QueueStatusExpired,
	},
}

// CanTransition reports whether the state machine allows moving a queue
// item from one status to another.
func CanTransition(from, to models.QueueStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func validateTransition(itemID string, from, to models.QueueStatus) error {
	if !CanTransition(from, to) {
		return &errors.InvalidTransitionError{ItemID: itemID, From: from, To: to}
	}
	return nil
}

// statusForAction maps a reviewer decision to the status it lands the item
// in.
func statusForAction(action models.DecisionAction) (models.QueueStatus, bool) {
	switch action {
	case models.DecisionConfirm:
		return models.QueueStatusConfirmed, true
	case models.DecisionReject:
		return models.QueueStatusRejected, true
	case models.DecisionMerge:
		return models.QueueStatusMerged, true
	}
	return "", false
}

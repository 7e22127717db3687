package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// InsufficientSourcesError rejects a merge with fewer than two sources.
type InsufficientSourcesError struct {
	Count int
}

func (e *InsufficientSourcesError) Error() string {
	return fmt.Sprintf("merge requires at least 2 source records, got %d", e.Count)
}

func (e *InsufficientSourcesError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error())
}

// StrategyNotFoundError names a strategy no registry entry matches.
type StrategyNotFoundError struct {
	Strategy  string
	Available []string
}

func (e *StrategyNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("strategy '%s' is not registered", e.Strategy)
	}
	return fmt.Sprintf("strategy '%s' is not registered (available: %s)", e.Strategy, strings.Join(e.Available, ", "))
}

func (e *StrategyNotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error())
}

// CustomStrategyMissingError reports a field configured with the custom
// strategy but no function to run.
type CustomStrategyMissingError struct {
	Field string
}

func (e *CustomStrategyMissingError) Error() string {
	return fmt.Sprintf("field '%s' uses the custom strategy but no custom merge function was provided", e.Field)
}

func (e *CustomStrategyMissingError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error())
}

// MergeValidationError rejects malformed merge input before any work runs.
type MergeValidationError struct {
	Reason string
}

func (e *MergeValidationError) Error() string {
	return "invalid merge request: " + e.Reason
}

func (e *MergeValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error())
}

// StrategyTypeMismatchError reports a strategy applied to values it cannot
// operate on, such as sum over strings.
type StrategyTypeMismatchError struct {
	Field    string
	Strategy string
	Reason   string
}

func (e *StrategyTypeMismatchError) Error() string {
	return fmt.Sprintf("strategy '%s' cannot merge field '%s': %s", e.Strategy, e.Field, e.Reason)
}

func (e *StrategyTypeMismatchError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).
		AddMetaValue("field", e.Field).
		AddMetaValue("strategy", e.Strategy)
}

// MergeConflictError aborts a merge under the error conflict policy.
type MergeConflictError struct {
	Field  string
	Values []models.CandidateValue
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("conflicting values for field '%s' from %d sources", e.Field, len(e.Values))
}

func (e *MergeConflictError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("field", e.Field)
}

// ProvenanceNotFoundError reports a golden record with no attribution row.
type ProvenanceNotFoundError struct {
	GoldenRecordID string
}

func (e *ProvenanceNotFoundError) Error() string {
	return fmt.Sprintf("no provenance found for golden record '%s'", e.GoldenRecordID)
}

func (e *ProvenanceNotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error())
}

// AlreadyUnmergedError rejects a repeated unmerge of the same golden record.
type AlreadyUnmergedError struct {
	GoldenRecordID string
	UnmergedAt     *time.Time
}

func (e *AlreadyUnmergedError) Error() string {
	return fmt.Sprintf("golden record '%s' has already been unmerged", e.GoldenRecordID)
}

func (e *AlreadyUnmergedError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error())
}

// SourceRecordNotFoundError reports an archived source record that should
// exist for an unmerge but does not.
type SourceRecordNotFoundError struct {
	GoldenRecordID string
	SourceRecordID string
}

func (e *SourceRecordNotFoundError) Error() string {
	return fmt.Sprintf("source record '%s' is not archived for golden record '%s'", e.SourceRecordID, e.GoldenRecordID)
}

func (e *SourceRecordNotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error())
}

// RecordNotFoundError reports a source record id the store does not hold.
type RecordNotFoundError struct {
	ID string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record '%s' not found", e.ID)
}

func (e *RecordNotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error())
}

// DuplicateRecordError rejects an insert whose id is already stored.
type DuplicateRecordError struct {
	ID string
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("record '%s' already exists", e.ID)
}

func (e *DuplicateRecordError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error())
}

// UnmergeError reports an unmerge precondition failure.
type UnmergeError struct {
	GoldenRecordID string
	Reason         string
}

func (e *UnmergeError) Error() string {
	return fmt.Sprintf("cannot unmerge golden record '%s': %s", e.GoldenRecordID, e.Reason)
}

func (e *UnmergeError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error())
}

// QueueOperationError wraps a queue adapter failure.
type QueueOperationError struct {
	Op    string
	Cause error
}

func (e *QueueOperationError) Error() string {
	return fmt.Sprintf("queue %s failed: %v", e.Op, e.Cause)
}

func (e *QueueOperationError) Unwrap() error {
	return e.Cause
}

func (e *QueueOperationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusInternalServerError, e.Error())
}

// QueueItemNotFoundError reports an unknown review queue item.
type QueueItemNotFoundError struct {
	ID string
}

func (e *QueueItemNotFoundError) Error() string {
	return fmt.Sprintf("queue item '%s' not found", e.ID)
}

func (e *QueueItemNotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error())
}

// InvalidTransitionError rejects a queue status change the state machine
// does not allow.
type InvalidTransitionError struct {
	ItemID string
	From   models.QueueStatus
	To     models.QueueStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("queue item '%s' cannot move from %s to %s", e.ItemID, e.From, e.To)
}

func (e *InvalidTransitionError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("from", string(e.From)).
		AddMetaValue("to", string(e.To))
}

// SchemaValidationError rejects a record that does not match its schema.
type SchemaValidationError struct {
	RecordID   string
	Violations []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("record '%s' failed schema validation: %d violation(s)", e.RecordID, len(e.Violations))
}

func (e *SchemaValidationError) ToHTTPError() *httperror.HTTPError {
	httpErr := httperror.NewHTTPError(http.StatusBadRequest, e.Error())
	for i, v := range e.Violations {
		httpErr = httpErr.AddMetaValue(fmt.Sprintf("violation_%d", i), v)
	}
	return httpErr
}

// TimeoutError reports an operation cut off by its deadline or canceled
// from outside.
type TimeoutError struct {
	ServiceName string
	After       time.Duration
	Canceled    bool
}

func (e *TimeoutError) Error() string {
	name := e.ServiceName
	if name == "" {
		name = "operation"
	}
	if e.Canceled {
		return fmt.Sprintf("%s was canceled", name)
	}
	return fmt.Sprintf("%s timed out after %s", name, e.After)
}

// BreakerOpenError is the fast failure returned while a circuit is open.
type BreakerOpenError struct {
	Name    string
	ResetAt time.Time
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open until %s", e.Name, e.ResetAt.Format(time.RFC3339))
}

// RetryExhaustedError wraps the final error after all attempts failed.
type RetryExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Cause)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Cause
}

// CacheKeyError rejects a malformed cache key.
type CacheKeyError struct {
	Key    string
	Reason string
}

func (e *CacheKeyError) Error() string {
	return fmt.Sprintf("invalid cache key '%s': %s", e.Key, e.Reason)
}

// ServiceNotFoundError reports a service name with no registration.
type ServiceNotFoundError struct {
	Name string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service '%s' is not registered", e.Name)
}

func (e *ServiceNotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error())
}

// ServiceAlreadyRegisteredError rejects registering the same service name
// twice.
type ServiceAlreadyRegisteredError struct {
	Name string
}

func (e *ServiceAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("service '%s' is already registered", e.Name)
}

func (e *ServiceAlreadyRegisteredError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error())
}

// IsNotFound reports whether the error represents a missing resource of
// any flavor.
func IsNotFound(err error) bool {
	var provErr *ProvenanceNotFoundError
	if stderrors.As(err, &provErr) {
		return true
	}

	var queueErr *QueueItemNotFoundError
	if stderrors.As(err, &queueErr) {
		return true
	}

	var svcNotFound *ServiceNotFoundError
	if stderrors.As(err, &svcNotFound) {
		return true
	}

	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr.Kind == models.ErrorKindNotFound
	}

	return false
}

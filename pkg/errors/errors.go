package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// ServiceError is the rich failure shape for external service calls and
// resilience wrappers. It carries enough context for retry decisions,
// failure policies, and wire serialization.
type ServiceError struct {
	Code        string
	Message     string
	Kind        models.ErrorKind
	Retryable   bool
	ServiceName string
	Context     map[string]any
	Cause       error
}

func NewServiceError(kind models.ErrorKind, code, msg string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: msg,
		Kind:    kind,
	}
}

// NewServiceErrorf creates a ServiceError with a formatted message.
func NewServiceErrorf(kind models.ErrorKind, code, format string, args ...any) *ServiceError {
	for i, arg := range args {
		if err, ok := arg.(error); ok && strings.Contains(format, "%w") {
			format = strings.Replace(format, "%w", "%v", 1)
			args[i] = err.Error()
		}
	}

	return &ServiceError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
	}
}

// WrapServiceError lifts an arbitrary error into a ServiceError, passing
// an existing one through untouched.
func WrapServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}

	return &ServiceError{
		Code:      "internal_error",
		Message:   err.Error(),
		Kind:      KindOf(err),
		Retryable: IsRetryable(err),
		Cause:     err,
	}
}

func (e *ServiceError) Error() string {
	parts := []string{}
	if e.ServiceName != "" {
		parts = append(parts, fmt.Sprintf("service '%s'", e.ServiceName))
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}

	if len(parts) == 0 {
		return e.Message
	}

	return strings.Join(parts, ": ") + ": " + e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

func (e *ServiceError) AddService(name string) *ServiceError {
	e.ServiceName = name
	return e
}

func (e *ServiceError) AddCause(cause error) *ServiceError {
	e.Cause = cause
	return e
}

func (e *ServiceError) AddRetryable(retryable bool) *ServiceError {
	e.Retryable = retryable
	return e
}

func (e *ServiceError) AddContext(key string, value any) *ServiceError {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

// Info converts the error to its wire shape.
func (e *ServiceError) Info() *models.ServiceErrorInfo {
	return &models.ServiceErrorInfo{
		Code:      e.Code,
		Message:   e.Message,
		Kind:      e.Kind,
		Retryable: e.Retryable,
	}
}

func (e *ServiceError) ToHTTPError() *httperror.HTTPError {
	httpErr := httperror.NewHTTPError(statusForKind(e.Kind), e.Error()).
		AddMetaValue("code", e.Code).
		AddMetaValue("kind", string(e.Kind))
	if e.ServiceName != "" {
		httpErr = httpErr.AddMetaValue("service_name", e.ServiceName)
	}
	return httpErr
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case models.ErrorKindNetwork:
		return http.StatusBadGateway
	case models.ErrorKindValidation:
		return http.StatusBadRequest
	case models.ErrorKindNotFound:
		return http.StatusNotFound
	case models.ErrorKindRejected:
		return http.StatusUnprocessableEntity
	case models.ErrorKindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func IsServiceError(err error) bool {
	var svcErr *ServiceError
	return stderrors.As(err, &svcErr)
}

// KindOf classifies any error into the taxonomy. Unrecognized errors are
// unknown.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindUnknown
	}

	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr.Kind
	}

	var timeoutErr *TimeoutError
	if stderrors.As(err, &timeoutErr) {
		return models.ErrorKindTimeout
	}

	var openErr *BreakerOpenError
	if stderrors.As(err, &openErr) {
		return models.ErrorKindUnavailable
	}

	var exhausted *RetryExhaustedError
	if stderrors.As(err, &exhausted) {
		return KindOf(exhausted.Cause)
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTimeout
	}

	return models.ErrorKindUnknown
}

// IsRetryable reports whether a retry wrapper should consider another
// attempt for this error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr.Retryable
	}

	var timeoutErr *TimeoutError
	if stderrors.As(err, &timeoutErr) {
		return true
	}

	var openErr *BreakerOpenError
	if stderrors.As(err, &openErr) {
		return false
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}

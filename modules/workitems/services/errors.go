package services

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrProjectRequired = errors.New("project id is required")
	ErrInvalidCount    = errors.New("count must be non-negative")
	ErrBucketExhausted = errors.New("no sequence numbers left in bucket")
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

// AsServiceError maps the package's sentinel errors to HTTP-facing errors.
func AsServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	switch {
	case errors.Is(err, ErrProjectRequired):
		return newServiceError(http.StatusBadRequest, "WORKITEM_PROJECT_REQUIRED", "project id is required", err)
	case errors.Is(err, ErrInvalidCount):
		return newServiceError(http.StatusBadRequest, "WORKITEM_INVALID_COUNT", "count must be non-negative", err)
	case errors.Is(err, ErrBucketExhausted):
		return newServiceError(http.StatusConflict, "WORKITEM_BUCKET_EXHAUSTED", "no sequence numbers left for this project and day", err)
	case errors.Is(err, ErrDuplicateID):
		return newServiceError(http.StatusConflict, "WORKITEM_ID_CONFLICT", "work item id already exists", err)
	case errors.Is(err, ErrIDNotFound):
		return newServiceError(http.StatusNotFound, "WORKITEM_NOT_FOUND", "work item not found", err)
	default:
		return newServiceError(http.StatusInternalServerError, "WORKITEM_INTERNAL", "internal error", err)
	}
}

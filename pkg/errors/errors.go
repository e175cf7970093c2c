package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrDuplicate is the cause of a StorageError raised by a unique constraint.
var ErrDuplicate = errors.New("record already exists")

// ValidationError represents a request that failed shape checks.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// GRPCStatus returns the gRPC status for this error
func (e *ValidationError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// HTTPStatus returns the HTTP status code for this error
func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

// StorageError wraps a failure of the persistence collaborator.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError creates a new storage error for the given operation
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{
		Op:  op,
		Err: err,
	}
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed", e.Op)
}

// Unwrap returns the wrapped error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Duplicate reports whether the failure was a unique constraint violation.
func (e *StorageError) Duplicate() bool {
	return errors.Is(e.Err, ErrDuplicate)
}

// GRPCStatus returns the gRPC status for this error
func (e *StorageError) GRPCStatus() *status.Status {
	if e.Duplicate() {
		return status.New(codes.AlreadyExists, "email already registered")
	}
	return status.New(codes.Internal, "storage unavailable")
}

// HTTPStatus returns the HTTP status code for this error
func (e *StorageError) HTTPStatus() int {
	if e.Duplicate() {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// HTTPStatuser is implemented by errors that map to an HTTP status code.
type HTTPStatuser interface {
	HTTPStatus() int
}

// GRPCStatuser interface for errors that can provide gRPC status
type GRPCStatuser interface {
	GRPCStatus() *status.Status
}

// HTTPStatusOf returns the status code a transport should answer with for err.
func HTTPStatusOf(err error) int {
	var hs HTTPStatuser
	if errors.As(err, &hs) {
		return hs.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// MessageOf returns a client-safe message for err. Internal details of
// storage failures are not exposed.
func MessageOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se.GRPCStatus().Message()
	}
	return "internal server error"
}

// Package faults defines the error kinds shared by every vigil domain package
// and their mapping onto HTTP status codes.
//
// Domain packages declare their own errors by wrapping a kind:
//
//	var ErrNotFound = fmt.Errorf("%w: task", faults.ErrNotFound)
//
// so that callers can match either the specific error or the kind with errors.Is.
package faults

import (
	"errors"
	"net/http"
)

// Error kinds.
var (
	// ErrValidation marks missing or malformed request fields.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an absent task or item.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks an operation attempted in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrEmptyInput marks a task whose source location holds no files.
	ErrEmptyInput = errors.New("empty input")
	// ErrProvisioning marks a failure to discover or create a shared review resource.
	ErrProvisioning = errors.New("provisioning error")
	// ErrClassification marks a failed call to the external classifier.
	ErrClassification = errors.New("classification error")
	// ErrStorage marks a collaborator I/O failure.
	ErrStorage = errors.New("storage error")
)

var clientKinds = []error{
	ErrValidation,
	ErrNotFound,
	ErrInvalidState,
	ErrEmptyInput,
}

// HTTPStatus maps an error onto a response code. Client-correctable kinds
// answer 400; collaborator failures answer 502; anything else is a 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, kind := range clientKinds {
		if errors.Is(err, kind) {
			return http.StatusBadRequest
		}
	}
	if errors.Is(err, ErrProvisioning) ||
		errors.Is(err, ErrClassification) ||
		errors.Is(err, ErrStorage) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Kind returns the name of the kind err carries, or "internal" when it carries none.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrProvisioning):
		return "provisioning"
	case errors.Is(err, ErrClassification):
		return "classification"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}

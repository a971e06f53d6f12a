package apiclient

import (
	"errors"
	"fmt"

	"github.com/rangelabs/rangecloud/pkg/models"
)

// APIError is a transport-level failure: the listener rejected the
// request before it reached the dispatcher.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// ActionError is a resolved action whose reply carries an error type.
type ActionError struct {
	Type    models.ErrorType
	Message string
}

func (e *ActionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("action failed: %s", e.Type)
	}
	return fmt.Sprintf("action failed (%s): %s", e.Type, e.Message)
}

// IsUnauthorized reports whether err is an authorization failure, from
// either the listener or the dispatcher.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401
	}
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Type == models.ErrorUnauthorized
	}
	return false
}

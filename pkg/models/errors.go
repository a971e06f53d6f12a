package models

// ErrorType categorizes a failed operation on the wire and inside the
// service layer. The zero value is ErrorNone.
type ErrorType string

const (
	ErrorNone            ErrorType = "None"
	ErrorInvalidInput    ErrorType = "InvalidInput"
	ErrorInvalidFileName ErrorType = "InvalidFileName"
	ErrorOpenFile        ErrorType = "OpenFile"
	ErrorReadFile        ErrorType = "ReadFile"
	ErrorWriteFile       ErrorType = "WriteFile"
	ErrorUnauthorized    ErrorType = "Unauthorized"
	ErrorNotFound        ErrorType = "NotFound"
	ErrorChildProcess    ErrorType = "ChildProcess"
	ErrorApplication     ErrorType = "Application"
	ErrorUnknown         ErrorType = "Unknown"
)

// IsValid reports whether t is one of the known error types.
func (t ErrorType) IsValid() bool {
	switch t {
	case ErrorNone, ErrorInvalidInput, ErrorInvalidFileName, ErrorOpenFile,
		ErrorReadFile, ErrorWriteFile, ErrorUnauthorized, ErrorNotFound,
		ErrorChildProcess, ErrorApplication, ErrorUnknown:
		return true
	}
	return false
}

// ServiceError is a categorized failure with a human-readable diagnostic.
// Subsystems return it so the dispatcher can mirror the category into the
// reply while keeping the diagnostic as the payload.
type ServiceError struct {
	Type    ErrorType
	Message string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError builds a ServiceError with the given category.
func NewServiceError(t ErrorType, message string) *ServiceError {
	return &ServiceError{Type: t, Message: message}
}

// ErrorTypeOf extracts the category from err. A nil error maps to
// ErrorNone, a plain error to ErrorApplication.
func ErrorTypeOf(err error) ErrorType {
	if err == nil {
		return ErrorNone
	}
	if se, ok := err.(*ServiceError); ok {
		return se.Type
	}
	return ErrorApplication
}

package app

import (
	"fmt"
	"net/http"
)

// DomainError is the tagged result for every expected failure: not-found,
// permission denied, validation conflicts and disabled features all share this
// one shape. Storage faults are wrapped errors instead and map to 500 at the
// HTTP boundary.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func notFound(field, message string) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message, Field: field}
}

func forbidden(message string) *DomainError {
	return &DomainError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: message}
}

func conflict(field, message string) *DomainError {
	return &DomainError{Status: http.StatusConflict, Code: "CONFLICT", Message: message, Field: field}
}

func validation(field, message string) *DomainError {
	return &DomainError{Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: message, Field: field}
}

func featureDisabled(feature string) *DomainError {
	return &DomainError{
		Status:  http.StatusNotFound,
		Code:    "FEATURE_DISABLED",
		Message: feature + " are not enabled for this kind",
		Field:   feature,
	}
}

package services

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// NotFoundError reports an unknown category, module, setting or history row.
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }

// ForbiddenError reports a caller holding none of the required permissions.
type ForbiddenError struct {
	Target   string
	Required []string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("you do not have permission to manage %s settings", e.Target)
}

func (e *ForbiddenError) HTTPStatus() int { return http.StatusForbidden }

// ValidationError carries field-level messages. Nothing is persisted when
// it is returned.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "the given data was invalid: " + strings.Join(keys, ", ")
}

func (e *ValidationError) HTTPStatus() int { return http.StatusUnprocessableEntity }

func (e *ValidationError) FieldErrors() map[string][]string { return e.Fields }

func newFieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {msg}}}
}

// PersistenceError wraps a failure of the transactional apply phase. Its
// message is deliberately generic; the cause is for operator logs only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "failed to save settings, please try again"
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) HTTPStatus() int { return http.StatusInternalServerError }

// ImportFormatError reports an import document with the wrong shape.
type ImportFormatError struct {
	Reason string
}

func (e *ImportFormatError) Error() string {
	return "invalid import file: " + e.Reason
}

func (e *ImportFormatError) HTTPStatus() int { return http.StatusUnprocessableEntity }

func (e *ImportFormatError) FieldErrors() map[string][]string {
	return map[string][]string{"file": {e.Reason}}
}

// ConfigurationError reports a value that is well-formed but semantically
// unusable, such as an unknown timezone. With no Field set it describes a
// server-side wiring problem (a module registered without a handler).
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "settings are misconfigured: " + e.Message
	}
	return e.Message
}

func (e *ConfigurationError) HTTPStatus() int {
	if e.Field == "" {
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

func (e *ConfigurationError) FieldErrors() map[string][]string {
	if e.Field == "" {
		return nil
	}
	return map[string][]string{e.Field: {e.Message}}
}

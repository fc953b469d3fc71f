package registry

import "fmt"

// NotFoundError reports a missing upstream or route.
type NotFoundError struct {
	Kind string // "upstream" or "route"
	Key  string // id or alias
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %q", e.Kind, e.Key)
}

// AlreadyExistsError reports an id or alias collision.
type AlreadyExistsError struct {
	Kind string
	Key  string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %q", e.Kind, e.Key)
}

// ValidationError reports an invariant violation with the offending
// field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Package apperr defines the error taxonomy shared by the membership engine.
//
// Every typed error matches one of the sentinel kinds with errors.Is, so
// callers can branch on the kind without caring about the concrete type:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrPermission     = errors.New("permission denied")
	ErrPartialCascade = errors.New("partial cascade")
	// ErrConflict is returned by a batch commit when a document changed
	// between the snapshot read and the write.
	ErrConflict = errors.New("concurrent modification")
)

// Reasons used by ValidationError.
const (
	ReasonDuplicate = "duplicate"
	ReasonRequired  = "required"
	ReasonMalformed = "malformed"
	ReasonAbsent    = "absent"
	ReasonNotMember = "not_member"
)

// NotFoundError reports a missing center, class, user or cascade.
type NotFoundError struct {
	Entity string
	ID     string
}

func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports malformed input, a duplicate class or an invalid target.
type ValidationError struct {
	Field  string
	Reason string
}

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PermissionError reports an action the access policy denied.
type PermissionError struct {
	Action string
}

func Denied(action string) *PermissionError {
	return &PermissionError{Action: action}
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Action
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// PartialCascadeError is returned when a multi-batch cascade committed some,
// but not all, of its batches. CascadeID identifies the persisted cursor a
// resume pass picks up from.
type PartialCascadeError struct {
	CascadeID string
	Kind      string
	Committed int
	Total     int
	Err       error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("%s cascade %s stopped after %d/%d batches: %v",
		e.Kind, e.CascadeID, e.Committed, e.Total, e.Err)
}

func (e *PartialCascadeError) Unwrap() error { return e.Err }

func (e *PartialCascadeError) Is(target error) bool { return target == ErrPartialCascade }

// Reason returns the ValidationError reason in err's chain, or "".
func Reason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

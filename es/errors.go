package es

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized when a projection needs its document or stream factory
	ErrNotInitialized = errors.New("projection was not initialized with a document and event stream factory")
	// ErrInvalidVersionToken when a token string cannot be parsed
	ErrInvalidVersionToken = errors.New("invalid version token")
	// ErrStatusNotFound when the coordinator has nothing recorded for a key
	ErrStatusNotFound = errors.New("projection status not found")
	// ErrUnknownEventType when the registry can't build an event payload
	ErrUnknownEventType = errors.New("unknown event type")
)

// ComparisonError is returned when comparing versions of different streams
type ComparisonError struct {
	Left  string
	Right string
}

// Error implements the Error method of the error interface.
func (e *ComparisonError) Error() string {
	return fmt.Sprintf("comparing different streams: %q and %q", e.Left, e.Right)
}

// InvalidStateTransitionError is an illegal lifecycle move
type InvalidStateTransitionError struct {
	From ProjectionStatus
	To   ProjectionStatus
}

// Error implements the Error method of the error interface.
func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid projection state transition from %s to %s", e.From, e.To)
}

// UnknownTokenError is returned when a rebuild token doesn't match the recorded rebuild
type UnknownTokenError struct {
	ProjectionName string
	ObjectID       string
	Token          string
}

// Error implements the Error method of the error interface.
func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("unknown rebuild token %q for %s/%s", e.Token, e.ProjectionName, e.ObjectID)
}

// SchemaMismatchError is returned when a stored projection was built with an older schema
type SchemaMismatchError struct {
	ProjectionName string
	ObjectID       string
	Stored         int
	Expected       int
}

// Error implements the Error method of the error interface.
func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("projection %s/%s has schema version %d, code expects %d",
		e.ProjectionName, e.ObjectID, e.Stored, e.Expected)
}

// InvalidOperationError is a misuse of a routed projection
type InvalidOperationError struct {
	Op  string
	Msg string
}

// Error implements the Error method of the error interface.
func (e *InvalidOperationError) Error() string {
	return e.Op + ": " + e.Msg
}

// FoldError is when an event could not be folded. It contains the error
// and the event that caused it.
type FoldError struct {
	// Event is the event that caused the error.
	Event *Event
	// Err is the error that happened when folding the event.
	Err error
}

// Error implements the Error method of the error interface.
func (e *FoldError) Error() string {
	return "failed to fold event " + e.Event.String() + ": " + e.Err.Error()
}

// Unwrap returns the handler error
func (e *FoldError) Unwrap() error {
	return e.Err
}

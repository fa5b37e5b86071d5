package domain

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when an operation is already in flight for a conversation.
var ErrBusy = errors.New("conversation busy")

// ErrStaleChoice is returned when a choice was offered on a node that is no longer displayed.
var ErrStaleChoice = errors.New("choice does not belong to the displayed node")

// ErrTerminated is returned when acting on a conversation that has ended.
var ErrTerminated = errors.New("conversation terminated")

// ErrNotStarted is returned when advancing a conversation that has not shown a node yet.
var ErrNotStarted = errors.New("conversation not started")

// ErrConversationNotFound is returned when a conversation ID cannot be found in the store.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrNodeNotFound is returned by content sources for unknown node ids.
var ErrNodeNotFound = errors.New("node not found")

// ContentErrorKind classifies content service failures.
type ContentErrorKind string

const (
	ContentTimeout     ContentErrorKind = "timeout"
	ContentUnavailable ContentErrorKind = "unavailable"
	ContentNotFound    ContentErrorKind = "not_found"
	ContentMalformed   ContentErrorKind = "malformed"
)

// ContentError is the only error shape the content client returns.
type ContentError struct {
	Op     string
	Kind   ContentErrorKind
	Status int
	Err    error
}

func (e *ContentError) Error() string {
	msg := fmt.Sprintf("content %s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// IsContentKind reports whether err is a ContentError of the given kind.
func IsContentKind(err error, kind ContentErrorKind) bool {
	var ce *ContentError
	return errors.As(err, &ce) && ce.Kind == kind
}

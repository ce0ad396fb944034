package destination

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a status change would move a destination backwards
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the lifecycle state of a destination
type Status string

const (
	StatusInit    Status = "init"
	StatusStarted Status = "started"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ParseStatus converts a stored status tag into a Status
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusInit, StatusStarted, StatusSuccess, StatusFailed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal reports whether no further transition is allowed without a reset
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransition reports whether s -> to is a forward move along init -> started -> success|failed
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusInit:
		return to == StatusStarted
	case StatusStarted:
		return to == StatusSuccess || to == StatusFailed
	default:
		return false
	}
}

// Error is the structured error attached to a failed destination
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Base carries the fields shared by every destination level
type Base struct {
	timestamp time.Time
	status    Status
	err       *Error
	URL       string
}

func newBase() Base {
	return Base{
		timestamp: time.Now(),
		status:    StatusInit,
	}
}

// Timestamp returns the creation time
func (b *Base) Timestamp() time.Time { return b.timestamp }

// Status returns the current lifecycle state
func (b *Base) Status() Status { return b.status }

// Err returns the structured error, nil unless the destination failed
func (b *Base) Err() *Error { return b.err }

// Start moves the destination from init to started
func (b *Base) Start() error {
	return b.transition(StatusStarted, nil)
}

// Succeed moves the destination from started to success
func (b *Base) Succeed() error {
	return b.transition(StatusSuccess, nil)
}

// Fail moves the destination from started to failed and records err
func (b *Base) Fail(err *Error) error {
	if err == nil {
		err = &Error{Code: "unknown", Message: "unknown error"}
	}
	return b.transition(StatusFailed, err)
}

// Reset puts the destination back to init and clears the error
func (b *Base) Reset() {
	b.status = StatusInit
	b.err = nil
}

func (b *Base) transition(to Status, err *Error) error {
	if !b.status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.status, to)
	}
	b.status = to
	b.err = err
	return nil
}

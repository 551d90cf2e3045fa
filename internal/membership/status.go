// Package membership defines the lifecycle of a member and the transitions an administrator may apply.
package membership

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a member.
type Status string

const (
	StatusAwaitingPayment  Status = "awaiting_payment"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusActive           Status = "active"
	StatusResigned         Status = "resigned"
	StatusRejected         Status = "rejected"
)

// ErrInvalidTransition is matched by every error returned from ValidateTransition.
var ErrInvalidTransition = errors.New("membership: invalid status transition")

// ErrUnknownStatus is returned by ParseStatus for values outside the enumeration.
var ErrUnknownStatus = errors.New("membership: unknown status")

// transitions lists the permitted targets for each source status. Self-loops are never listed.
var transitions = map[Status][]Status{
	StatusAwaitingPayment:  {StatusActive, StatusAwaitingApproval, StatusRejected},
	StatusAwaitingApproval: {StatusActive, StatusRejected},
	StatusActive:           {StatusResigned},
	StatusResigned:         {StatusActive},
	StatusRejected:         {StatusActive},
}

var ordered = []Status{
	StatusAwaitingPayment,
	StatusAwaitingApproval,
	StatusActive,
	StatusResigned,
	StatusRejected,
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("membership: cannot move from %q to %q", e.From, e.To)
}

// Is lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(ordered))
	copy(out, ordered)
	return out
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string { return string(s) }

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
	return s, nil
}

// Next returns the statuses reachable from from in a single step.
func Next(from Status) []Status {
	targets := transitions[from]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// IsValidTransition reports whether from may move to to. Unknown statuses never transition.
func IsValidTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns to when the move is permitted and a *TransitionError otherwise.
func ValidateTransition(from, to Status) (Status, error) {
	if !IsValidTransition(from, to) {
		return "", &TransitionError{From: from, To: to}
	}
	return to, nil
}

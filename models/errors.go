package models

import (
	"errors"
	"fmt"
)

// Sentinels for the failure modes callers need to tell apart. Handlers map
// them onto HTTP statuses; everything else stays a plain 500.
var (
	// no active in-rotation templates for the location; an admin problem, not a recipient one
	ErrNoTemplatesAvailable = errors.New("no active check templates available for this location")

	ErrTokenNotFound    = errors.New("link is invalid")
	ErrTokenExpired     = errors.New("this link has expired")
	ErrTokenAlreadyUsed = errors.New("this link has already been used")

	ErrRunExpired        = errors.New("this check run has expired")
	ErrRunNotFound       = errors.New("check run not found")
	ErrRunItemNotFound   = errors.New("check item not found")
	ErrMediaNotFound     = errors.New("evidence media not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// EvidenceRequiredError names the precondition the submission is missing.
type EvidenceRequiredError struct {
	RunItemId int
	Reason    EvidenceReason
}

func (e *EvidenceRequiredError) Error() string {
	return fmt.Sprintf("evidence required: %s", e.Reason.Describe())
}

func NewEvidenceRequiredError(runItemId int, reason EvidenceReason) error {
	return &EvidenceRequiredError{RunItemId: runItemId, Reason: reason}
}

// IsEvidenceRequired unwraps a submission error into its evidence reason.
func IsEvidenceRequired(err error) (*EvidenceRequiredError, bool) {
	var e *EvidenceRequiredError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TransitionError reports a rejected lifecycle move with both states named,
// wrapping ErrInvalidTransition so errors.Is still works at the boundary.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func newTransitionError(entity, from, to string) error {
	return &TransitionError{Entity: entity, From: from, To: to}
}

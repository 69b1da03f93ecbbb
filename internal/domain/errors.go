package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrOptionNotFound indicates a selected option is not part of the current question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrSessionNotActive is returned for quiz actions outside the Active phase.
	ErrSessionNotActive = errors.New("quiz session is not active")
	// ErrNoSelection is returned when submitting without a selected answer.
	ErrNoSelection = errors.New("no answer selected")
	// ErrQuizExpired is returned when launching a quiz whose window has closed.
	ErrQuizExpired = errors.New("quiz expired")
	// ErrWorkflowBusy is returned when an action is not allowed in the current phase.
	ErrWorkflowBusy = errors.New("action not allowed in current phase")
	// ErrWorkflowClosed is returned once a workflow has been closed.
	ErrWorkflowClosed = errors.New("workflow closed")
	// ErrRetriesExhausted is matched by every error returned after the retry budget is spent.
	ErrRetriesExhausted = errors.New("failed to fetch data after multiple retries")
)

// ValidationError is a local, pre-network rule violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// RemoteDomainError is a non-success or malformed response from the API.
// Message is safe to show to the user.
type RemoteDomainError struct {
	Status  int
	Message string
}

func (e *RemoteDomainError) Error() string { return e.Message }

// AlreadyMemberError is a successful lookup of a league the user already belongs to.
type AlreadyMemberError struct {
	League string
}

func (e *AlreadyMemberError) Error() string {
	return fmt.Sprintf("You are already a member of %s.", e.League)
}

// ExhaustedRetriesError is returned when the API kept rate limiting past the retry budget.
type ExhaustedRetriesError struct {
	Attempts int
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("rate limited: %s (%d attempts)", ErrRetriesExhausted, e.Attempts)
}

func (e *ExhaustedRetriesError) Is(target error) bool { return target == ErrRetriesExhausted }

// NetworkError is returned when the transport kept failing past the retry budget.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s (%d attempts): %v", ErrRetriesExhausted, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrRetriesExhausted }

// UserMessage maps an error to the text a player should see.
func UserMessage(err error, fallback string) string {
	var (
		validation *ValidationError
		remote     *RemoteDomainError
		member     *AlreadyMemberError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &member):
		return member.Error()
	case errors.As(err, &remote):
		if remote.Message != "" {
			return remote.Message
		}
		return fallback
	case errors.Is(err, ErrRetriesExhausted):
		return "Failed to fetch data after multiple retries."
	default:
		return fallback
	}
}

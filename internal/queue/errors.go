package queue

import (
	"errors"
	"fmt"
)

var (
	ErrQueueNotFound     = errors.New("queue not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrValidation        = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid transition")
)

// InvalidTransitionError reports a structurally illegal edge. The message
// names both states so callers can tell which retry raced them.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

package engine

import (
	"errors"
	"fmt"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrIllegalTransition  = errors.New("illegal transition")
	ErrMissingMeasurement = errors.New("no measurement recorded at current site")
	ErrInvalidInput       = errors.New("invalid input")
)

// TransitionError carries the current state, the attempted event, and an
// operator-facing reason. It is surfaced verbatim; callers are expected to
// display why the event was rejected, not just that it was.
type TransitionError struct {
	Status model.AllocationStatus
	Event  Event
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: event %s not valid in status %s: %s", e.Event, e.Status, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

func illegal(status model.AllocationStatus, event Event, reason string) error {
	return &TransitionError{Status: status, Event: event, Reason: reason}
}

package lineage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEvent is matched by every InvalidEventError.
var ErrInvalidEvent = errors.New("invalid lineage event")

// InvalidEventError reports the fields that prevented an event from being
// built. It always indicates a programming or configuration mistake.
type InvalidEventError struct {
	// Fields holds the snake_case names of the offending inputs, in
	// declaration order.
	Fields []string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("%s: invalid fields: %s", ErrInvalidEvent, strings.Join(e.Fields, ", "))
}

// Is makes errors.Is(err, ErrInvalidEvent) succeed.
func (e *InvalidEventError) Is(target error) bool {
	return target == ErrInvalidEvent
}

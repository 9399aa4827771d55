package controller

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrGenerationActive is returned when an operation needs exclusive access to
// a session that is still generating.
var ErrGenerationActive = errors.New("a generation is already running for this session")

// InvalidStateError reports an operation applied to a session element it
// cannot work on, such as regenerating a user message.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

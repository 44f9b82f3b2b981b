package render

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for a request kind without a layout.
	ErrUnknownKind = errors.New("unknown request kind")
	// ErrLayout wraps failures raised while drawing.
	ErrLayout = errors.New("layout failed")
)

// Error is a failed render operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("render: %s: unknown error", e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

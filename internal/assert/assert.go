// Package assert panics on broken internal invariants. It is reserved for
// conditions that indicate a logic error, never for bad caller input.
package assert

import "fmt"

// InvariantError is the panic value raised by True.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Msg
}

func True(ok bool, format string, args ...any) {
	if !ok {
		panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
	}
}

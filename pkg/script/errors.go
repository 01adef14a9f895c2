package script

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHex reports an odd digit count or a character that is neither a
	// hex digit nor, in expected responses, a wildcard.
	ErrMalformedHex = errors.New("malformed hex")

	// ErrIncompletePair reports a command line that reached end of input without
	// its expected response. Runs treat it as a normal stop.
	ErrIncompletePair = errors.New("incomplete script pair")

	// ErrResponseMismatch reports a response rejected by the expected pattern.
	ErrResponseMismatch = errors.New("unexpected response")
)

// SyntaxError locates a script line that could not be decoded.
type SyntaxError struct {
	Line int
	Text string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// TransmitError wraps a failure of the transport for the Index-th command (1-based).
type TransmitError struct {
	Index int
	Err   error
}

func (e *TransmitError) Error() string {
	return fmt.Sprintf("command %d: transmit failed: %v", e.Index, e.Err)
}

func (e *TransmitError) Unwrap() error { return e.Err }

// MismatchError records a response that did not match its expected pattern.
type MismatchError struct {
	Index    int
	Expected Pattern
	Actual   []byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("command %d: %v: expected %s, got %s", e.Index, ErrResponseMismatch, e.Expected, EncodeHex(e.Actual))
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrResponseMismatch
}

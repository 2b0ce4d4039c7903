package emodul

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is reported when an operation needs a bearer session that
// is not established, and by every failed write command.
var ErrUnauthorized = errors.New("emodul: unauthorized (401)")

// ErrInvalidArgument is reported for unknown preset or fan modes.
var ErrInvalidArgument = errors.New("emodul: invalid argument")

// ErrZoneNotFound is reported by Zone when the id is not in the zone cache.
var ErrZoneNotFound = errors.New("emodul: zone not found")

// ProtocolError is returned for any non-200 response.
type ProtocolError struct {
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("emodul: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Is lets a 401 from the server match ErrUnauthorized.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == 401
}

// DecodeError is returned when a 200 response does not carry valid JSON.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("emodul: decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CommandError wraps every failure of a control command. It always matches
// ErrUnauthorized so a host can react with a single re-authentication path,
// while Unwrap keeps the real cause (for example a *ProtocolError with a 500)
// available through errors.As.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("emodul: %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) Is(target error) bool { return target == ErrUnauthorized }

// RefreshError reports a failed cache refresh. The cache that was in place
// before the attempt is returned alongside it, untouched.
type RefreshError struct {
	Module string
	Err    error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("emodul: refresh module %s: %v", e.Module, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

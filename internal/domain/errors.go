package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConnection    = errors.New("broker connection failed")
	ErrParse         = errors.New("malformed record")
	ErrInvalidRecord = errors.New("invalid record")
	ErrInvalidRate   = errors.New("rate must be positive")
)

// Connection stages, in the order they are attempted.
const (
	StageDial    = "dial"
	StageChannel = "channel"
	StageDeclare = "declare"
)

type (
	// ConnectionError reports which step of the connect sequence failed for a role.
	ConnectionError struct {
		Role  string
		Stage string
		Cause error
	}

	// ParseError reports a delivery body that could not be turned into a Record.
	ParseError struct {
		Body  []byte
		Cause error
	}
)

func NewConnectionError(role, stage string, cause error) *ConnectionError {
	return &ConnectionError{
		Role:  role,
		Stage: stage,
		Cause: cause,
	}
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s failed at %s: %v", ErrConnection, e.Role, e.Stage, e.Cause)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Cause}
}

func NewParseError(body []byte, cause error) *ParseError {
	return &ParseError{
		Body:  body,
		Cause: cause,
	}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", ErrParse, e.Cause)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Cause}
}

func IsConnectionError(err error) bool {
	var connErr *ConnectionError

	return errors.As(err, &connErr)
}

func IsParseError(err error) bool {
	var parseErr *ParseError

	return errors.As(err, &parseErr)
}

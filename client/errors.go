package client

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// RemoteError is a failure reported by the server: the invoked method
// returned an error, or the call could not be served.
type RemoteError struct {
	Type    string // failure kind or Go type name of the remote error
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %s: %s", e.Type, e.Message)
}

// ErrorType keeps the remote kind when the error is returned again by a
// service that is itself served by pbtcp.
func (e *RemoteError) ErrorType() string { return e.Type }

// CommunicationError is returned when the server could not be reached or
// its reply could not be understood, after all retries.
type CommunicationError struct {
	Address string
	Method  string
	Err     error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("client: calling %s on %s: %v", e.Method, e.Address, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

var (
	// ErrInterfaceMismatch is wrapped by InterfaceMismatchError.
	ErrInterfaceMismatch = errors.New("client: capability not declared")
	ErrPoolClosed        = errors.New("client: pool closed")
)

// InterfaceMismatchError is returned by As for a type the client was not
// built with.
type InterfaceMismatchError struct {
	Type reflect.Type
}

func (e *InterfaceMismatchError) Error() string {
	return fmt.Sprintf("client: %v is not a declared capability", e.Type)
}

func (e *InterfaceMismatchError) Unwrap() error { return ErrInterfaceMismatch }

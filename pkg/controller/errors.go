package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrInsecureContext is fatal: the embedding page must be served over a
	// context that permits camera and microphone access. Switching servers
	// cannot clear it; only fixing the deployment can.
	ErrInsecureContext = errors.New("HTTPS is required for camera and microphone access")

	// ErrContainerUnavailable means the rendering surface never mounted
	// within the bounded poll. Usually transient.
	ErrContainerUnavailable = errors.New("rendering surface did not become available")

	// ErrSessionClosed is returned for operations on a closed controller.
	ErrSessionClosed = errors.New("session controller is closed")

	// ErrNotRecoverable is returned when retry or server switch is requested
	// from a state that does not offer it.
	ErrNotRecoverable = errors.New("session is not in a recoverable state")
)

// ValidationError reports bad room or identity input. Recovered locally with
// an inline field message; no state transition happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConnectivityError is a generic join failure against one server. Retryable,
// and a different server may succeed.
type ConnectivityError struct {
	Domain string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Domain, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// MembersOnlyError means the server's waiting room blocked the join. Only a
// different server or host action outside this system recovers it.
type MembersOnlyError struct {
	Domain string
}

func (e *MembersOnlyError) Error() string {
	return fmt.Sprintf("waiting room is enabled on %s", e.Domain)
}

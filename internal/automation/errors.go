package automation

import "errors"

// Domain errors for the automation package. Check with errors.Is.
var (
	// ErrUnknownEvent is returned when an event name is not an EventKind.
	ErrUnknownEvent = errors.New("automation: unknown event")

	// ErrUnknownAction is returned when an action name is not an ActionKind.
	ErrUnknownAction = errors.New("automation: unknown action")

	// ErrInvalidDelay is returned for negative, non-finite or oversized delays.
	ErrInvalidDelay = errors.New("automation: invalid delay")

	// ErrInvalidDevice is returned for an empty device identifier.
	ErrInvalidDevice = errors.New("automation: invalid device id")

	// ErrRegistrationNotFound is returned when no registration matches.
	ErrRegistrationNotFound = errors.New("automation: registration not found")

	// ErrDispatcherClosed is returned by OnEvent after Close.
	ErrDispatcherClosed = errors.New("automation: dispatcher closed")
)

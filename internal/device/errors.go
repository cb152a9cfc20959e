package device

import "errors"

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when a MAC is not in the inventory.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrUnknownType is returned when an inventory type has no category.
	ErrUnknownType = errors.New("device: unknown type")

	// ErrInvalidInventory is returned when the inventory file cannot be used.
	ErrInvalidInventory = errors.New("device: invalid inventory")

	// ErrCommandFailed is returned when a command cannot be delivered to the bridge.
	ErrCommandFailed = errors.New("device: command failed")

	// ErrInvalidState is returned when a state payload cannot be decoded.
	ErrInvalidState = errors.New("device: invalid state payload")

	// ErrNoPublisher is returned when a command is issued without a transport.
	ErrNoPublisher = errors.New("device: no publisher configured")
)

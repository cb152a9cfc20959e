package octoprint

import "errors"

var (
	// ErrNoSubscriber is returned by Start when the bridge has no MQTT client.
	ErrNoSubscriber = errors.New("octoprint: no MQTT subscriber configured")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("octoprint: bridge already started")
)

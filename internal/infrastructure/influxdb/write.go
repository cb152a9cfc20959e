package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	// MeasurementActions holds one point per finished delayed action.
	MeasurementActions = "scheduled_actions"

	// MeasurementEvents holds one point per dispatched host event.
	MeasurementEvents = "host_events"
)

// ActionOutcome describes a delayed action that reached a terminal state.
type ActionOutcome struct {
	DeviceMAC    string
	Event        string
	Action       string
	State        string // completed, cancelled or failed
	DelaySeconds float64
	// ElapsedSeconds is the time between scheduling and the terminal state.
	ElapsedSeconds float64
	Error          string
	At             time.Time
}

// WriteActionOutcome records a finished delayed action.
func (c *Client) WriteActionOutcome(o ActionOutcome) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"delay_seconds":   o.DelaySeconds,
		"elapsed_seconds": o.ElapsedSeconds,
		"count":           1,
	}
	if o.Error != "" {
		fields["error"] = o.Error
	}

	at := o.At
	if at.IsZero() {
		at = time.Now()
	}

	c.writer.WritePoint(write.NewPoint(
		MeasurementActions,
		map[string]string{
			"device_mac": o.DeviceMAC,
			"event":      o.Event,
			"action":     o.Action,
			"state":      o.State,
		},
		fields,
		at,
	))
}

// WriteEventDispatch records how one host event was handled.
func (c *Client) WriteEventDispatch(event string, scheduled, cancelled, dropped int) {
	if !c.IsConnected() {
		return
	}

	c.writer.WritePoint(write.NewPoint(
		MeasurementEvents,
		map[string]string{"event": event},
		map[string]interface{}{
			"scheduled": scheduled,
			"cancelled": cancelled,
			"dropped":   dropped,
		},
		time.Now(),
	))
}

package automation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind is a named occurrence on the printer host.
//
// The ordinal only indexes fixed-size tables. Persistence and the wire
// format always use the name, so reordering the constants is safe.
type EventKind int

// Event kinds, in display order.
const (
	EventClientOpened EventKind = iota
	EventClientClosed
	EventPrintStarted
	EventPrintFailed
	EventPrintDone
	EventPrintCancelled
	EventPrintPaused
	EventPrintResumed
	EventCaptureStart
	EventCaptureDone
	EventCaptureFailed

	// NumEventKinds sizes per-event tables.
	NumEventKinds = int(EventCaptureFailed) + 1
)

var eventNames = [NumEventKinds]string{
	EventClientOpened:   "ClientOpened",
	EventClientClosed:   "ClientClosed",
	EventPrintStarted:   "PrintStarted",
	EventPrintFailed:    "PrintFailed",
	EventPrintDone:      "PrintDone",
	EventPrintCancelled: "PrintCancelled",
	EventPrintPaused:    "PrintPaused",
	EventPrintResumed:   "PrintResumed",
	EventCaptureStart:   "CaptureStart",
	EventCaptureDone:    "CaptureDone",
	EventCaptureFailed:  "CaptureFailed",
}

var eventsByName = func() map[string]EventKind {
	m := make(map[string]EventKind, NumEventKinds)
	for i, name := range eventNames {
		m[name] = EventKind(i)
	}
	return m
}()

// ParseEvent resolves a stable event name. Matching is case-sensitive.
func ParseEvent(name string) (EventKind, error) {
	if e, ok := eventsByName[name]; ok {
		return e, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// Valid reports whether e is a defined event kind.
func (e EventKind) Valid() bool {
	return e >= 0 && int(e) < NumEventKinds
}

// String returns the stable name.
func (e EventKind) String() string {
	if !e.Valid() {
		return fmt.Sprintf("EventKind(%d)", int(e))
	}
	return eventNames[e]
}

// MarshalText encodes the event as its stable name.
func (e EventKind) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: ordinal %d", ErrUnknownEvent, int(e))
	}
	return []byte(eventNames[e]), nil
}

// UnmarshalText decodes a stable event name.
func (e *EventKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEvent(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ActionKind is the effect applied to a device.
type ActionKind int

// Action kinds. TurnOn sorts first and wins rule ties.
const (
	ActionTurnOn ActionKind = iota
	ActionTurnOff

	// NumActionKinds sizes per-action tables.
	NumActionKinds = int(ActionTurnOff) + 1
)

var actionNames = [NumActionKinds]string{
	ActionTurnOn:  "TurnOn",
	ActionTurnOff: "TurnOff",
}

// ParseAction resolves a stable action name. Matching is case-sensitive.
func ParseAction(name string) (ActionKind, error) {
	for i, n := range actionNames {
		if n == name {
			return ActionKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Valid reports whether a is a defined action kind.
func (a ActionKind) Valid() bool {
	return a >= 0 && int(a) < NumActionKinds
}

// String returns the stable name.
func (a ActionKind) String() string {
	if !a.Valid() {
		return fmt.Sprintf("ActionKind(%d)", int(a))
	}
	return actionNames[a]
}

// MarshalText encodes the action as its stable name.
func (a ActionKind) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: ordinal %d", ErrUnknownAction, int(a))
	}
	return []byte(actionNames[a]), nil
}

// UnmarshalText decodes a stable action name.
func (a *ActionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// EventNames returns every event name in ordinal order.
func EventNames() []string {
	return append([]string(nil), eventNames[:]...)
}

// ActionNames returns every action name in ordinal order.
func ActionNames() []string {
	return append([]string(nil), actionNames[:]...)
}

// Registration binds (device, event) to an action run after a delay.
// (DeviceID, Event, Action) is unique.
type Registration struct {
	DeviceID     string     `json:"device_mac"`
	Event        EventKind  `json:"event_name"`
	Action       ActionKind `json:"action_name"`
	DelaySeconds float64    `json:"delay_seconds"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Delay returns the registration delay as a Duration.
func (r Registration) Delay() time.Duration {
	return time.Duration(r.DelaySeconds * float64(time.Second))
}

// Cancellation cancels a pending Action for DeviceID when Event fires.
// (DeviceID, Event, Action) is unique.
type Cancellation struct {
	DeviceID  string     `json:"device_mac"`
	Event     EventKind  `json:"event_name"`
	Action    ActionKind `json:"action_name"`
	CreatedAt time.Time  `json:"created_at"`
}

// RuleCell is one (event, action) cell of a device's rule table.
type RuleCell struct {
	Registered   bool    `json:"registered"`
	DelaySeconds float64 `json:"delay_seconds"`

	// CancelOnSameEvent is set when a cancellation rule cancels this
	// action whenever this event fires.
	CancelOnSameEvent bool `json:"cancel_on_same_event"`
}

// RuleTable is the per-device read projection used by the UI: one row per
// event kind for each action kind.
type RuleTable struct {
	DeviceID string                  `json:"device_mac"`
	TurnOn   [NumEventKinds]RuleCell `json:"turn_on"`
	TurnOff  [NumEventKinds]RuleCell `json:"turn_off"`
}

// Cell returns a pointer to the cell for (action, event).
func (t *RuleTable) Cell(action ActionKind, event EventKind) *RuleCell {
	if action == ActionTurnOff {
		return &t.TurnOff[event]
	}
	return &t.TurnOn[event]
}

// ActionState is the lifecycle state of a DelayedAction.
type ActionState string

// Action states.
const (
	StateRunning   ActionState = "running"
	StateFiring    ActionState = "firing"
	StateCompleted ActionState = "completed"
	StateCancelled ActionState = "cancelled"
	StateFailed    ActionState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ActionState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// PendingAction is a point-in-time copy of a DelayedAction.
type PendingAction struct {
	ID               string      `json:"id"`
	DeviceID         string      `json:"device_mac"`
	Event            EventKind   `json:"event_name"`
	Action           ActionKind  `json:"action_name"`
	TotalSeconds     float64     `json:"total_seconds"`
	RemainingSeconds float64     `json:"remaining_seconds"`
	State            ActionState `json:"state"`
	ScheduledAt      time.Time   `json:"scheduled_at"`
	FinishedAt       *time.Time  `json:"finished_at,omitempty"`
	Error            string      `json:"error,omitempty"`
}

// GenerateID returns a new identifier for a pending action.
func GenerateID() string {
	return uuid.NewString()
}

// Package automation implements printrelay's event-triggered delayed-action
// scheduler.
//
// A user declares rules per device:
//
//   - Registration: when event E fires, run action A after a delay.
//   - Cancellation: when event E fires, cancel any pending action A.
//
// Rules live in SQLite (Repository) and are edited through Rules, which
// parses event and action names and validates delays. At runtime the
// Dispatcher turns each host event into cancellations and newly scheduled
// DelayedActions. A PendingRegistry holds the running actions and allows
// at most one per device.
//
// # Lifecycle of a delayed action
//
//	running ──(delay elapsed)──> firing ──> completed | failed
//	   │
//	   └──(Cancel / shutdown)──> cancelled
//
// Expiry claims the running→firing transition under the action lock, so a
// cancel that loses the race is a no-op and a cancelled action never
// touches the device. Terminal actions remove themselves from the registry.
//
// Pending actions are memory only. Rules survive a restart; countdowns
// in flight do not.
//
// # Thread Safety
//
// Rules, Dispatcher, PendingRegistry and DelayedAction are safe for
// concurrent use. Lock order is registry before action.
package automation

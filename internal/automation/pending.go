package automation

import (
	"sort"
	"sync"
)

// PendingRegistry holds the delayed actions that have not finished yet,
// at most one per device.
//
// A single mutex linearises TryAdd, CancelMatching and the self-removal of
// finishing actions. It is taken before any action lock, never after.
type PendingRegistry struct {
	mu      sync.Mutex
	actions map[string]*DelayedAction
}

// NewPendingRegistry creates an empty registry.
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{actions: make(map[string]*DelayedAction)}
}

// TryAdd stores a unless its device already has a pending action, and
// reports whether it was stored.
func (r *PendingRegistry) TryAdd(a *DelayedAction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.DeviceID()
	if _, busy := r.actions[id]; busy {
		return false
	}
	r.actions[id] = a
	return true
}

// CancelMatching cancels and removes the device's pending action if it is
// of the given kind, returning how many were cancelled. An action that is
// already firing cannot be cancelled and stays until it finishes, so a
// registration triggered by the same event is dropped as busy.
func (r *PendingRegistry) CancelMatching(deviceID string, action ActionKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actions[deviceID]
	if !ok || a.Action() != action {
		return 0
	}
	if !a.Cancel() {
		return 0
	}
	delete(r.actions, deviceID)
	return 1
}

// CancelDevice cancels the device's pending action of any kind.
func (r *PendingRegistry) CancelDevice(deviceID string) int {
	n := 0
	for kind := range NumActionKinds {
		n += r.CancelMatching(deviceID, ActionKind(kind))
	}
	return n
}

// CancelAll cancels every running action. Used on shutdown.
func (r *PendingRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, a := range r.actions {
		if a.Cancel() {
			delete(r.actions, id)
			n++
		}
	}
	return n
}

// remove deletes a only if it is still the device's registered action, so
// a finishing action never evicts a newer one.
func (r *PendingRegistry) remove(a *DelayedAction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.DeviceID()
	if r.actions[id] != a {
		return false
	}
	delete(r.actions, id)
	return true
}

// Get returns the device's pending action.
func (r *PendingRegistry) Get(deviceID string) (*DelayedAction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[deviceID]
	return a, ok
}

// Len returns the number of pending actions.
func (r *PendingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

// List returns snapshots of every pending action sorted by device.
func (r *PendingRegistry) List() []PendingAction {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PendingAction, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}

package automation

import (
	"testing"
	"time"
)

func TestPendingRegistry_TryAddOnePerDevice(t *testing.T) {
	r := NewPendingRegistry()
	first := newTestAction(newMockDevice("AA"), ActionTurnOn, time.Hour)
	second := newTestAction(newMockDevice("AA"), ActionTurnOff, time.Hour)
	other := newTestAction(newMockDevice("BB"), ActionTurnOn, time.Hour)

	if !r.TryAdd(first) {
		t.Fatal("TryAdd(first) = false")
	}
	if r.TryAdd(second) {
		t.Error("TryAdd() accepted a second action for a busy device")
	}
	if !r.TryAdd(other) {
		t.Error("TryAdd() rejected a different device")
	}
	if got, _ := r.Get("AA"); got != first {
		t.Error("Get(AA) did not return the first action")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestPendingRegistry_CancelMatching(t *testing.T) {
	tests := []struct {
		name       string
		pending    ActionKind
		cancel     ActionKind
		wantCount  int
		wantRemain int
	}{
		{"same kind", ActionTurnOn, ActionTurnOn, 1, 0},
		{"other kind", ActionTurnOn, ActionTurnOff, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPendingRegistry()
			a := newTestAction(newMockDevice("AA"), tt.pending, time.Hour)
			r.TryAdd(a)

			if got := r.CancelMatching("AA", tt.cancel); got != tt.wantCount {
				t.Errorf("CancelMatching() = %d, want %d", got, tt.wantCount)
			}
			if r.Len() != tt.wantRemain {
				t.Errorf("Len() = %d, want %d", r.Len(), tt.wantRemain)
			}
			if got := r.CancelMatching("missing", tt.cancel); got != 0 {
				t.Errorf("CancelMatching(missing) = %d", got)
			}
		})
	}
}

func TestPendingRegistry_FiringActionNotCancelled(t *testing.T) {
	r := NewPendingRegistry()
	a := newTestAction(newMockDevice("AA"), ActionTurnOn, 0)
	r.TryAdd(a)

	// Claim the action the way the countdown does at expiry.
	if !a.tick() {
		t.Fatal("tick() did not claim a zero-delay action")
	}

	if got := r.CancelMatching("AA", ActionTurnOn); got != 0 {
		t.Errorf("CancelMatching() = %d on a firing action", got)
	}
	if r.Len() != 1 {
		t.Error("firing action left the registry before finishing")
	}
}

func TestPendingRegistry_RemoveOnlySameAction(t *testing.T) {
	r := NewPendingRegistry()
	old := newTestAction(newMockDevice("AA"), ActionTurnOn, time.Hour)
	current := newTestAction(newMockDevice("AA"), ActionTurnOff, time.Hour)
	r.TryAdd(current)

	if r.remove(old) {
		t.Error("remove() evicted a newer action")
	}
	if !r.remove(current) {
		t.Error("remove() did not remove the registered action")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestPendingRegistry_CancelDeviceAndAll(t *testing.T) {
	r := NewPendingRegistry()
	for _, id := range []string{"AA", "BB", "CC"} {
		r.TryAdd(newTestAction(newMockDevice(id), ActionTurnOff, time.Hour))
	}

	if got := r.CancelDevice("BB"); got != 1 {
		t.Errorf("CancelDevice(BB) = %d, want 1", got)
	}
	if got := r.CancelAll(); got != 2 {
		t.Errorf("CancelAll() = %d, want 2", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestPendingRegistry_ListSorted(t *testing.T) {
	r := NewPendingRegistry()
	for _, id := range []string{"CC", "AA", "BB"} {
		r.TryAdd(newTestAction(newMockDevice(id), ActionTurnOn, time.Minute))
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	for i, want := range []string{"AA", "BB", "CC"} {
		if list[i].DeviceID != want {
			t.Errorf("List()[%d] = %s, want %s", i, list[i].DeviceID, want)
		}
		if list[i].State != StateRunning || list[i].TotalSeconds != 60 {
			t.Errorf("List()[%d] = %+v", i, list[i])
		}
	}
}

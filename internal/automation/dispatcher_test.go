package automation

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, rules RuleSource) (*Dispatcher, *mockHub, *mockRecorder) {
	t.Helper()
	d := NewDispatcher(rules, DispatcherConfig{PollInterval: testPoll, InvokeTimeout: time.Second}, nil)
	hub := &mockHub{}
	rec := &mockRecorder{}
	d.SetBroadcaster(hub)
	d.SetRecorder(rec)
	t.Cleanup(d.Close)
	return d, hub, rec
}

func TestDispatcher_UnknownEventIgnored(t *testing.T) {
	_, repo := setupTestRules(t)
	d, hub, _ := newTestDispatcher(t, repo)

	result, err := d.OnEvent(context.Background(), "PrinterExploded", []Device{newMockDevice("AA")})
	if err != nil {
		t.Fatalf("OnEvent() error = %v", err)
	}
	if !result.Ignored {
		t.Error("unknown event not reported as ignored")
	}
	if len(hub.channels()) != 0 {
		t.Errorf("broadcasts = %v, want none", hub.channels())
	}
}

func TestDispatcher_NaturalCompletion(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	if err := rules.Register(ctx, "AA", "PrintDone", "TurnOff", 0); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d, hub, rec := newTestDispatcher(t, repo)
	dev := newMockDevice("AA")

	result, err := d.OnEvent(ctx, "PrintDone", []Device{dev})
	if err != nil {
		t.Fatalf("OnEvent() error = %v", err)
	}
	if len(result.Scheduled) != 1 || result.Scheduled[0].Action != ActionTurnOff {
		t.Fatalf("Scheduled = %+v, want one TurnOff", result.Scheduled)
	}

	waitFor(t, time.Second, func() bool { return len(rec.outcomeStates()) == 1 })

	if _, off := dev.calls(); off != 1 {
		t.Errorf("TurnOff calls = %d, want 1", off)
	}
	if d.PendingRegistry().Len() != 0 {
		t.Error("completed action still pending")
	}
	want := []string{ChannelActionScheduled, ChannelActionCompleted}
	if got := hub.channels(); !slices.Equal(got, want) {
		t.Errorf("broadcasts = %v, want %v", got, want)
	}
	if got := rec.outcomeStates(); !slices.Equal(got, []ActionState{StateCompleted}) {
		t.Errorf("outcomes = %v", got)
	}
}

func TestDispatcher_ZeroDelayFiresWithoutPendingWindow(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	if err := rules.Register(ctx, "AA", "PrintDone", "TurnOff", 0); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	// Production poll interval, so waiting for a tick would take 500ms.
	d := NewDispatcher(repo, DispatcherConfig{}, nil)
	t.Cleanup(d.Close)
	dev := newMockDevice("AA")

	for trigger := 1; trigger <= 2; trigger++ {
		result, err := d.OnEvent(ctx, "PrintDone", []Device{dev})
		if err != nil {
			t.Fatalf("OnEvent() #%d error = %v", trigger, err)
		}
		if len(result.Scheduled) != 1 || result.Dropped != 0 {
			t.Fatalf("OnEvent() #%d = %+v, want one scheduled and none dropped", trigger, result)
		}
		waitFor(t, DefaultPollInterval/3, func() bool {
			_, off := dev.calls()
			return off == trigger && d.PendingRegistry().Len() == 0
		})
	}
}

func TestDispatcher_CancellationPrecedence(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	mustRule := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("rule setup: %v", err)
		}
	}
	mustRule(rules.Register(ctx, "AA", "PrintStarted", "TurnOn", secondsAsMinutes(5)))
	mustRule(rules.AddCancel(ctx, "AA", "PrintCancelled", "TurnOn"))

	d, hub, _ := newTestDispatcher(t, repo)
	dev := newMockDevice("AA")

	if _, err := d.OnEvent(ctx, "PrintStarted", []Device{dev}); err != nil {
		t.Fatalf("OnEvent(PrintStarted) error = %v", err)
	}
	if d.PendingRegistry().Len() != 1 {
		t.Fatal("TurnOn not pending")
	}

	result, err := d.OnEvent(ctx, "PrintCancelled", []Device{dev})
	if err != nil {
		t.Fatalf("OnEvent(PrintCancelled) error = %v", err)
	}
	if result.Cancelled != 1 {
		t.Errorf("Cancelled = %d, want 1", result.Cancelled)
	}
	if d.PendingRegistry().Len() != 0 {
		t.Error("cancelled action still pending")
	}

	waitFor(t, time.Second, func() bool { return len(hub.channels()) == 2 })
	if on, _ := dev.calls(); on != 0 {
		t.Errorf("cancelled TurnOn invoked %d times", on)
	}
	if got := hub.channels()[1]; got != ChannelActionCancelled {
		t.Errorf("second broadcast = %s, want %s", got, ChannelActionCancelled)
	}
}

func TestDispatcher_CancelThenScheduleOnSameEvent(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	for _, err := range []error{
		rules.Register(ctx, "AA", "PrintStarted", "TurnOn", 10),
		rules.AddCancel(ctx, "AA", "PrintDone", "TurnOn"),
		rules.Register(ctx, "AA", "PrintDone", "TurnOff", 10),
	} {
		if err != nil {
			t.Fatalf("rule setup: %v", err)
		}
	}
	d, _, _ := newTestDispatcher(t, repo)
	dev := newMockDevice("AA")

	if _, err := d.OnEvent(ctx, "PrintStarted", []Device{dev}); err != nil {
		t.Fatalf("OnEvent(PrintStarted) error = %v", err)
	}
	result, err := d.OnEvent(ctx, "PrintDone", []Device{dev})
	if err != nil {
		t.Fatalf("OnEvent(PrintDone) error = %v", err)
	}

	if result.Cancelled != 1 || len(result.Scheduled) != 1 || result.Dropped != 0 {
		t.Fatalf("result = %+v, want one cancelled and one scheduled", result)
	}
	a, ok := d.PendingRegistry().Get("AA")
	if !ok || a.Action() != ActionTurnOff {
		t.Error("TurnOff did not replace the cancelled TurnOn")
	}
}

func TestDispatcher_DuplicateTriggerDropped(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	if err := rules.Register(ctx, "AA", "PrintStarted", "TurnOn", secondsAsMinutes(5)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d, _, _ := newTestDispatcher(t, repo)
	dev := newMockDevice("AA")

	first, err := d.OnEvent(ctx, "PrintStarted", []Device{dev})
	if err != nil {
		t.Fatalf("first OnEvent() error = %v", err)
	}
	second, err := d.OnEvent(ctx, "PrintStarted", []Device{dev})
	if err != nil {
		t.Fatalf("second OnEvent() error = %v", err)
	}

	if len(first.Scheduled) != 1 {
		t.Errorf("first Scheduled = %d, want 1", len(first.Scheduled))
	}
	if len(second.Scheduled) != 0 || second.Dropped != 1 {
		t.Errorf("second = %+v, want dropped", second)
	}
	pending := d.Pending()
	if len(pending) != 1 || pending[0].ID != first.Scheduled[0].ID {
		t.Errorf("Pending() = %+v, want the first action only", pending)
	}
}

func TestDispatcher_ConcurrentEventsOnePending(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	if err := rules.Register(ctx, "AA", "PrintStarted", "TurnOn", 1); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d, _, _ := newTestDispatcher(t, repo)
	dev := newMockDevice("AA")

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		scheduled int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := d.OnEvent(ctx, "PrintStarted", []Device{dev})
			if err != nil {
				t.Errorf("OnEvent() error = %v", err)
				return
			}
			mu.Lock()
			scheduled += len(result.Scheduled)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if scheduled != 1 {
		t.Errorf("scheduled %d actions, want exactly 1", scheduled)
	}
	if d.PendingRegistry().Len() != 1 {
		t.Errorf("pending = %d, want 1", d.PendingRegistry().Len())
	}
}

func TestDispatcher_DeviceFailureRetiresAction(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	if err := rules.Register(ctx, "AA", "PrintFailed", "TurnOff", 0); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d, hub, rec := newTestDispatcher(t, repo)
	dev := newMockDevice("AA")
	dev.setErr(errors.New("plug unreachable"))

	if _, err := d.OnEvent(ctx, "PrintFailed", []Device{dev}); err != nil {
		t.Fatalf("OnEvent() error = %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(rec.outcomeStates()) == 1 })

	if got := rec.outcomeStates()[0]; got != StateFailed {
		t.Errorf("outcome = %v, want failed", got)
	}
	if !slices.Contains(hub.channels(), ChannelActionFailed) {
		t.Errorf("broadcasts = %v, want %s", hub.channels(), ChannelActionFailed)
	}
	if d.PendingRegistry().Len() != 0 {
		t.Fatal("failed action still pending")
	}

	// The device is free again for the next trigger.
	dev.setErr(nil)
	result, err := d.OnEvent(ctx, "PrintFailed", []Device{dev})
	if err != nil {
		t.Fatalf("OnEvent() error = %v", err)
	}
	if len(result.Scheduled) != 1 {
		t.Errorf("retrigger Scheduled = %d, want 1", len(result.Scheduled))
	}
}

func TestDispatcher_RuleErrorIsolatedPerDevice(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	for _, id := range []string{"GOOD", "BAD"} {
		if err := rules.Register(ctx, id, "PrintStarted", "TurnOn", 1); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}
	d, _, rec := newTestDispatcher(t, failingRules{RuleSource: repo, failDevice: "BAD"})

	result, err := d.OnEvent(ctx, "PrintStarted", []Device{newMockDevice("BAD"), newMockDevice("GOOD")})
	if !errors.Is(err, errStoreDown) {
		t.Errorf("OnEvent() error = %v, want errStoreDown", err)
	}
	if len(result.Scheduled) != 1 || result.Scheduled[0].DeviceID != "GOOD" {
		t.Errorf("Scheduled = %+v, want GOOD only", result.Scheduled)
	}

	rec.mu.Lock()
	dispatches := len(rec.dispatches)
	rec.mu.Unlock()
	if dispatches != 1 {
		t.Errorf("recorded dispatches = %d, want 1", dispatches)
	}
}

func TestDispatcher_CloseCancelsPending(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	if err := rules.Register(ctx, "AA", "PrintStarted", "TurnOn", 1); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d, _, rec := newTestDispatcher(t, repo)
	dev := newMockDevice("AA")

	if _, err := d.OnEvent(ctx, "PrintStarted", []Device{dev}); err != nil {
		t.Fatalf("OnEvent() error = %v", err)
	}
	d.Close()

	if d.PendingRegistry().Len() != 0 {
		t.Error("actions pending after Close")
	}
	if got := rec.outcomeStates(); !slices.Equal(got, []ActionState{StateCancelled}) {
		t.Errorf("outcomes = %v, want [cancelled]", got)
	}
	if on, _ := dev.calls(); on != 0 {
		t.Errorf("device invoked %d times after Close", on)
	}

	if _, err := d.OnEvent(ctx, "PrintStarted", []Device{dev}); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("OnEvent() after Close error = %v, want ErrDispatcherClosed", err)
	}
}

func TestDispatcher_CancelPending(t *testing.T) {
	rules, repo := setupTestRules(t)
	ctx := context.Background()
	if err := rules.Register(ctx, "AA", "PrintDone", "TurnOff", 1); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d, _, _ := newTestDispatcher(t, repo)

	if _, err := d.OnEvent(ctx, "PrintDone", []Device{newMockDevice("AA")}); err != nil {
		t.Fatalf("OnEvent() error = %v", err)
	}
	if got := d.CancelPending("AA"); got != 1 {
		t.Errorf("CancelPending() = %d, want 1", got)
	}
	if got := d.CancelPending("AA"); got != 0 {
		t.Errorf("second CancelPending() = %d, want 0", got)
	}
}

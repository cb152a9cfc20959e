package automation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Defaults for delayed actions.
const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultInvokeTimeout = 10 * time.Second
)

// Device is the capability a delayed action drives.
type Device interface {
	// ID returns the stable device identifier (the MAC address).
	ID() string
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// DelayedAction counts down a delay and then invokes its device exactly
// once, unless it is cancelled first.
//
// The countdown wakes every poll interval, so cancellation takes effect
// within one interval and remaining time is reported in poll-sized steps.
// A zero delay skips the countdown and fires as soon as Start runs.
type DelayedAction struct {
	id            string
	device        Device
	action        ActionKind
	event         EventKind
	total         time.Duration
	poll          time.Duration
	invokeTimeout time.Duration
	scheduledAt   time.Time

	// onFinish runs once, after the action reaches a terminal state.
	onFinish func(*DelayedAction)

	mu         sync.Mutex
	remaining  time.Duration
	state      ActionState
	started    bool
	finishedAt time.Time
	err        error

	stop chan struct{} // closed by Cancel
	done chan struct{} // closed after onFinish returns
}

// actionOptions configures a new DelayedAction.
type actionOptions struct {
	pollInterval  time.Duration
	invokeTimeout time.Duration
	onFinish      func(*DelayedAction)
}

func newDelayedAction(device Device, action ActionKind, event EventKind, delay time.Duration, opts actionOptions) *DelayedAction {
	if opts.pollInterval <= 0 {
		opts.pollInterval = DefaultPollInterval
	}
	if opts.invokeTimeout <= 0 {
		opts.invokeTimeout = DefaultInvokeTimeout
	}
	if delay < 0 {
		delay = 0
	}
	return &DelayedAction{
		id:            GenerateID(),
		device:        device,
		action:        action,
		event:         event,
		total:         delay,
		poll:          opts.pollInterval,
		invokeTimeout: opts.invokeTimeout,
		scheduledAt:   time.Now().UTC(),
		onFinish:      opts.onFinish,
		remaining:     delay,
		state:         StateRunning,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// ID returns the action's unique identifier.
func (a *DelayedAction) ID() string { return a.id }

// DeviceID returns the target device identifier.
func (a *DelayedAction) DeviceID() string { return a.device.ID() }

// Action returns what the action will do to the device.
func (a *DelayedAction) Action() ActionKind { return a.action }

// Event returns the event that scheduled the action.
func (a *DelayedAction) Event() EventKind { return a.event }

// Done is closed once the action is terminal and has left the registry.
func (a *DelayedAction) Done() <-chan struct{} { return a.done }

// Remaining returns the time left before the device is invoked.
func (a *DelayedAction) Remaining() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining
}

// State returns the current lifecycle state.
func (a *DelayedAction) State() ActionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the device error of a failed action.
func (a *DelayedAction) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Snapshot returns a copy of the action's observable state.
func (a *DelayedAction) Snapshot() PendingAction {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := PendingAction{
		ID:               a.id,
		DeviceID:         a.device.ID(),
		Event:            a.event,
		Action:           a.action,
		TotalSeconds:     a.total.Seconds(),
		RemainingSeconds: a.remaining.Seconds(),
		State:            a.state,
		ScheduledAt:      a.scheduledAt,
	}
	if !a.finishedAt.IsZero() {
		finished := a.finishedAt
		p.FinishedAt = &finished
	}
	if a.err != nil {
		p.Error = a.err.Error()
	}
	return p
}

// Start begins the countdown. The action stops early when ctx is done,
// which counts as a cancellation. Calling Start more than once has no
// effect.
func (a *DelayedAction) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	go a.run(ctx)
}

// Cancel stops a running action. It reports whether this call cancelled
// it; cancelling an action that is firing or terminal is a no-op.
func (a *DelayedAction) Cancel() bool {
	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return false
	}
	a.state = StateCancelled
	a.finishedAt = time.Now().UTC()
	a.mu.Unlock()

	close(a.stop)
	return true
}

func (a *DelayedAction) run(ctx context.Context) {
	defer close(a.done)
	defer a.finish()

	// A zero delay fires at once rather than after the first poll interval.
	if a.claimIfDue() {
		a.complete(a.invoke(ctx))
		return
	}

	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			a.Cancel()
			return
		case <-ticker.C:
		}

		if a.tick() {
			a.complete(a.invoke(ctx))
			return
		}
	}
}

// tick advances the countdown by one poll interval. When the delay has
// elapsed it claims the action for firing and returns true; from then on
// Cancel is a no-op.
func (a *DelayedAction) tick() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateRunning {
		return false
	}
	a.remaining -= a.poll
	return a.claimLocked()
}

// claimIfDue claims a running action whose delay has already elapsed.
func (a *DelayedAction) claimIfDue() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateRunning {
		return false
	}
	return a.claimLocked()
}

// claimLocked moves the action to firing once nothing remains. a.mu must
// be held.
func (a *DelayedAction) claimLocked() bool {
	if a.remaining > 0 {
		return false
	}
	a.remaining = 0
	a.state = StateFiring
	return true
}

func (a *DelayedAction) invoke(ctx context.Context) (err error) {
	invokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.invokeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device %s panicked: %v", a.device.ID(), r)
		}
	}()

	switch a.action {
	case ActionTurnOn:
		return a.device.TurnOn(invokeCtx)
	case ActionTurnOff:
		return a.device.TurnOff(invokeCtx)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownAction, a.action)
	}
}

func (a *DelayedAction) complete(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.finishedAt = time.Now().UTC()
	if err != nil {
		a.state = StateFailed
		a.err = err
		return
	}
	a.state = StateCompleted
}

func (a *DelayedAction) finish() {
	if a.onFinish != nil {
		a.onFinish(a)
	}
}

package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// WebSocket channels carrying action lifecycle events.
const (
	ChannelActionScheduled = "action.scheduled"
	ChannelActionCompleted = "action.completed"
	ChannelActionCancelled = "action.cancelled"
	ChannelActionFailed    = "action.failed"
)

// maxParallelDevices bounds concurrent per-device rule lookups for one event.
const maxParallelDevices = 8

// RuleSource is the read side of the rule store used at dispatch time.
type RuleSource interface {
	FindRegistration(ctx context.Context, deviceID string, event EventKind) (*Registration, error)
	FindCancellations(ctx context.Context, deviceID string, event EventKind) ([]ActionKind, error)
}

// Broadcaster pushes lifecycle events to connected clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// OutcomeRecorder stores telemetry about dispatches and finished actions.
type OutcomeRecorder interface {
	RecordDispatch(result DispatchResult)
	RecordOutcome(action PendingAction)
}

// DispatcherConfig tunes the actions a Dispatcher schedules.
type DispatcherConfig struct {
	PollInterval  time.Duration
	InvokeTimeout time.Duration
}

// DispatchResult summarises how one event was handled.
type DispatchResult struct {
	Event string `json:"event_name"`

	// Ignored is set when the event name is not a known EventKind.
	Ignored   bool            `json:"ignored"`
	Cancelled int             `json:"cancelled"`
	Scheduled []PendingAction `json:"scheduled"`

	// Dropped counts triggers discarded because the device was busy.
	Dropped int `json:"dropped"`
}

// Dispatcher turns host events into cancellations and delayed actions.
type Dispatcher struct {
	rules   RuleSource
	pending *PendingRegistry
	cfg     DispatcherConfig
	logger  Logger

	observerMu  sync.RWMutex
	broadcaster Broadcaster
	recorder    OutcomeRecorder

	// baseCtx outlives individual events; Close cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

// NewDispatcher creates a dispatcher reading rules from rules.
func NewDispatcher(rules RuleSource, cfg DispatcherConfig, logger Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = DefaultInvokeTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		rules:   rules,
		pending: NewPendingRegistry(),
		cfg:     cfg,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// SetBroadcaster sets the lifecycle event sink (may be nil).
func (d *Dispatcher) SetBroadcaster(b Broadcaster) {
	d.observerMu.Lock()
	d.broadcaster = b
	d.observerMu.Unlock()
}

// SetRecorder sets the telemetry sink (may be nil).
func (d *Dispatcher) SetRecorder(r OutcomeRecorder) {
	d.observerMu.Lock()
	d.recorder = r
	d.observerMu.Unlock()
}

// OnEvent handles one host event for the given devices.
//
// Unknown event names are ignored without error. Devices are processed
// concurrently; for each device matching cancellations are applied before
// a registration is scheduled, and a trigger for a device that already has
// a pending action is dropped. Rule store failures for one device do not
// stop the others and are returned joined.
func (d *Dispatcher) OnEvent(ctx context.Context, eventName string, devices []Device) (DispatchResult, error) {
	result := DispatchResult{Event: eventName, Scheduled: []PendingAction{}}

	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return result, ErrDispatcherClosed
	}

	event, err := ParseEvent(eventName)
	if err != nil {
		result.Ignored = true
		d.logger.Debug("ignoring unknown event", "event", eventName)
		return result, nil
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(maxParallelDevices)

	for _, dev := range devices {
		g.Go(func() error {
			out, err := d.dispatchDevice(ctx, dev, event)

			mu.Lock()
			defer mu.Unlock()
			result.Cancelled += out.cancelled
			result.Dropped += out.dropped
			if out.scheduled != nil {
				result.Scheduled = append(result.Scheduled, *out.scheduled)
			}
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines collect errors themselves

	d.logger.Info("event dispatched",
		"event", event,
		"devices", len(devices),
		"cancelled", result.Cancelled,
		"scheduled", len(result.Scheduled),
		"dropped", result.Dropped,
	)
	if recorder := d.getRecorder(); recorder != nil {
		recorder.RecordDispatch(result)
	}

	return result, errors.Join(errs...)
}

type deviceOutcome struct {
	cancelled int
	dropped   int
	scheduled *PendingAction
}

func (d *Dispatcher) dispatchDevice(ctx context.Context, dev Device, event EventKind) (deviceOutcome, error) {
	var out deviceOutcome
	id := dev.ID()

	kinds, err := d.rules.FindCancellations(ctx, id, event)
	if err != nil {
		return out, fmt.Errorf("device %s: finding cancellations: %w", id, err)
	}
	for _, kind := range kinds {
		n := d.pending.CancelMatching(id, kind)
		if n > 0 {
			d.logger.Info("pending action cancelled by rule", "device_mac", id, "event", event, "action", kind)
		}
		out.cancelled += n
	}

	reg, err := d.rules.FindRegistration(ctx, id, event)
	if errors.Is(err, ErrRegistrationNotFound) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("device %s: finding registration: %w", id, err)
	}

	snap, ok := d.schedule(dev, reg.Action, event, reg.Delay())
	if !ok {
		d.logger.Debug("trigger dropped, device busy", "device_mac", id, "event", event)
		out.dropped++
		return out, nil
	}
	out.scheduled = &snap
	return out, nil
}

// schedule starts a delayed action unless the device is busy.
func (d *Dispatcher) schedule(dev Device, action ActionKind, event EventKind, delay time.Duration) (PendingAction, bool) {
	a := newDelayedAction(dev, action, event, delay, actionOptions{
		pollInterval:  d.cfg.PollInterval,
		invokeTimeout: d.cfg.InvokeTimeout,
		onFinish:      d.finished,
	})
	if !d.pending.TryAdd(a) {
		return PendingAction{}, false
	}

	// Announce before starting so "scheduled" always precedes the outcome.
	snap := a.Snapshot()
	d.logger.Info("action scheduled",
		"id", snap.ID,
		"device_mac", snap.DeviceID,
		"event", event,
		"action", action,
		"delay_seconds", snap.TotalSeconds,
	)
	if hub := d.getBroadcaster(); hub != nil {
		hub.Broadcast(ChannelActionScheduled, snap)
	}

	d.wg.Add(1)
	a.Start(d.baseCtx)
	return snap, true
}

// finished retires a terminal action and reports its outcome.
func (d *Dispatcher) finished(a *DelayedAction) {
	defer d.wg.Done()

	d.pending.remove(a)
	snap := a.Snapshot()

	channel := ChannelActionCompleted
	switch snap.State {
	case StateFailed:
		channel = ChannelActionFailed
		d.logger.Error("device action failed",
			"id", snap.ID, "device_mac", snap.DeviceID, "action", snap.Action, "error", a.Err())
	case StateCancelled:
		channel = ChannelActionCancelled
		d.logger.Info("action cancelled", "id", snap.ID, "device_mac", snap.DeviceID, "action", snap.Action)
	default:
		d.logger.Info("action completed", "id", snap.ID, "device_mac", snap.DeviceID, "action", snap.Action)
	}

	if hub := d.getBroadcaster(); hub != nil {
		hub.Broadcast(channel, snap)
	}
	if recorder := d.getRecorder(); recorder != nil {
		recorder.RecordOutcome(snap)
	}
}

// Pending returns snapshots of every pending action.
func (d *Dispatcher) Pending() []PendingAction {
	return d.pending.List()
}

// PendingRegistry exposes the registry of running actions.
func (d *Dispatcher) PendingRegistry() *PendingRegistry {
	return d.pending
}

// CancelPending cancels whatever action is pending for deviceID.
func (d *Dispatcher) CancelPending(deviceID string) int {
	n := d.pending.CancelDevice(deviceID)
	if n > 0 {
		d.logger.Info("pending action cancelled on request", "device_mac", deviceID)
	}
	return n
}

// Close cancels every pending action and waits for their goroutines.
// In-flight device calls finish or time out first.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return
	}
	d.closed = true
	d.closeMu.Unlock()

	n := d.pending.CancelAll()
	d.cancel()
	d.wg.Wait()
	d.logger.Info("dispatcher closed", "cancelled", n)
}

func (d *Dispatcher) getBroadcaster() Broadcaster {
	d.observerMu.RLock()
	defer d.observerMu.RUnlock()
	return d.broadcaster
}

func (d *Dispatcher) getRecorder() OutcomeRecorder {
	d.observerMu.RLock()
	defer d.observerMu.RUnlock()
	return d.recorder
}

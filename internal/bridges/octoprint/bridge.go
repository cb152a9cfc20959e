package octoprint

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/printrelay/internal/automation"
	"github.com/nerrad567/printrelay/internal/device"
	"github.com/nerrad567/printrelay/internal/infrastructure/mqtt"
)

// eventQoS matches the plugin's default publish QoS.
const eventQoS = 1

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscriber is the MQTT surface the bridge needs. Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// EventDispatcher schedules and cancels actions for a host event.
// Satisfied by *automation.Dispatcher.
type EventDispatcher interface {
	OnEvent(ctx context.Context, eventName string, devices []automation.Device) (automation.DispatchResult, error)
}

// DeviceSource supplies the devices an event applies to and receives
// their state. Satisfied by *device.Registry.
type DeviceSource interface {
	Capabilities() []device.Capability
	ApplyState(mac string, payload []byte) error
}

// Options configures a Bridge.
type Options struct {
	// BaseTopic is the OctoPrint MQTT plugin base topic, e.g. "octoPrint".
	BaseTopic string

	// Topics locates device state topics.
	Topics mqtt.Topics

	// MQTT is optional; without it only HandleEvent is usable.
	MQTT Subscriber

	Dispatcher EventDispatcher
	Devices    DeviceSource
	Logger     Logger
}

// Stats counts what the bridge has seen since it was created.
type Stats struct {
	EventsReceived   uint64 `json:"events_received"`
	EventsIgnored    uint64 `json:"events_ignored"`
	EventsDispatched uint64 `json:"events_dispatched"`
	EventErrors      uint64 `json:"event_errors"`
	StateUpdates     uint64 `json:"state_updates"`
}

// Bridge connects host events and device state to the scheduler.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	base       string
	topics     mqtt.Topics
	mqtt       Subscriber
	dispatcher EventDispatcher
	devices    DeviceSource
	logger     Logger

	received   atomic.Uint64
	ignored    atomic.Uint64
	dispatched atomic.Uint64
	errored    atomic.Uint64
	states     atomic.Uint64

	mu        sync.Mutex
	started   bool
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if opts.Devices == nil {
		return nil, fmt.Errorf("device source is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		base:       opts.BaseTopic,
		topics:     opts.Topics,
		mqtt:       opts.MQTT,
		dispatcher: opts.Dispatcher,
		devices:    opts.Devices,
		logger:     opts.Logger,
		ctx:        ctx,
		ctxCancel:  cancel,
	}, nil
}

// Start subscribes to host events and device state.
func (b *Bridge) Start(ctx context.Context) error {
	if b.mqtt == nil {
		return ErrNoSubscriber
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}

	eventTopic := mqtt.HostEvents(b.base)
	if err := b.mqtt.Subscribe(eventTopic, eventQoS, b.handleEventMessage); err != nil {
		return fmt.Errorf("subscribe to host events: %w", err)
	}
	b.logger.Info("subscribed to host events", "topic", eventTopic)

	stateTopic := b.topics.AllStates()
	if err := b.mqtt.Subscribe(stateTopic, eventQoS, b.handleStateMessage); err != nil {
		return fmt.Errorf("subscribe to device state: %w", err)
	}
	b.logger.Info("subscribed to device state", "topic", stateTopic)

	// Stop when the caller's context ends as well as on Stop.
	context.AfterFunc(ctx, b.ctxCancel)

	b.started = true
	return nil
}

// Stop unsubscribes and abandons in-flight event handling.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()

		b.mu.Lock()
		started := b.started
		b.mu.Unlock()

		if started && b.mqtt != nil {
			for _, topic := range []string{mqtt.HostEvents(b.base), b.topics.AllStates()} {
				if err := b.mqtt.Unsubscribe(topic); err != nil {
					b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
				}
			}
		}
		b.logger.Info("octoprint bridge stopped")
	})
}

// HandleEvent dispatches one host event to every inventory device.
func (b *Bridge) HandleEvent(ctx context.Context, name string) (automation.DispatchResult, error) {
	b.received.Add(1)

	result, err := b.dispatcher.OnEvent(ctx, name, Devices(b.devices.Capabilities()))
	switch {
	case err != nil:
		b.errored.Add(1)
	case result.Ignored:
		b.ignored.Add(1)
	default:
		b.dispatched.Add(1)
	}
	return result, err
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		EventsReceived:   b.received.Load(),
		EventsIgnored:    b.ignored.Load(),
		EventsDispatched: b.dispatched.Load(),
		EventErrors:      b.errored.Load(),
		StateUpdates:     b.states.Load(),
	}
}

func (b *Bridge) handleEventMessage(topic string, _ []byte) error {
	name, ok := mqtt.ParseHostEvent(b.base, topic)
	if !ok {
		b.logger.Debug("ignoring unexpected topic", "topic", topic)
		return nil
	}

	b.logger.Debug("host event received", "event", name)
	if _, err := b.HandleEvent(b.ctx, name); err != nil {
		return fmt.Errorf("dispatching %s: %w", name, err)
	}
	return nil
}

func (b *Bridge) handleStateMessage(topic string, payload []byte) error {
	_, mac, ok := b.topics.ParseState(topic)
	if !ok {
		b.logger.Debug("ignoring unexpected topic", "topic", topic)
		return nil
	}
	if err := b.devices.ApplyState(mac, payload); err != nil {
		b.logger.Debug("device state not applied", "mac", mac, "error", err)
		return nil
	}
	b.states.Add(1)
	return nil
}

// Devices adapts device capabilities to the scheduler's device interface.
func Devices(caps []device.Capability) []automation.Device {
	out := make([]automation.Device, len(caps))
	for i, c := range caps {
		out[i] = c
	}
	return out
}

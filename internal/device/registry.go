package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/printrelay/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry caches the device inventory and the capabilities built from it.
//
// All public methods are thread-safe.
type Registry struct {
	path      string
	topics    mqtt.Topics
	publisher Publisher

	mu      sync.RWMutex
	devices map[string]*Device
	caps    map[string]Capability
	logger  Logger
}

// NewRegistry creates a registry for the inventory file at path. Commands
// are published through pub on topics built from topics.
func NewRegistry(path string, topics mqtt.Topics, pub Publisher) *Registry {
	return &Registry{
		path:      path,
		topics:    topics,
		publisher: pub,
		devices:   make(map[string]*Device),
		caps:      make(map[string]Capability),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Reload re-reads the inventory file and returns the number of usable
// devices. Known state survives for devices that stay in the inventory.
// On error the previous inventory is kept.
func (r *Registry) Reload(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entries, err := ReadInventory(r.path)
	if err != nil {
		return 0, err
	}
	return r.Replace(entries), nil
}

// Replace swaps the inventory for entries and returns the number of usable
// devices. Entries with an unknown type are skipped.
func (r *Registry) Replace(entries []InventoryEntry) int {
	devices := make(map[string]*Device, len(entries))
	caps := make(map[string]Capability, len(entries))

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		mac := NormalizeMAC(e.MAC)
		category, err := CategoryFor(e.Type)
		if err != nil {
			r.logger.Warn("skipping device", "mac", mac, "name", e.Name, "error", err)
			continue
		}

		d := &Device{MAC: mac, Name: e.Name, Type: e.Type, Model: e.Model, Category: category}
		if prev, ok := r.devices[mac]; ok {
			d.Online, d.On = prev.Online, prev.On
		}

		c, err := newCapability(*d, r.topics, r.publisher)
		if err != nil {
			r.logger.Warn("skipping device", "mac", mac, "name", e.Name, "error", err)
			continue
		}
		devices[mac] = d
		caps[mac] = c
	}

	r.devices = devices
	r.caps = caps
	r.logger.Info("device inventory loaded", "count", len(devices), "skipped", len(entries)-len(devices))
	return len(devices)
}

// List returns every device sorted by MAC.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// Get returns the device with the given MAC.
func (r *Registry) Get(mac string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[NormalizeMAC(mac)]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, mac)
	}
	return *d, nil
}

// Len returns the number of devices in the inventory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Capability returns the capability for one device.
func (r *Registry) Capability(mac string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.caps[NormalizeMAC(mac)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, mac)
	}
	return c, nil
}

// Capabilities returns a capability for every device, sorted by MAC.
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capability, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// StateMessage is the retained state the bridge publishes per device.
// Absent fields leave the cached value unchanged.
type StateMessage struct {
	Online *bool `json:"online"`
	On     *bool `json:"on"`
}

// ApplyState records a state payload published by the bridge.
func (r *Registry) ApplyState(mac string, payload []byte) error {
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[NormalizeMAC(mac)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, mac)
	}
	if msg.Online != nil {
		d.Online = *msg.Online
	}
	if msg.On != nil {
		d.On = *msg.On
	}
	r.logger.Debug("device state updated", "mac", d.MAC, "online", d.Online, "on", d.On)
	return nil
}

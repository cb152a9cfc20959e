package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/printrelay/internal/infrastructure/mqtt"
)

// commandQoS is at-least-once; the bridge treats repeated on/off as idempotent.
const commandQoS = 1

// commandSource identifies printrelay in command payloads.
const commandSource = "printrelay"

// Publisher sends MQTT messages. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Capability switches one device on or off.
type Capability interface {
	// ID returns the device MAC.
	ID() string
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// CommandMessage is the payload published to the bridge command topic.
type CommandMessage struct {
	ID          string    `json:"id"`
	DeviceMAC   string    `json:"device_mac"`
	DeviceModel string    `json:"device_model"`
	Command     string    `json:"command"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// commandSet names the bridge commands for one category.
type commandSet struct {
	on  string
	off string
}

// categoryCommands is the per-category constructor table.
var categoryCommands = map[Category]commandSet{
	CategoryBulb:   {on: "turn_on", off: "turn_off"},
	CategoryPlug:   {on: "turn_on", off: "turn_off"},
	CategoryCamera: {on: "power_on", off: "power_off"},
}

// bridgeCapability publishes on/off commands for one device.
type bridgeCapability struct {
	mac       string
	model     string
	topic     string
	commands  commandSet
	publisher Publisher
}

// newCapability builds the capability for d, or reports ErrUnknownType.
func newCapability(d Device, topics mqtt.Topics, pub Publisher) (Capability, error) {
	commands, ok := categoryCommands[d.Category]
	if !ok {
		return nil, fmt.Errorf("%w: category %q", ErrUnknownType, d.Category)
	}
	return &bridgeCapability{
		mac:       d.MAC,
		model:     d.Model,
		topic:     topics.Command(string(d.Category), d.MAC),
		commands:  commands,
		publisher: pub,
	}, nil
}

func (c *bridgeCapability) ID() string { return c.mac }

func (c *bridgeCapability) TurnOn(ctx context.Context) error {
	return c.send(ctx, c.commands.on)
}

func (c *bridgeCapability) TurnOff(ctx context.Context) error {
	return c.send(ctx, c.commands.off)
}

func (c *bridgeCapability) send(ctx context.Context, command string) error {
	if c.publisher == nil {
		return ErrNoPublisher
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, command, c.mac, err)
	}

	payload, err := json.Marshal(CommandMessage{
		ID:          uuid.NewString(),
		DeviceMAC:   c.mac,
		DeviceModel: c.model,
		Command:     command,
		Source:      commandSource,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	if err := c.publisher.Publish(c.topic, payload, commandQoS, false); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, command, c.mac, err)
	}
	return nil
}

package automation

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// DefaultMaxDelayMinutes caps registration delays at one day.
const DefaultMaxDelayMinutes = 24 * 60

const secondsPerMinute = 60

// Logger defines the logging interface used by the automation package.
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

// Rules is the name-facing rule store used by the API. It validates input,
// converts delays from minutes to seconds and delegates to a Repository.
type Rules struct {
	repo            Repository
	maxDelayMinutes float64
	logger          Logger
}

// NewRules creates a rule store. A non-positive maxDelayMinutes selects
// DefaultMaxDelayMinutes.
func NewRules(repo Repository, maxDelayMinutes float64) *Rules {
	if maxDelayMinutes <= 0 || math.IsNaN(maxDelayMinutes) {
		maxDelayMinutes = DefaultMaxDelayMinutes
	}
	return &Rules{
		repo:            repo,
		maxDelayMinutes: maxDelayMinutes,
		logger:          noopLogger{},
	}
}

// SetLogger sets the logger for rule mutations.
func (r *Rules) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register stores "when eventName fires on deviceID, run actionName after
// delayMinutes". Registering an existing triple again is a silent no-op
// and keeps the original delay.
func (r *Rules) Register(ctx context.Context, deviceID, eventName, actionName string, delayMinutes float64) error {
	deviceID, event, action, err := parseRule(deviceID, eventName, actionName)
	if err != nil {
		return err
	}
	if err := r.validateDelay(delayMinutes); err != nil {
		return err
	}

	inserted, err := r.repo.Register(ctx, Registration{
		DeviceID:     deviceID,
		Event:        event,
		Action:       action,
		DelaySeconds: delayMinutes * secondsPerMinute,
	})
	if err != nil {
		return fmt.Errorf("registering rule: %w", err)
	}

	r.logger.Info("registration stored",
		"device_mac", deviceID,
		"event", event,
		"action", action,
		"delay_minutes", delayMinutes,
		"inserted", inserted,
	)
	return nil
}

// Unregister removes the exact (deviceID, eventName, actionName) rule.
func (r *Rules) Unregister(ctx context.Context, deviceID, eventName, actionName string) error {
	deviceID, event, action, err := parseRule(deviceID, eventName, actionName)
	if err != nil {
		return err
	}

	deleted, err := r.repo.Unregister(ctx, deviceID, event, action)
	if err != nil {
		return fmt.Errorf("unregistering rule: %w", err)
	}

	r.logger.Info("registration removed",
		"device_mac", deviceID, "event", event, "action", action, "deleted", deleted)
	return nil
}

// AddCancel stores "when eventName fires on deviceID, cancel any pending
// actionName". Adding an existing triple again is a silent no-op.
func (r *Rules) AddCancel(ctx context.Context, deviceID, eventName, actionName string) error {
	deviceID, event, action, err := parseRule(deviceID, eventName, actionName)
	if err != nil {
		return err
	}

	inserted, err := r.repo.AddCancel(ctx, Cancellation{
		DeviceID: deviceID,
		Event:    event,
		Action:   action,
	})
	if err != nil {
		return fmt.Errorf("adding cancellation: %w", err)
	}

	r.logger.Info("cancellation stored",
		"device_mac", deviceID, "event", event, "action", action, "inserted", inserted)
	return nil
}

// RemoveCancel removes the exact (deviceID, eventName, actionName) cancellation.
func (r *Rules) RemoveCancel(ctx context.Context, deviceID, eventName, actionName string) error {
	deviceID, event, action, err := parseRule(deviceID, eventName, actionName)
	if err != nil {
		return err
	}

	deleted, err := r.repo.RemoveCancel(ctx, deviceID, event, action)
	if err != nil {
		return fmt.Errorf("removing cancellation: %w", err)
	}

	r.logger.Info("cancellation removed",
		"device_mac", deviceID, "event", event, "action", action, "deleted", deleted)
	return nil
}

// ListRegistrations builds the rule table for one device.
func (r *Rules) ListRegistrations(ctx context.Context, deviceID string) (*RuleTable, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrInvalidDevice
	}

	regs, err := r.repo.ListRegistrations(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing registrations: %w", err)
	}
	cancels, err := r.repo.ListCancellations(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing cancellations: %w", err)
	}

	return buildRuleTable(deviceID, regs, cancels), nil
}

// ListAllTables builds a rule table for every device with at least one rule.
func (r *Rules) ListAllTables(ctx context.Context) (map[string]*RuleTable, error) {
	regs, cancels, err := r.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}

	regsByDevice := make(map[string][]Registration)
	for _, reg := range regs {
		regsByDevice[reg.DeviceID] = append(regsByDevice[reg.DeviceID], reg)
	}
	cancelsByDevice := make(map[string][]Cancellation)
	for _, c := range cancels {
		cancelsByDevice[c.DeviceID] = append(cancelsByDevice[c.DeviceID], c)
	}

	tables := make(map[string]*RuleTable, len(regsByDevice)+len(cancelsByDevice))
	for id := range regsByDevice {
		tables[id] = buildRuleTable(id, regsByDevice[id], cancelsByDevice[id])
	}
	for id := range cancelsByDevice {
		if _, ok := tables[id]; !ok {
			tables[id] = buildRuleTable(id, nil, cancelsByDevice[id])
		}
	}
	return tables, nil
}

// EnumNames lists the accepted event and action names.
type EnumNames struct {
	Events  []string `json:"events"`
	Actions []string `json:"actions"`
}

// Enums returns every accepted event and action name.
func Enums() EnumNames {
	return EnumNames{Events: EventNames(), Actions: ActionNames()}
}

func buildRuleTable(deviceID string, regs []Registration, cancels []Cancellation) *RuleTable {
	table := &RuleTable{DeviceID: deviceID}
	for _, reg := range regs {
		cell := table.Cell(reg.Action, reg.Event)
		cell.Registered = true
		cell.DelaySeconds = reg.DelaySeconds
	}
	for _, c := range cancels {
		table.Cell(c.Action, c.Event).CancelOnSameEvent = true
	}
	return table
}

func parseRule(deviceID, eventName, actionName string) (string, EventKind, ActionKind, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", 0, 0, ErrInvalidDevice
	}
	event, err := ParseEvent(eventName)
	if err != nil {
		return "", 0, 0, err
	}
	action, err := ParseAction(actionName)
	if err != nil {
		return "", 0, 0, err
	}
	return deviceID, event, action, nil
}

func (r *Rules) validateDelay(minutes float64) error {
	switch {
	case math.IsNaN(minutes) || math.IsInf(minutes, 0):
		return fmt.Errorf("%w: must be a finite number", ErrInvalidDelay)
	case minutes < 0:
		return fmt.Errorf("%w: must not be negative", ErrInvalidDelay)
	case minutes > r.maxDelayMinutes:
		return fmt.Errorf("%w: exceeds %g minutes", ErrInvalidDelay, r.maxDelayMinutes)
	}
	return nil
}

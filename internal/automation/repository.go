package automation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists registration and cancellation rules.
//
// Inserts are idempotent: a rule that already exists is left untouched and
// reported as not inserted, never as an error. Deletes of missing rules are
// no-ops. Rows whose event or action name is no longer known are skipped
// on read.
type Repository interface {
	Register(ctx context.Context, reg Registration) (inserted bool, err error)
	Unregister(ctx context.Context, deviceID string, event EventKind, action ActionKind) (deleted bool, err error)
	AddCancel(ctx context.Context, c Cancellation) (inserted bool, err error)
	RemoveCancel(ctx context.Context, deviceID string, event EventKind, action ActionKind) (deleted bool, err error)

	// FindRegistration returns the registration for (device, event). When
	// both TurnOn and TurnOff exist, TurnOn is returned. It returns
	// ErrRegistrationNotFound when there is none.
	FindRegistration(ctx context.Context, deviceID string, event EventKind) (*Registration, error)

	// FindCancellations returns the actions to cancel when event fires.
	FindCancellations(ctx context.Context, deviceID string, event EventKind) ([]ActionKind, error)

	ListRegistrations(ctx context.Context, deviceID string) ([]Registration, error)
	ListCancellations(ctx context.Context, deviceID string) ([]Cancellation, error)
	ListAll(ctx context.Context) ([]Registration, []Cancellation, error)
}

// actionOrder sorts TurnOn before TurnOff; it is the FindRegistration tie-break.
const actionOrder = `CASE action_name WHEN 'TurnOn' THEN 0 WHEN 'TurnOff' THEN 1 ELSE 2 END`

// SQLiteRepository implements Repository on the registrations and
// cancellations tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Register inserts reg unless a rule with the same triple exists.
func (r *SQLiteRepository) Register(ctx context.Context, reg Registration) (bool, error) {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO registrations (device_mac, event_name, action_name, delay_seconds, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (device_mac, event_name, action_name) DO NOTHING`,
		reg.DeviceID, reg.Event.String(), reg.Action.String(), reg.DelaySeconds,
		reg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("inserting registration: %w", err)
	}
	return affected(res)
}

// Unregister deletes the exact (device, event, action) registration.
func (r *SQLiteRepository) Unregister(ctx context.Context, deviceID string, event EventKind, action ActionKind) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM registrations WHERE device_mac = ? AND event_name = ? AND action_name = ?`,
		deviceID, event.String(), action.String(),
	)
	if err != nil {
		return false, fmt.Errorf("deleting registration: %w", err)
	}
	return affected(res)
}

// AddCancel inserts c unless a rule with the same triple exists.
func (r *SQLiteRepository) AddCancel(ctx context.Context, c Cancellation) (bool, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO cancellations (device_mac, event_name, action_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (device_mac, event_name, action_name) DO NOTHING`,
		c.DeviceID, c.Event.String(), c.Action.String(),
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("inserting cancellation: %w", err)
	}
	return affected(res)
}

// RemoveCancel deletes the exact (device, event, action) cancellation.
func (r *SQLiteRepository) RemoveCancel(ctx context.Context, deviceID string, event EventKind, action ActionKind) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cancellations WHERE device_mac = ? AND event_name = ? AND action_name = ?`,
		deviceID, event.String(), action.String(),
	)
	if err != nil {
		return false, fmt.Errorf("deleting cancellation: %w", err)
	}
	return affected(res)
}

// FindRegistration returns the registration for (device, event), TurnOn first.
func (r *SQLiteRepository) FindRegistration(ctx context.Context, deviceID string, event EventKind) (*Registration, error) {
	regs, err := r.queryRegistrations(ctx, `
		SELECT device_mac, event_name, action_name, delay_seconds, created_at
		FROM registrations
		WHERE device_mac = ? AND event_name = ?
		ORDER BY `+actionOrder,
		deviceID, event.String(),
	)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, ErrRegistrationNotFound
	}
	return &regs[0], nil
}

// FindCancellations returns the actions cancelled for device when event fires.
func (r *SQLiteRepository) FindCancellations(ctx context.Context, deviceID string, event EventKind) ([]ActionKind, error) {
	cancels, err := r.queryCancellations(ctx, `
		SELECT device_mac, event_name, action_name, created_at
		FROM cancellations
		WHERE device_mac = ? AND event_name = ?
		ORDER BY `+actionOrder,
		deviceID, event.String(),
	)
	if err != nil {
		return nil, err
	}
	actions := make([]ActionKind, 0, len(cancels))
	for _, c := range cancels {
		actions = append(actions, c.Action)
	}
	return actions, nil
}

// ListRegistrations returns every registration for a device.
func (r *SQLiteRepository) ListRegistrations(ctx context.Context, deviceID string) ([]Registration, error) {
	return r.queryRegistrations(ctx, `
		SELECT device_mac, event_name, action_name, delay_seconds, created_at
		FROM registrations
		WHERE device_mac = ?
		ORDER BY event_name, `+actionOrder,
		deviceID,
	)
}

// ListCancellations returns every cancellation for a device.
func (r *SQLiteRepository) ListCancellations(ctx context.Context, deviceID string) ([]Cancellation, error) {
	return r.queryCancellations(ctx, `
		SELECT device_mac, event_name, action_name, created_at
		FROM cancellations
		WHERE device_mac = ?
		ORDER BY event_name, `+actionOrder,
		deviceID,
	)
}

// ListAll returns every stored rule, ordered by device.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]Registration, []Cancellation, error) {
	regs, err := r.queryRegistrations(ctx, `
		SELECT device_mac, event_name, action_name, delay_seconds, created_at
		FROM registrations
		ORDER BY device_mac, event_name, `+actionOrder,
	)
	if err != nil {
		return nil, nil, err
	}
	cancels, err := r.queryCancellations(ctx, `
		SELECT device_mac, event_name, action_name, created_at
		FROM cancellations
		ORDER BY device_mac, event_name, `+actionOrder,
	)
	if err != nil {
		return nil, nil, err
	}
	return regs, cancels, nil
}

func (r *SQLiteRepository) queryRegistrations(ctx context.Context, query string, args ...any) ([]Registration, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying registrations: %w", err)
	}
	defer rows.Close()

	var regs []Registration
	for rows.Next() {
		var (
			reg                         Registration
			eventName, actionName, when string
		)
		if err := rows.Scan(&reg.DeviceID, &eventName, &actionName, &reg.DelaySeconds, &when); err != nil {
			return nil, fmt.Errorf("scanning registration: %w", err)
		}
		if !parseRuleNames(eventName, actionName, &reg.Event, &reg.Action) {
			continue
		}
		reg.CreatedAt = parseTimestamp(when)
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registrations: %w", err)
	}
	return regs, nil
}

func (r *SQLiteRepository) queryCancellations(ctx context.Context, query string, args ...any) ([]Cancellation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cancellations: %w", err)
	}
	defer rows.Close()

	var cancels []Cancellation
	for rows.Next() {
		var (
			c                           Cancellation
			eventName, actionName, when string
		)
		if err := rows.Scan(&c.DeviceID, &eventName, &actionName, &when); err != nil {
			return nil, fmt.Errorf("scanning cancellation: %w", err)
		}
		if !parseRuleNames(eventName, actionName, &c.Event, &c.Action) {
			continue
		}
		c.CreatedAt = parseTimestamp(when)
		cancels = append(cancels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cancellations: %w", err)
	}
	return cancels, nil
}

// parseRuleNames resolves stored names, reporting false for names this
// build does not know.
func parseRuleNames(eventName, actionName string, event *EventKind, action *ActionKind) bool {
	e, err := ParseEvent(eventName)
	if err != nil {
		return false
	}
	a, err := ParseAction(actionName)
	if err != nil {
		return false
	}
	*event, *action = e, a
	return true
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

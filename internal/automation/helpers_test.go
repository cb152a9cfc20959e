package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/printrelay/internal/infrastructure/database"
	"github.com/nerrad567/printrelay/migrations"
)

// testPoll keeps countdowns short in tests.
const testPoll = 5 * time.Millisecond

// setupTestDB opens an in-memory database with the production schema.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func setupTestRules(t *testing.T) (*Rules, *SQLiteRepository) {
	t.Helper()
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	return NewRules(repo, DefaultMaxDelayMinutes), repo
}

// mockDevice counts invocations.
type mockDevice struct {
	id string

	mu       sync.Mutex
	onCalls  int
	offCalls int
	err      error
}

func newMockDevice(id string) *mockDevice {
	return &mockDevice{id: id}
}

func (m *mockDevice) ID() string { return m.id }

func (m *mockDevice) TurnOn(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCalls++
	return m.err
}

func (m *mockDevice) TurnOff(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offCalls++
	return m.err
}

func (m *mockDevice) calls() (on, off int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onCalls, m.offCalls
}

func (m *mockDevice) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// mockHub captures broadcasts in order.
type mockHub struct {
	mu     sync.Mutex
	events []hubEvent
}

type hubEvent struct {
	channel string
	action  PendingAction
}

func (h *mockHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, _ := payload.(PendingAction)
	h.events = append(h.events, hubEvent{channel: channel, action: p})
}

func (h *mockHub) channels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.channel)
	}
	return out
}

// mockRecorder captures telemetry.
type mockRecorder struct {
	mu         sync.Mutex
	dispatches []DispatchResult
	outcomes   []PendingAction
}

func (r *mockRecorder) RecordDispatch(result DispatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatches = append(r.dispatches, result)
}

func (r *mockRecorder) RecordOutcome(action PendingAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, action)
}

func (r *mockRecorder) outcomeStates() []ActionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActionState, 0, len(r.outcomes))
	for _, o := range r.outcomes {
		out = append(out, o.State)
	}
	return out
}

// failingRules fails lookups for one device and delegates the rest.
type failingRules struct {
	RuleSource
	failDevice string
}

var errStoreDown = errors.New("store unavailable")

func (f failingRules) FindCancellations(ctx context.Context, deviceID string, event EventKind) ([]ActionKind, error) {
	if deviceID == f.failDevice {
		return nil, errStoreDown
	}
	return f.RuleSource.FindCancellations(ctx, deviceID, event)
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// waitDone waits for a delayed action to finish.
func waitDone(t *testing.T, a *DelayedAction) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("action %s did not finish", a.ID())
	}
}

// secondsAsMinutes converts a delay in seconds to the minutes the rule API takes.
func secondsAsMinutes(s float64) float64 {
	return s / 60
}

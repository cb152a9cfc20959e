package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/printrelay/internal/audit"
	"github.com/nerrad567/printrelay/internal/automation"
	"github.com/nerrad567/printrelay/internal/bridges/octoprint"
	"github.com/nerrad567/printrelay/internal/device"
	"github.com/nerrad567/printrelay/internal/infrastructure/config"
	"github.com/nerrad567/printrelay/internal/infrastructure/database"
	"github.com/nerrad567/printrelay/internal/infrastructure/logging"
	"github.com/nerrad567/printrelay/internal/infrastructure/mqtt"
	"github.com/nerrad567/printrelay/migrations"
)

const (
	lightMAC = "2CAA8E000001"
	plugMAC  = "2CAA8E000002"
)

// mockPublisher records device commands.
type mockPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (m *mockPublisher) Publish(topic string, _ []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.topics = append(m.topics, topic)
	return nil
}

func (m *mockPublisher) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

// testEnv is a server wired to real collaborators over an in-memory store.
type testEnv struct {
	server     *Server
	handler    http.Handler
	rules      *automation.Rules
	dispatcher *automation.Dispatcher
	devices    *device.Registry
	publisher  *mockPublisher
	auditRepo  audit.Repository
}

type envOption func(*Deps)

func withSecret(secret string) envOption {
	return func(d *Deps) { d.Security.JWT.Secret = secret }
}

func withCheck(name string, err error) envOption {
	return func(d *Deps) {
		d.Checks = append(d.Checks, HealthCheck{Name: name, Check: func(context.Context) error { return err }})
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditWriter := audit.NewWriter(auditRepo, nil)
	t.Cleanup(auditWriter.Close)

	repo := automation.NewSQLiteRepository(db.DB)
	rules := automation.NewRules(repo, 0)
	dispatcher := automation.NewDispatcher(repo, automation.DispatcherConfig{PollInterval: 5 * time.Millisecond}, nil)
	dispatcher.SetRecorder(auditWriter)
	t.Cleanup(dispatcher.Close)

	pub := &mockPublisher{}
	devices := device.NewRegistry("", mqtt.Topics{Prefix: "printrelay"}, pub)
	devices.Replace([]device.InventoryEntry{
		{MAC: lightMAC, Name: "Enclosure light", Type: "Light", Model: "WLPA19"},
		{MAC: plugMAC, Name: "Printer plug", Type: "Plug", Model: "WLPP1"},
	})

	bridge, err := octoprint.NewBridge(octoprint.Options{Dispatcher: dispatcher, Devices: devices})
	if err != nil {
		t.Fatalf("creating bridge: %v", err)
	}

	deps := Deps{
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:     logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test"),
		Rules:      rules,
		Dispatcher: dispatcher,
		Devices:    devices,
		Events:     bridge,
		Audit:      auditWriter,
		AuditLogs:  auditRepo,
		Version:    "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	dispatcher.SetBroadcaster(srv.hub)

	return &testEnv{
		server:     srv,
		handler:    srv.buildRouter(),
		rules:      rules,
		dispatcher: dispatcher,
		devices:    devices,
		publisher:  pub,
		auditRepo:  auditRepo,
	}
}

// do sends a request through the router. body may be nil, a string or a
// value to encode as JSON.
func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

// newRegistryAt creates a registry reading the inventory at path.
func newRegistryAt(path string, pub device.Publisher) *device.Registry {
	return device.NewRegistry(path, mqtt.Topics{Prefix: "printrelay"}, pub)
}

// waitForAudit polls until filter matches want entries.
func (e *testEnv) waitForAudit(t *testing.T, filter audit.Filter, want int) []audit.Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err := e.auditRepo.List(context.Background(), filter)
		if err != nil {
			t.Fatalf("listing audit entries: %v", err)
		}
		if res.Total >= want {
			return res.Entries
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entries = %d, want %d", res.Total, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

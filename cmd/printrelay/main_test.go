package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/printrelay/internal/api"
	"github.com/nerrad567/printrelay/internal/auth"
	"github.com/nerrad567/printrelay/internal/automation"
	"github.com/nerrad567/printrelay/internal/infrastructure/influxdb"
	"github.com/nerrad567/printrelay/internal/infrastructure/secrets"
)

const testKey = "4a6f1c2e8b9d0357a1c4e6f80b2d4f6813579bdf02468ace13579bdf02468ace"

func TestRun_InvalidConfigPath(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, "/nonexistent/path/config.yaml")
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want loading config error", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
scheduler:
  poll_interval_ms: -1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, path)
	if err == nil || !strings.Contains(err.Error(), "poll_interval_ms") {
		t.Fatalf("run() error = %v, want validation error", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	original := configPath
	t.Cleanup(func() { configPath = original })

	configPath = ""
	t.Setenv("PRINTRELAY_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("default = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("PRINTRELAY_CONFIG", "/etc/printrelay/config.yaml")
	if got := getConfigPath(); got != "/etc/printrelay/config.yaml" {
		t.Errorf("env = %q", got)
	}

	configPath = "flag.yaml"
	if got := getConfigPath(); got != "flag.yaml" {
		t.Errorf("flag = %q, want it to win over env", got)
	}
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := printVersion(&buf, false); err != nil {
		t.Fatalf("printVersion() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "printrelay "+version) {
		t.Errorf("text = %q", buf.String())
	}

	buf.Reset()
	if err := printVersion(&buf, true); err != nil {
		t.Fatalf("printVersion(json) error = %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("decoding version json: %v", err)
	}
	if info["version"] != version || info["commit"] != commit {
		t.Errorf("json = %v", info)
	}
}

func TestEncryptSecret(t *testing.T) {
	out, err := encryptSecret(testKey, "mqtt-password")
	if err != nil {
		t.Fatalf("encryptSecret() error = %v", err)
	}
	if out == "mqtt-password" {
		t.Fatal("value was not encrypted")
	}

	cipher, err := secrets.NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	plain, err := cipher.Decrypt(out)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plain != "mqtt-password" {
		t.Errorf("round trip = %q", plain)
	}
}

func TestEncryptSecret_Errors(t *testing.T) {
	if _, err := encryptSecret("", "value"); err == nil {
		t.Error("missing key accepted")
	}
	if _, err := encryptSecret("short", "value"); !errors.Is(err, secrets.ErrInvalidKey) {
		t.Errorf("short key error = %v, want ErrInvalidKey", err)
	}
	if _, err := encryptSecret("0123456789abcdef0123456789abcdef", "value"); !errors.Is(err, secrets.ErrInvalidKey) {
		t.Errorf("raw 32-character key error = %v, want ErrInvalidKey", err)
	}
}

func TestSecretValue(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "argument", args: []string{"from-arg"}, stdin: "ignored\n", want: "from-arg"},
		{name: "stdin line", stdin: "from-stdin\r\nsecond\n", want: "from-stdin"},
		{name: "stdin without newline", stdin: "tail", want: "tail"},
		{name: "empty stdin", stdin: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := secretValue(strings.NewReader(tt.stdin), tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("secretValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("secretValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIssueToken(t *testing.T) {
	const secret = "test-secret-at-least-32-characters-long"

	token, err := issueToken(secret, "octopi", time.Hour)
	if err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	claims, err := auth.ParseToken(token, secret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "octopi" {
		t.Errorf("subject = %q", claims.Subject)
	}

	if _, err := issueToken("", "octopi", time.Hour); err == nil {
		t.Error("issueToken() without a secret succeeded")
	}
}

func TestHealthCheck(t *testing.T) {
	var calls []string
	check := func(name string, err error) api.HealthCheck {
		return api.HealthCheck{Name: name, Check: func(context.Context) error {
			calls = append(calls, name)
			return err
		}}
	}

	err := healthCheck(context.Background(), []api.HealthCheck{
		check("database", nil),
		check("mqtt", errors.New("not connected")),
		check("influxdb", nil),
	})
	if err == nil || err.Error() != "mqtt: not connected" {
		t.Errorf("healthCheck() error = %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v, want to stop at the first failure", calls)
	}
}

// mockWriter captures telemetry points.
type mockWriter struct {
	mu         sync.Mutex
	outcomes   []influxdb.ActionOutcome
	dispatches []string
}

func (m *mockWriter) WriteActionOutcome(o influxdb.ActionOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
}

func (m *mockWriter) WriteEventDispatch(event string, _, _, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, event)
}

func TestOutcomeRecorder(t *testing.T) {
	w := &mockWriter{}
	r := &outcomeRecorder{client: w}

	r.RecordDispatch(automation.DispatchResult{Event: "ZChange", Ignored: true})
	r.RecordDispatch(automation.DispatchResult{Event: "PrintDone"})
	if len(w.dispatches) != 1 || w.dispatches[0] != "PrintDone" {
		t.Errorf("dispatches = %v, want only PrintDone", w.dispatches)
	}

	scheduled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := scheduled.Add(90 * time.Second)
	r.RecordOutcome(automation.PendingAction{
		DeviceID:     "2CAA8E000001",
		Event:        automation.EventPrintDone,
		Action:       automation.ActionTurnOff,
		TotalSeconds: 90,
		State:        automation.StateFailed,
		ScheduledAt:  scheduled,
		FinishedAt:   &finished,
		Error:        "bridge offline",
	})

	if len(w.outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(w.outcomes))
	}
	got := w.outcomes[0]
	want := influxdb.ActionOutcome{
		DeviceMAC:      "2CAA8E000001",
		Event:          "PrintDone",
		Action:         "TurnOff",
		State:          "failed",
		DelaySeconds:   90,
		ElapsedSeconds: 90,
		Error:          "bridge offline",
		At:             finished,
	}
	if got != want {
		t.Errorf("outcome = %+v, want %+v", got, want)
	}
}

func TestMultiRecorder(t *testing.T) {
	a, b := &mockWriter{}, &mockWriter{}
	m := multiRecorder{&outcomeRecorder{client: a}, &outcomeRecorder{client: b}}

	m.RecordDispatch(automation.DispatchResult{Event: "PrintStarted"})
	m.RecordOutcome(automation.PendingAction{State: automation.StateCompleted})

	for i, w := range []*mockWriter{a, b} {
		if len(w.dispatches) != 1 || len(w.outcomes) != 1 {
			t.Errorf("recorder %d got %d dispatches and %d outcomes, want 1 each", i, len(w.dispatches), len(w.outcomes))
		}
	}
}

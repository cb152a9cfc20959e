package device

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// mockPublisher records published messages.
type mockPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, published{topic, payload, qos, retained})
	return nil
}

func (m *mockPublisher) last(t *testing.T) published {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		t.Fatal("nothing published")
	}
	return m.messages[len(m.messages)-1]
}

var errBrokerDown = errors.New("broker down")

const testInventory = `
devices:
  - mac: "2caa8e000001"
    name: Enclosure light
    type: Light
    model: WLPA19
  - mac: "2CAA8E000002"
    name: Printer plug
    type: Plug
    model: WLPP1
  - mac: "2CAA8E000003"
    name: Printer cam
    type: Camera
    model: WYZEC3
  - mac: "2CAA8E000004"
    name: Hallway lock
    type: Lock
    model: YDLOCK
`

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing inventory: %v", err)
	}
	return path
}

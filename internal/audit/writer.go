package audit

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/printrelay/internal/automation"
)

const (
	// queueSize bounds entries waiting to be written.
	queueSize = 256

	writeTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the audit writer.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Writer queues entries and stores them serially. It also satisfies
// automation.OutcomeRecorder so scheduler outcomes land in the trail.
//
// Thread Safety: All methods are safe for concurrent use.
type Writer struct {
	repo   Repository
	logger Logger
	queue  chan *Entry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWriter creates a writer and starts its write goroutine.
func NewWriter(repo Repository, logger Logger) *Writer {
	if logger == nil {
		logger = noopLogger{}
	}
	w := &Writer{
		repo:   repo,
		logger: logger,
		queue:  make(chan *Entry, queueSize),
		done:   make(chan struct{}),
	}
	go w.drain()
	return w
}

// Record queues e without blocking. Entries recorded after Close, or while
// the queue is full, are dropped.
func (w *Writer) Record(e Entry) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	select {
	case w.queue <- &e:
	default:
		w.logger.Warn("audit queue full, dropping entry", "action", e.Action, "device_mac", e.DeviceMAC)
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
}

func (w *Writer) drain() {
	defer close(w.done)
	for e := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.repo.Create(ctx, e); err != nil {
			w.logger.Error("audit write failed", "action", e.Action, "error", err)
		}
		cancel()
	}
}

// RecordDispatch implements automation.OutcomeRecorder. Events that changed
// nothing are not recorded.
func (w *Writer) RecordDispatch(result automation.DispatchResult) {
	if result.Ignored || (len(result.Scheduled) == 0 && result.Cancelled == 0 && result.Dropped == 0) {
		return
	}
	w.Record(Entry{
		Action: ActionEvent,
		Source: SourceScheduler,
		Details: map[string]any{
			"event":     result.Event,
			"scheduled": len(result.Scheduled),
			"cancelled": result.Cancelled,
			"dropped":   result.Dropped,
		},
	})
}

// RecordOutcome implements automation.OutcomeRecorder.
func (w *Writer) RecordOutcome(a automation.PendingAction) {
	details := map[string]any{
		"id":            a.ID,
		"event":         a.Event.String(),
		"action":        a.Action.String(),
		"delay_seconds": a.TotalSeconds,
	}
	if a.Error != "" {
		details["error"] = a.Error
	}
	e := Entry{
		Action:    ActionOutcomePrefix + string(a.State),
		DeviceMAC: a.DeviceID,
		Source:    SourceScheduler,
		Details:   details,
	}
	if a.FinishedAt != nil {
		e.CreatedAt = *a.FinishedAt
	}
	w.Record(e)
}

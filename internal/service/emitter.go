package service

import (
	"context"
	"sync"

	"bankcap/internal/logger"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples the service from its observers
// ─────────────────────────────────────────────────────────────

// Events emitted by PipelineService.
const (
	EventRunCompleted = "pipeline:completed"
	EventRunFailed    = "pipeline:failed"
	EventArchived     = "pipeline:archived"
)

// EventEmitter receives run lifecycle events.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes events to the structured log.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, event string, data any) {
	logger.GetLogger().WithComponent("events").WithFields(logger.Fields{
		"event": event,
		"data":  data,
	}).Info("event")
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Event
	}
	return out
}

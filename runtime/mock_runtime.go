package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/eljojo/civic/types"
)

// MockRuntime implements RuntimeInterface for testing services.
//
// It records every log line so tests can assert on warnings without
// scraping logrus output.
type MockRuntime struct {
	t  *testing.T
	id types.FeedID

	mu   sync.Mutex
	logs []LogLine

	ctx    context.Context
	cancel context.CancelFunc
}

// LogLine is one captured log call.
type LogLine struct {
	Level   string
	Service string
	Text    string
}

// NewMockRuntime creates a mock runtime with auto-cleanup via t.Cleanup().
func NewMockRuntime(t *testing.T, id types.FeedID) *MockRuntime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	mock := &MockRuntime{
		t:      t,
		id:     id,
		ctx:    ctx,
		cancel: cancel,
	}

	t.Cleanup(cancel)

	return mock
}

// === RuntimeInterface implementation ===

func (m *MockRuntime) MeID() types.FeedID {
	return m.id
}

func (m *MockRuntime) Log(service string) *ServiceLog {
	return NewServiceLog(service, m)
}

func (m *MockRuntime) Env() Environment {
	return EnvTest
}

func (m *MockRuntime) Context() context.Context {
	return m.ctx
}

// === LoggerInterface implementation ===

func (m *MockRuntime) Debug(service, format string, args ...any) { m.record("debug", service, format, args) }
func (m *MockRuntime) Info(service, format string, args ...any)  { m.record("info", service, format, args) }
func (m *MockRuntime) Warn(service, format string, args ...any)  { m.record("warn", service, format, args) }
func (m *MockRuntime) Error(service, format string, args ...any) { m.record("error", service, format, args) }

func (m *MockRuntime) record(level, service, format string, args []any) {
	line := LogLine{Level: level, Service: service, Text: fmt.Sprintf(format, args...)}
	m.mu.Lock()
	m.logs = append(m.logs, line)
	m.mu.Unlock()
	m.t.Logf("[%s] %s: %s", service, level, line.Text)
}

// === Test helpers ===

// Logs returns captured lines at the given level ("" for all).
func (m *MockRuntime) Logs(level string) []LogLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogLine
	for _, l := range m.logs {
		if level == "" || l.Level == level {
			out = append(out, l)
		}
	}
	return out
}

// Logged reports whether any line at level contains substr.
func (m *MockRuntime) Logged(level, substr string) bool {
	for _, l := range m.Logs(level) {
		if strings.Contains(l.Text, substr) {
			return true
		}
	}
	return false
}

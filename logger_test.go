package gamenet

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	// Verify that *slog.Logger implements our Logger interface
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}

	// Verify it's the slog default
	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

// mockLogger for testing Logger interface
type mockLogger struct {
	mu          sync.Mutex
	debugCalled bool
	infoCalled  bool
	warnCalled  bool
	errorCalled bool
	lastMsg     string
	lastArgs    []any
}

func (l *mockLogger) record(flag *bool, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*flag = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record(&l.debugCalled, msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record(&l.infoCalled, msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record(&l.warnCalled, msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record(&l.errorCalled, msg, args) }

func (l *mockLogger) warned() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warnCalled
}

func TestWithComponent_Custom(t *testing.T) {
	mock := &mockLogger{}
	logger := WithComponent(mock, "server")

	logger.Warn("test warn", "key", "value")

	if !mock.warnCalled {
		t.Fatal("Warn not called")
	}
	if mock.lastMsg != "test warn" {
		t.Errorf("lastMsg = %s, want 'test warn'", mock.lastMsg)
	}
	want := []any{"component", "server", "key", "value"}
	if len(mock.lastArgs) != len(want) {
		t.Fatalf("lastArgs = %v, want %v", mock.lastArgs, want)
	}
	for i := range want {
		if mock.lastArgs[i] != want[i] {
			t.Errorf("lastArgs[%d] = %v, want %v", i, mock.lastArgs[i], want[i])
		}
	}

	logger.Debug("d")
	logger.Info("i")
	logger.Error("e")
	if !mock.debugCalled || !mock.infoCalled || !mock.errorCalled {
		t.Error("not every level was forwarded")
	}
}

func TestWithComponent_Slog(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	WithComponent(base, "client").Info("connected", "addr", "x")

	out := buf.String()
	if !strings.Contains(out, "component=client") || !strings.Contains(out, "addr=x") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestWithComponent_Nil(t *testing.T) {
	if WithComponent(nil, "x") == nil {
		t.Error("WithComponent(nil) returned nil")
	}
}

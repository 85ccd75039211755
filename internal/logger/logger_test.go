package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestCycleID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := CycleID(ctx); id != "" {
		t.Errorf("expected empty cycle id, got %q", id)
	}

	ctx = WithCycleID(ctx, "agent7-123")
	if id := CycleID(ctx); id != "agent7-123" {
		t.Errorf("expected 'agent7-123', got %q", id)
	}
}

func TestGenerateCycleID(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 30, 0, 123456789, time.UTC)
	id := GenerateCycleID(42, ts)

	if !strings.HasPrefix(id, "agent42-") {
		t.Errorf("expected cycle id to start with 'agent42-', got %s", id)
	}
	if !strings.Contains(id, "123456789") {
		t.Errorf("expected cycle id to contain nanoseconds, got %s", id)
	}
}

func TestWithCycle(t *testing.T) {
	ctx := context.Background()

	if attrs := WithCycle(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no cycle id, got %v", attrs)
	}

	ctx = WithCycleID(ctx, "agent1-999")
	if attrs := WithCycle(ctx); len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with cycle id set")
	}
}

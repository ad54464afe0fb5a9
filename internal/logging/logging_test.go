package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesLevelAndFormat(t *testing.T) {
	l := New("registry", "debug", "text")
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected text formatter, got %T", l.Formatter)
	}

	l = New("registry", "not-a-level", "json")
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected fallback to info, got %s", l.GetLevel())
	}
	if l.Service() != "registry" {
		t.Fatalf("unexpected service %q", l.Service())
	}
}

func TestWithContextAddsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("registry", "info", "json")
	l.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "NUVPACMnKFhpuHjsRjhUvXz1XhqfGZYVtY")
	l.WithContext(ctx).Info("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["trace_id"] != "trace-1" {
		t.Fatalf("missing trace_id: %v", line)
	}
	if line["user_id"] != "NUVPACMnKFhpuHjsRjhUvXz1XhqfGZYVtY" {
		t.Fatalf("missing user_id: %v", line)
	}
	if line["service"] != "registry" {
		t.Fatalf("missing service: %v", line)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetUserID(ctx) != "" || GetRole(ctx) != "" {
		t.Fatal("expected empty values on bare context")
	}
	if WithTraceID(ctx, "") != ctx {
		t.Fatal("empty trace id should not wrap context")
	}
	ctx = WithRole(ctx, "owner")
	if GetRole(ctx) != "owner" {
		t.Fatalf("unexpected role %q", GetRole(ctx))
	}
	if NewTraceID() == NewTraceID() {
		t.Fatal("trace ids should be unique")
	}
}

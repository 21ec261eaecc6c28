package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerIncludesFieldsAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	log.With(String("component", "engine")).Debug(ctx, "tick",
		Float("total_load_kw", 850.5),
		Bool("leak_detected", true),
		Err(errors.New("boom")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":           "tick",
		"component":     "engine",
		"total_load_kw": 850.5,
		"leak_detected": true,
		"error":         "boom",
		"request_id":    "req-1",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Fatalf("entry[%q] = %v, want %v", k, entry[k], v)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line emitted at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestEnsureRequestIDIsStable(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatal("expected generated request id")
	}
	ctx2, id2 := EnsureRequestID(ctx)
	if id2 != id || RequestIDFromContext(ctx2) != id {
		t.Fatalf("request id changed: %q -> %q", id, id2)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if _, ok := FromContext(context.Background(), nil).(noopLogger); !ok {
		t.Fatal("expected noop logger when nothing is stored")
	}
	stored := New(Config{})
	ctx := ContextWithLogger(context.Background(), stored)
	if FromContext(ctx, nil) != stored {
		t.Fatal("expected stored logger")
	}
}

package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoggerWritesFieldsInOrder(t *testing.T) {
	var buf bytes.Buffer
	log := NewWith(zerolog.New(&buf)).With(String("comp", "registry"))

	log.Warn("refresh failed", String("task", "Catalog.Load"), Duration("dur", time.Second), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "registry" {
		t.Fatalf("comp = %v, want registry", m["comp"])
	}
	if m["task"] != "Catalog.Load" {
		t.Fatalf("task = %v", m["task"])
	}
	if m["message"] != "refresh failed" {
		t.Fatalf("message = %v", m["message"])
	}
	if _, ok := m[zerolog.CallerFieldName]; !ok {
		t.Fatalf("expected caller field in %v", m)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	// Must not panic.
	l.Info("hello", Int("n", 1))
	if Nop().IsZero() {
		t.Fatal("Nop() should not be zero")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestServiceApplyChangesLevel(t *testing.T) {
	svc, log := New(Config{Level: "error", Console: true})
	defer svc.Close()

	if log.Enabled(LevelInfo) {
		t.Fatal("info should be disabled at error level")
	}
	svc.Apply(Config{Level: "debug", Console: true})
	if !log.Enabled(LevelDebug) {
		t.Fatal("debug should be enabled after Apply")
	}
	if got := svc.Config().Level; got != "debug" {
		t.Fatalf("Config().Level = %q", got)
	}
}

package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("info", "xml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
	for _, format := range []string{"", "json", "console"} {
		l, err := New("info", format)
		if err != nil {
			t.Errorf("New(%q) failed: %v", format, err)
			continue
		}
		l.Sync()
	}
}

func TestWithRequestSkipsAnonymousFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{Logger: zap.New(core)}

	l.WithRequest("corr-1", "", "").Info("anonymous")
	l.WithRequest("corr-2", "ana@x.com", "sess-1").Info("signed in")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	anon := entries[0].ContextMap()
	if anon["correlation_id"] != "corr-1" {
		t.Errorf("correlation_id = %v", anon["correlation_id"])
	}
	if _, ok := anon["user_id"]; ok {
		t.Error("anonymous request should not carry user_id")
	}

	signed := entries[1].ContextMap()
	if signed["user_id"] != "ana@x.com" || signed["session_id"] != "sess-1" {
		t.Errorf("fields = %v", signed)
	}
}

package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("decode %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestWriterFieldsAndLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "test"))

	log.Debug("hidden")
	log.Info("hello", Int("n", 3), Bool("ok", true), Duration("took", 2*time.Second), Err(errors.New("boom")), Err(nil))
	log.Warn("later wins", String("k", "a"), String("k", "b"))

	got := lines(t, &buf)
	if len(got) != 2 {
		t.Fatalf("lines = %d, want 2: %s", len(got), buf.String())
	}
	first := got[0]
	if first["message"] != "hello" || first["comp"] != "test" || first["n"] != float64(3) || first["ok"] != true {
		t.Fatalf("first = %v", first)
	}
	if first["error"] != "boom" && first["err"] != "boom" {
		t.Fatalf("missing error field: %v", first)
	}
	if c, _ := first["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %v", first["caller"])
	}
	if got[1]["level"] != "warn" {
		t.Fatalf("level = %v", got[1]["level"])
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatalf("zero logger not zero")
	}
	zero.Error("dropped")
	if Nop().IsZero() {
		t.Fatalf("nop reported zero")
	}
	if Nop().Enabled(LevelError) {
		t.Fatalf("nop enabled")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{" DEBUG ", LevelDebug},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, LevelInfo); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

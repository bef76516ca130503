package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewJSONIncludesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(Config{Level: "debug", Format: "json", Service: "ledgersync", Output: &buf}), "sync")

	l.Info().Str("queue_item_id", "op-1").Msg("mutation applied")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"service":       "ledgersync",
		"component":     "sync",
		"queue_item_id": "op-1",
		"message":       "mutation applied",
		"level":         "info",
	} {
		if line[key] != want {
			t.Fatalf("field %s = %v, want %s", key, line[key], want)
		}
	}
	if _, ok := line["caller"]; !ok {
		t.Fatal("expected caller field")
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "console", Output: &buf})
	l.Info().Msg("hello")

	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: HumanFormat, Level: WarnLevel, Output: &buf})

	logger.Debug("debug message", nil)
	logger.Info("info message", nil)
	logger.Warn("warn message", nil)
	logger.Error("error message", nil)

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below the level leaked: %q", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("expected warn and error messages, got %q", out)
	}
}

func TestHumanFormatIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: HumanFormat, Level: InfoLevel, Output: &buf})

	logger.Info("commit failed", Fields{"path": "/src/main.cpp"})

	out := buf.String()
	if !strings.Contains(out, "[info]") {
		t.Errorf("expected level marker, got %q", out)
	}
	if !strings.Contains(out, "path=/src/main.cpp") {
		t.Errorf("expected field rendering, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: JSONFormat, Level: InfoLevel, Output: &buf})

	logger.Warn("file skipped", Fields{"path": "/src/gone.cpp"})

	var entry struct {
		Level   string            `json:"level"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "warn" || entry.Message != "file skipped" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Fields["path"] != "/src/gone.cpp" {
		t.Errorf("expected field to round-trip, got %+v", entry.Fields)
	}
}

func TestNopDiscards(t *testing.T) {
	// Must not panic or write anywhere visible.
	logger := Nop()
	logger.Error("dropped", Fields{"x": 1})
}

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.With("component", "server").Info("listening", "addr", "127.0.0.1:6379")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if entry["msg"] != "listening" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "server" || entry["addr"] != "127.0.0.1:6379" {
		t.Errorf("attributes missing: %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "text", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Debug("debug message")
	l.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("messages below warn were written: %q", buf.String())
	}

	l.Warn("warn message")
	l.Error("error message")
	out := buf.String()
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	valid := []string{"debug", "INFO", "", "warn", "warning", "error"}
	for _, level := range valid {
		if _, err := ParseLevel(level); err != nil {
			t.Errorf("ParseLevel(%q) error = %v", level, err)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) expected error")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("New() with unknown format expected error")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.With("k", "v").Error("ignored")
}

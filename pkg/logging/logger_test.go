package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, false)
	l.SetOutput(&buf)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below WARN should be dropped: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("WARN and above should be logged: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO, true)
	l.SetOutput(&buf)

	l.Info("launch started", map[string]interface{}{"gpu": 1})

	var e entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if e.Level != "INFO" || e.Message != "launch started" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Fields["gpu"] != float64(1) {
		t.Errorf("expected gpu field, got %v", e.Fields)
	}
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO, true)
	l.SetOutput(&buf)

	child := l.WithField("run", "cvrp20")
	child.Info("hello")

	var e entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatal(err)
	}
	if e.Fields["run"] != "cvrp20" {
		t.Errorf("expected inherited field, got %v", e.Fields)
	}

	// Parent is unaffected
	buf.Reset()
	l.Info("plain")
	var parent entry
	if err := json.Unmarshal(buf.Bytes(), &parent); err != nil {
		t.Fatal(err)
	}
	if _, ok := parent.Fields["run"]; ok {
		t.Error("parent logger should not carry the child's field")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"error", ERROR},
		{"bogus", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

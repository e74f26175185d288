package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONCarriesServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "api", "warn", "json")
	logger.Info("dropped")
	logger.Warn("kept", "source_id", "docs")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "api" || entry["msg"] != "kept" || entry["source_id"] != "docs" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "worker", "debug", "TEXT").Debug("sync_completed")
	if !strings.Contains(buf.String(), "msg=sync_completed") || !strings.Contains(buf.String(), "service=worker") {
		t.Fatalf("unexpected text output: %q", buf.String())
	}
}

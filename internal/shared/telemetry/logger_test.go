package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestWriteEmitsFlatJSON(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	fields := JobFields("a-1", "owner-1", "Q1")
	fields["error"] = errors.New("boom")
	fields["msg"] = "must not override"
	Warn("job.failed", fields)

	line := strings.TrimSpace(buf.String())
	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	if got["level"] != "warn" {
		t.Fatalf("expected warn level, got %v", got["level"])
	}
	if got["msg"] != "job.failed" {
		t.Fatalf("expected msg job.failed, got %v", got["msg"])
	}
	if got["error"] != "boom" {
		t.Fatalf("expected error string, got %v", got["error"])
	}
	if got["analysis_id"] != "a-1" || got["owner_id"] != "owner-1" || got["unit_id"] != "Q1" {
		t.Fatalf("missing identity fields: %v", got)
	}
}

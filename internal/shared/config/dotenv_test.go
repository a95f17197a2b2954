package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line    string
		key     string
		val     string
		wantErr bool
	}{
		{line: "S3_BUCKET=media", key: "S3_BUCKET", val: "media"},
		{line: "export ENV=staging", key: "ENV", val: "staging"},
		{line: `OPENAI_API_KEY="sk test #1"`, key: "OPENAI_API_KEY", val: "sk test #1"},
		{line: "RA_SCAN_MAX_ATTEMPTS=2 # retries", key: "RA_SCAN_MAX_ATTEMPTS", val: "2"},
		{line: "EMPTY=", key: "EMPTY", val: ""},
		{line: "# comment", wantErr: true},
		{line: "", wantErr: true},
		{line: "NOEQUALS", wantErr: true},
		{line: "BAD KEY=1", wantErr: true},
	}
	for _, tc := range tests {
		key, val, ok := parseEnvLine(tc.line)
		if ok == tc.wantErr {
			t.Fatalf("%q: ok=%v", tc.line, ok)
		}
		if ok && (key != tc.key || val != tc.val) {
			t.Fatalf("%q: got %q=%q, want %q=%q", tc.line, key, val, tc.key, tc.val)
		}
	}
}

func TestLoadEnvFilesKeepsProcessEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("IA_TEST_SET=file\nIA_TEST_UNSET=file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("IA_TEST_SET", "process")
	t.Setenv("IA_TEST_UNSET", "")
	os.Unsetenv("IA_TEST_UNSET")

	loadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path)
	t.Cleanup(func() { os.Unsetenv("IA_TEST_UNSET") })

	if got := os.Getenv("IA_TEST_SET"); got != "process" {
		t.Fatalf("process value overwritten: %q", got)
	}
	if got := os.Getenv("IA_TEST_UNSET"); got != "file" {
		t.Fatalf("expected file value, got %q", got)
	}
}

// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; expected %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLoggerComponentAndLevel(t *testing.T) {
	defer SetLevel(GetLevel())

	var buf bytes.Buffer
	l := NewJSON(&buf, "pipeline")

	SetLevel(LevelWarn)
	l.Infof("dropped %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("info message written at warn level: %s", buf.String())
	}

	l.Warnf("overrun of %d frames", 64)
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "pipeline" || entry["level"] != "warn" || entry["message"] != "overrun of 64 frames" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestWithAddsComponent(t *testing.T) {
	defer SetLevel(GetLevel())
	SetLevel(LevelDebug)

	var buf bytes.Buffer
	New(&buf, "").With("render").Debugf("paint")
	if !strings.Contains(buf.String(), "component=render") || !strings.Contains(buf.String(), "paint") {
		t.Errorf("unexpected console line %q", buf.String())
	}
}

func TestDefaultSwap(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewJSON(&buf, "main"))
	Errorf("boom")
	if !strings.Contains(buf.String(), `"boom"`) {
		t.Errorf("default logger not used: %q", buf.String())
	}
}

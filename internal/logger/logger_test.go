package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// TestHandlerFormat verifies the line layout.
func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, slog.LevelDebug))

	l.Info("intent settled", "intent", "0xab", "tx", "D1")

	line := buf.String()
	if !strings.Contains(line, "[INF] intent settled intent=0xab tx=D1") {
		t.Fatalf("unexpected line: %q", line)
	}

	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("line not newline terminated: %q", line)
	}
}

// TestHandlerLevel verifies records below the threshold are dropped.
func TestHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, slog.LevelWarn))

	l.Info("hidden")
	l.Debug("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record written at warn level: %q", out)
	}

	if !strings.Contains(out, "[WRN] shown") {
		t.Fatalf("warn record missing: %q", out)
	}
}

// TestHandlerWithAttrs verifies With attributes are carried.
func TestHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, slog.LevelInfo)).With("intent", "0x01")

	l.Error("rejected", "kind", "unauthorized")

	if !strings.Contains(buf.String(), "[ERR] rejected intent=0x01 kind=unauthorized") {
		t.Fatalf("unexpected line: %q", buf.String())
	}
}

// TestParseLevel verifies flag values map to levels.
func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}

		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

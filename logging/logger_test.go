package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(level LogLevel) (*PipeLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = buf
	return NewLogger(cfg), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestPipeLogger_ScopingAndArgs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.WithComponent("runner").WithRun("run-1").Info("run.start", "root", "pipeline")

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	got := lines[0]
	if got["msg"] != "run.start" || got["component"] != "runner" || got["run_id"] != "run-1" || got["root"] != "pipeline" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestPipeLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Info("ignored")
	l.Debug("ignored")
	l.Warn("kept")
	lines := decodeLines(t, buf)
	if len(lines) != 1 || lines[0]["msg"] != "kept" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestPipeLogger_Outcomes(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.LogModelCall("gemini-2.5-flash-lite", time.Millisecond, nil)
	l.LogToolCall("exit_loop", time.Millisecond, errors.New("boom"))
	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(lines))
	}
	if lines[0]["msg"] != "model.call.completed" || lines[0]["success"] != true {
		t.Fatalf("unexpected model record: %+v", lines[0])
	}
	if lines[1]["msg"] != "tool.call.failed" || lines[1]["error"] != "boom" || lines[1]["level"] != "ERROR" {
		t.Fatalf("unexpected tool record: %+v", lines[1])
	}
}

func TestWithContext_DoesNotMutateParent(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	child := l.WithContext("k", "v")
	l.Info("parent")
	child.Info("child")
	lines := decodeLines(t, buf)
	if _, ok := lines[0]["k"]; ok {
		t.Fatal("parent should not carry child context")
	}
	if lines[1]["k"] != "v" {
		t.Fatalf("child missing context: %+v", lines[1])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{"debug": LogLevelDebug, "WARN": LogLevelWarn, "error": LogLevelError, "": LogLevelInfo, "bogus": LogLevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestScoped(t *testing.T) {
	if _, ok := Scoped(nil, "x").(NoOpLogger); !ok {
		t.Fatal("nil logger should become NoOpLogger")
	}
	l, _ := newBufferLogger(LogLevelInfo)
	if s, ok := Scoped(l, "flow").(*PipeLogger); !ok || s.component != "flow" {
		t.Fatal("PipeLogger should be scoped")
	}
}

package core

import (
	"context"
	"errors"
	"testing"
)

func newRunContextForTest() (*RunContext, chan Event) {
	emit := make(chan Event, 16)
	rc := NewRunContext(context.Background(), "run-1", NewTextContent("user", "hello"), emit, NewState(nil), 0, nil)
	return rc, emit
}

func TestControl_String(t *testing.T) {
	if Continue.String() != "continue" || Stop.String() != "stop" || Control(9).String() != "unknown" {
		t.Fatal("unexpected control names")
	}
	b, _ := Stop.MarshalText()
	if string(b) != "stop" {
		t.Fatalf("MarshalText=%s", b)
	}
}

func TestModelLimiter(t *testing.T) {
	l := NewModelLimiter(2)
	if err := l.Increment(); err != nil {
		t.Fatal(err)
	}
	if err := l.Increment(); err != nil {
		t.Fatal(err)
	}
	if l.Remaining() != 0 {
		t.Fatalf("remaining=%d", l.Remaining())
	}
	if err := l.Increment(); !errors.Is(err, ErrModelCallLimit) {
		t.Fatalf("expected ErrModelCallLimit, got %v", err)
	}

	unlimited := NewModelLimiter(0)
	for range 100 {
		if err := unlimited.Increment(); err != nil {
			t.Fatal(err)
		}
	}
	if unlimited.Remaining() != -1 || unlimited.Count() != 100 {
		t.Fatal("unlimited limiter misreported")
	}
}

package core

import (
	"errors"
	"testing"
)

func TestSession_AddEventAppliesDelta(t *testing.T) {
	s := NewSession("run-1", "topic")
	ev := NewMessageEvent("run-1", "writer", "draft")
	ev.Actions.StateDelta = map[string]any{"draft": "draft"}
	s.AddEvent(ev)

	if len(s.GetEvents()) != 1 || s.State["draft"] != "draft" {
		t.Fatalf("unexpected session: %+v", s)
	}

	clone := s.Clone()
	clone.State["other"] = 1
	if _, ok := s.State["other"]; ok {
		t.Fatal("clone should not share state map")
	}
}

func TestSession_Finish(t *testing.T) {
	s := NewSession("run-1", "q")
	if s.Status != SessionRunning {
		t.Fatal("new session should be running")
	}
	s.Finish(SessionFailed, errors.New("boom"))
	if s.Status != SessionFailed || s.Error != "boom" {
		t.Fatalf("unexpected: %s %s", s.Status, s.Error)
	}
}

package core

import (
	"context"
	"reflect"
	"testing"
)

func TestRunContext_EmitEventAttachesDelta(t *testing.T) {
	rc, emit := newRunContextForTest()
	rc.SetState("foo", "bar")
	if err := rc.EmitEvent(NewMessageEvent("", "agent", "hi")); err != nil {
		t.Fatalf("EmitEvent error: %v", err)
	}
	received := <-emit
	if received.RunID != "run-1" {
		t.Fatalf("run id not filled: %q", received.RunID)
	}
	if received.Actions.StateDelta["foo"] != "bar" {
		t.Fatalf("state delta missing: %+v", received.Actions)
	}
	if rc.LastOutput() != "hi" {
		t.Fatalf("LastOutput=%q", rc.LastOutput())
	}

	if err := rc.EmitEvent(NewEvent("", "agent")); err != nil {
		t.Fatal(err)
	}
	if second := <-emit; second.Actions.StateDelta != nil {
		t.Fatal("delta should be cleared after emit")
	}
}

func TestRunContext_EmitEventCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := NewRunContext(ctx, "run", Content{}, make(chan Event), nil, 0, nil)
	cancel()
	if err := rc.EmitEvent(NewEvent("", "agent")); err == nil {
		t.Fatal("expected context error")
	}
}

func TestRunContext_ForAgentSharesState(t *testing.T) {
	rc, _ := newRunContextForTest()
	child := rc.ForAgent("writer", "llm")
	child.SetState("draft", "text")
	if v, _ := rc.GetState("draft"); v != "text" {
		t.Fatal("ForAgent should share state")
	}
	if child.Agent.Name != "writer" || rc.Agent.Name != "" {
		t.Fatal("agent info should be per context")
	}
	if !reflect.DeepEqual(rc.Written(), []string{"draft"}) {
		t.Fatalf("written=%v", rc.Written())
	}
}

func TestRunContext_ForkAndMerge(t *testing.T) {
	rc, _ := newRunContextForTest()
	rc.SetState("topic", "go")

	a := rc.Fork(context.Background(), "a")
	b := rc.Fork(context.Background(), "b")
	a.SetState("result_a", 1)
	b.SetState("result_b", 2)

	if _, ok := a.GetState("result_b"); ok {
		t.Fatal("branches must not see each other's writes")
	}
	if v, _ := b.GetState("topic"); v != "go" {
		t.Fatal("branch should see parent snapshot")
	}
	if _, ok := rc.GetState("result_a"); ok {
		t.Fatal("parent must not see branch writes before merge")
	}

	rc.MergeBranch(a)
	rc.MergeBranch(b)
	if got := rc.State.Keys(); !reflect.DeepEqual(got, []string{"topic", "result_a", "result_b"}) {
		t.Fatalf("merged keys=%v", got)
	}
	if !reflect.DeepEqual(rc.Written(), []string{"topic", "result_a", "result_b"}) {
		t.Fatalf("written=%v", rc.Written())
	}
}

func TestRunContext_WithUserContent(t *testing.T) {
	rc, _ := newRunContextForTest()
	q := rc.WithUserContent(NewTextContent("user", "other"))
	if q.UserContent.Text() != "other" || rc.UserContent.Text() != "hello" {
		t.Fatal("WithUserContent should copy")
	}
	if q.State != rc.State {
		t.Fatal("state should be shared")
	}
}

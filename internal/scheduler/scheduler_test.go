package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunFiresTasksUntilCancel(t *testing.T) {
	g := New(nil)
	var fast, failing atomic.Int64
	if err := g.Add("fast", 5*time.Millisecond, func(context.Context) error {
		fast.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := g.Add("failing", 5*time.Millisecond, func(context.Context) error {
		failing.Add(1)
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for fast.Load() < 3 || failing.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("tasks did not fire: fast=%d failing=%d", fast.Load(), failing.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func TestRunWithoutTasks(t *testing.T) {
	if err := New(nil).Run(context.Background()); !errors.Is(err, ErrNoTasks) {
		t.Fatalf("expected ErrNoTasks, got %v", err)
	}
}

func TestAddValidates(t *testing.T) {
	g := New(nil)
	if err := g.Add("zero", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected zero interval to fail")
	}
	if err := g.Add("nil", time.Second, nil); err == nil {
		t.Fatalf("expected nil func to fail")
	}
	if len(g.Tasks()) != 0 {
		t.Fatalf("invalid tasks were registered")
	}
}

func TestRunOnceJoinsErrors(t *testing.T) {
	g := New(nil)
	var order []string
	boom := errors.New("boom")
	_ = g.Add("a", time.Second, func(context.Context) error { order = append(order, "a"); return nil })
	_ = g.Add("b", time.Second, func(context.Context) error { order = append(order, "b"); return boom })
	_ = g.Add("c", time.Second, func(context.Context) error { order = append(order, "c"); return nil })

	err := g.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[2] != "c" {
		t.Fatalf("order %v", order)
	}
}

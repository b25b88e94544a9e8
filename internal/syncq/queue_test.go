package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"
)

func cmd(id string) Command {
	return Command{Path: "/api/ads", Body: json.RawMessage(`{"id":"` + id + `"}`), EventID: id}
}

func TestPushAndLoad(t *testing.T) {
	q, err := New(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := q.Load()
	if err != nil || len(got) != 0 {
		t.Fatalf("empty load: %v %v", got, err)
	}
	for _, id := range []string{"a", "b"} {
		if err := q.Push(cmd(id)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	got, err = q.Load()
	if err != nil || len(got) != 2 || got[0].EventID != "a" || got[1].EventID != "b" {
		t.Fatalf("load: %+v %v", got, err)
	}
	info, err := os.Stat(q.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("perm %v", info.Mode().Perm())
	}
}

func TestPushDropsOldest(t *testing.T) {
	q, _ := New(t.TempDir(), 2)
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Push(cmd(id)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	got, _ := q.Load()
	if len(got) != 2 || got[0].EventID != "b" || got[1].EventID != "c" {
		t.Fatalf("got %+v", got)
	}
}

func TestDrainStopsAtFirstFailure(t *testing.T) {
	q, _ := New(t.TempDir(), 10)
	for _, id := range []string{"a", "b", "c"} {
		_ = q.Push(cmd(id))
	}
	boom := errors.New("offline")
	var seen []string
	sent, err := q.Drain(context.Background(), func(_ context.Context, c Command) error {
		seen = append(seen, c.EventID)
		if c.EventID == "b" {
			return boom
		}
		return nil
	})
	if sent != 1 || !errors.Is(err, boom) {
		t.Fatalf("sent=%d err=%v", sent, err)
	}
	got, _ := q.Load()
	if len(got) != 2 || got[0].EventID != "b" {
		t.Fatalf("remaining %+v", got)
	}

	sent, err = q.Drain(context.Background(), func(context.Context, Command) error { return nil })
	if sent != 2 || err != nil {
		t.Fatalf("sent=%d err=%v", sent, err)
	}
	if _, err := os.Stat(q.Path()); !os.IsNotExist(err) {
		t.Fatalf("queue file should be removed, stat err=%v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("seen %v", seen)
	}
}

func TestPushDuringDrainDoesNotBlock(t *testing.T) {
	q, _ := New(t.TempDir(), 10)
	for _, id := range []string{"a", "b"} {
		_ = q.Push(cmd(id))
	}
	sending := make(chan struct{})
	release := make(chan struct{})
	drained := make(chan int, 1)
	go func() {
		n, _ := q.Drain(context.Background(), func(_ context.Context, c Command) error {
			if c.EventID == "a" {
				close(sending)
				<-release
			}
			return nil
		})
		drained <- n
	}()

	<-sending
	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(cmd("c")) }()
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("push: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("push blocked behind a drain")
	}
	close(release)

	if n := <-drained; n != 2 {
		t.Fatalf("drained %d", n)
	}
	got, _ := q.Load()
	if len(got) != 1 || got[0].EventID != "c" {
		t.Fatalf("remaining %+v", got)
	}
}

package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	p := New(ctx, 2)

	var ran atomic.Int32
	for _, d := range []time.Duration{100 * time.Millisecond, -100 * time.Millisecond, 200 * time.Millisecond} {
		p.Add(d.String(), func(context.Context) time.Time {
			ran.Add(1)
			return time.Now().Add(d)
		})
	}

	// Wait for a short period to allow tasks to be processed.
	time.Sleep(300 * time.Millisecond)

	// If the pool had gotten stuck, we'd not see every task run.
	if ran.Load() < 3 {
		t.Fatalf("expected every task to run, got %d runs", ran.Load())
	}
}

type run struct {
	left     int
	ran      atomic.Int32
	sleep    time.Duration
	deadline time.Duration
}

func (t *run) Execute(context.Context) time.Time {
	if t.left > 0 {
		time.Sleep(t.sleep)
		t.left--
		t.ran.Add(1)
		return time.Now().Add(t.deadline)
	}

	var zero time.Time
	return zero // dequeue task
}

func TestTrigger(t *testing.T) {
	t.Run("trigger pulls queued task up from", func(t *testing.T) {
		p := New(t.Context(), 2)

		rx := &run{left: 3, deadline: 200 * time.Millisecond}

		p.Add("t", rx.Execute) // will run once (run #1), and be queued for 200 ms
		time.Sleep(20 * time.Millisecond)

		_ = p.Trigger("t") // pulled in front, run #2
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t")                 // pulled in front, run #3
		time.Sleep(300 * time.Millisecond) // no other runs, third run dequeued

		if exp, act := int32(3), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("trigger reruns executing task right away", func(t *testing.T) {
		p := New(t.Context(), 2)

		// if it wasn't triggered, we'd not see a second run: the next deadline is 1s
		rx := &run{left: 3, sleep: 100 * time.Millisecond, deadline: time.Second}

		p.Add("t", rx.Execute) // will run once (run #1)
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t") // re-run after it's done, run #2

		time.Sleep(300 * time.Millisecond)

		if exp, act := int32(2), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		p := New(t.Context(), 1)
		if err := p.Trigger("nope"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestRemoval(t *testing.T) {
	p := New(t.Context(), 1)

	rx := &run{left: 1}
	p.Add("t", rx.Execute)
	time.Sleep(50 * time.Millisecond)

	if n := p.Len(); n != 0 {
		t.Fatalf("expected the finished task to be removed, got %d", n)
	}
}

func TestCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	p := New(ctx, 3)

	p.Add("t", func(context.Context) time.Time {
		return time.Now().Add(time.Hour)
	})
	time.Sleep(20 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop")
	}
}

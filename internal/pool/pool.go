// Package pool runs recurring tasks in deadline order on a fixed number of
// goroutines.
package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Pool executes tasks in order of their deadlines, using a fixed number of goroutines.
// Each task returns its next deadline; a zero deadline removes it from the pool.
// If a task is added while the pool is waiting for the next task, it will wake up
// the waiting goroutine to process the new task immediately. The workers stop
// when the pool's context is done.
type Pool struct {
	ctx   context.Context
	mu    sync.Mutex
	queue []*task
	reg   map[string]*task
	wait  chan struct{}
	wg    sync.WaitGroup
}

type task struct {
	name     string
	fn       func(context.Context) time.Time
	deadline time.Time
	rerun    bool
}

func New(ctx context.Context, workers int) *Pool {
	pool := &Pool{ctx: ctx, reg: make(map[string]*task)}

	pool.wg.Add(workers)
	for range workers {
		go pool.work()
	}

	return pool
}

// Add queues fn to run right away.
func (p *Pool) Add(name string, fn func(context.Context) time.Time) {
	p.enqueue(&task{name: name, fn: fn, deadline: time.Now()})
}

// Wait blocks until all workers have stopped. Tasks running when the
// context ends are allowed to finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Len returns the number of registered tasks, queued or running.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reg)
}

// work is the main loop for each worker goroutine.
func (p *Pool) work() {
	defer p.wg.Done()
	for {
		t := p.dequeue()
		if t == nil {
			return
		}
		p.enqueue(t.Execute(p.ctx))
	}
}

// Trigger runs the named task NOW, if it is in the queue, regardless of the
// previous deadline, by pulling it into the front of the queue. If the named
// task is not queued, it's running. In that case, we'll have it override its
// next deadline to NOW, causing an immediate re-run after the current run.
// Subsequent runs will use the deadline returned by the task's `fn`.
func (p *Pool) Trigger(n string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.IndexFunc(p.queue, func(t *task) bool { return t.name == n }); i != -1 {
		p.queue[i].deadline = time.Now()
		p.sortAndWake()
		return nil
	}
	// if it's not in p.queue, it must be running at the moment
	if t, ok := p.reg[n]; ok {
		t.rerun = true
		return nil
	}

	return fmt.Errorf("no task with name %s", n)
}

// sortAndWake is used in multiple places, but always needs to be run
// within a p.mu lock!
func (p *Pool) sortAndWake() {
	slices.SortFunc(p.queue, func(a, b *task) int {
		return a.deadline.Compare(b.deadline)
	})

	if p.wait != nil {
		close(p.wait)
		p.wait = nil
	}
}

func (p *Pool) enqueue(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t.deadline.IsZero() {
		// Task requested removal from the pool.
		delete(p.reg, t.name)
		return
	}

	p.reg[t.name] = t
	p.queue = append(p.queue, t)
	p.sortAndWake()
}

// dequeue blocks until the first task is due and returns it, or returns
// nil once the context is done.
func (p *Pool) dequeue() *task {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.ctx.Err() != nil {
			return nil
		}

		var deadline time.Time
		if len(p.queue) == 0 {
			deadline = time.Now().Add(time.Hour * 24 * 365) // Default to a far future deadline
		} else {
			deadline = p.queue[0].deadline
		}

		if !deadline.After(time.Now()) {
			break
		}

		// Not ready yet: wait for it, for another (potentially earlier)
		// task to arrive, or for the end.
		if p.wait == nil {
			p.wait = make(chan struct{})
		}
		wait := p.wait

		p.mu.Unlock()

		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-timer.C:
		case <-wait:
		case <-p.ctx.Done():
		}
		timer.Stop()

		p.mu.Lock()
	}

	var t *task
	t, p.queue = p.queue[0], p.queue[1:]
	return t
}

func (t *task) Execute(ctx context.Context) *task {
	t.deadline = t.fn(ctx)
	if t.rerun && !t.deadline.IsZero() {
		t.rerun = false
		t.deadline = time.Now()
	}
	return t
}

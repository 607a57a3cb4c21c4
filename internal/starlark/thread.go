package starlark

import (
	"context"
	"sync"
	"sync/atomic"

	"go.starlark.net/starlark"
)

// defaultIdleThreads bounds the threads a script keeps between calls.
const defaultIdleThreads = 8

// threadPool recycles the Starlark threads a script runs its transform
// function on. Cancellation is sticky on a starlark.Thread, so a thread that
// was cancelled while running is dropped instead of recycled.
type threadPool struct {
	mu      sync.Mutex
	idle    []*starlark.Thread
	maxIdle int
	created atomic.Int64
}

func newThreadPool(maxIdle int) *threadPool {
	if maxIdle <= 0 {
		maxIdle = defaultIdleThreads
	}
	return &threadPool{maxIdle: maxIdle}
}

// run calls fn on a pooled thread named after the module being transformed.
// The thread is cancelled when ctx is done before fn returns. run waits for
// that decision before recycling, so a cancelled thread never reaches the
// idle list.
func (p *threadPool) run(ctx context.Context, module string, onPrint func(string),
	fn func(*starlark.Thread) (starlark.Value, error),
) (starlark.Value, error) {
	thread := p.acquire()
	thread.Name = module
	thread.Print = func(_ *starlark.Thread, msg string) { onPrint(msg) }

	done := make(chan struct{})
	cancelled := make(chan bool, 1)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
			cancelled <- true
		case <-done:
			cancelled <- false
		}
	}()

	v, err := fn(thread)
	close(done)
	if !<-cancelled {
		p.release(thread)
	}
	return v, err
}

func (p *threadPool) acquire() *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.idle); n > 0 {
		thread := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return thread
	}
	p.created.Add(1)
	return &starlark.Thread{}
}

func (p *threadPool) release(thread *starlark.Thread) {
	thread.Name = ""
	thread.Print = nil
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) < p.maxIdle {
		p.idle = append(p.idle, thread)
	}
}

// idleCount returns the number of threads waiting for reuse.
func (p *threadPool) idleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

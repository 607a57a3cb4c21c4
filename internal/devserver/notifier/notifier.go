// Package notifier provides a broadcast mechanism for SSE push channels.
package notifier

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-listener queue length.
const DefaultBuffer = 16

// Notifier broadcasts messages to all subscribed listeners.
type Notifier[T any] struct {
	mu        sync.RWMutex
	listeners map[chan T]struct{}
	buffer    int
	dropped   atomic.Uint64
}

// New creates a new Notifier instance with DefaultBuffer.
func New[T any]() *Notifier[T] {
	return NewWithBuffer[T](DefaultBuffer)
}

// NewWithBuffer creates a Notifier whose listener channels hold size messages.
func NewWithBuffer[T any](size int) *Notifier[T] {
	if size < 1 {
		size = 1
	}
	return &Notifier[T]{
		listeners: make(map[chan T]struct{}),
		buffer:    size,
	}
}

// Subscribe returns a channel that receives broadcast messages.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier[T]) Subscribe() chan T {
	ch := make(chan T, n.buffer)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier[T]) Unsubscribe(ch chan T) {
	n.mu.Lock()
	_, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Broadcast sends msg to all listeners.
// Non-blocking: if a listener's channel is full, the message is dropped
// for that listener and counted.
func (n *Notifier[T]) Broadcast(msg T) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- msg:
		default:
			n.dropped.Add(1)
		}
	}
}

// Len returns the number of listeners.
func (n *Notifier[T]) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Dropped returns how many deliveries were skipped because a listener was full.
func (n *Notifier[T]) Dropped() uint64 {
	return n.dropped.Load()
}

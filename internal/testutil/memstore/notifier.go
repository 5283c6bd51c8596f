package memstore

import (
	"context"
	"sync"
)

// Notifier counts Publish calls.
type Notifier struct {
	mu    sync.Mutex
	count int
	Err   error
}

func (n *Notifier) Publish(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return n.Err
}

// Count returns the number of Publish calls so far.
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// Reset zeroes the call count.
func (n *Notifier) Reset() {
	n.mu.Lock()
	n.count = 0
	n.mu.Unlock()
}

// Transactor runs fn directly, recording the operation names.
type Transactor struct {
	mu  sync.Mutex
	Ops []string
}

func (t *Transactor) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	t.Ops = append(t.Ops, op)
	t.mu.Unlock()
	return fn(ctx)
}

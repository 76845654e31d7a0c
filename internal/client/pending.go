package client

import (
	"context"
	"sync"
)

// Pending is the eventual outcome of one call. It settles exactly once.
type Pending struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// settle stores the outcome, returning false if the call was already settled
func (p *Pending) settle(value any, err error) bool {
	settled := false
	p.once.Do(func() {
		p.value = value
		p.err = err
		settled = true
		close(p.done)
	})
	return settled
}

// Done is closed once the call is settled
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the call settles or ctx is done. Cancelling ctx only
// stops waiting; the call itself keeps running.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the call has an outcome
func (p *Pending) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

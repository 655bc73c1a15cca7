// Package async provides Completion, a settle-once handle for an operation
// running in its own goroutine, and All, a fan-out/fan-in barrier over many
// of them.
package async

import (
	"context"
	"fmt"
	"sync"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// ErrPanic is reported when the function passed to Go panics.
var ErrPanic = zerr.New("operation panicked")

// Completion settles exactly once, either resolved (nil error) or rejected.
//
// For aggregates built with All, Done closes at the first rejection while
// Settled only closes once every member has finished.
type Completion struct {
	once    sync.Once
	done    chan struct{}
	settled <-chan struct{}
	err     error
}

func newCompletion() *Completion {
	c := &Completion{done: make(chan struct{})}
	c.settled = c.done
	return c
}

func (c *Completion) settle(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Go runs fn in a new goroutine and returns its Completion.
func Go(fn func() error) *Completion {
	c := newCompletion()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.settle(zerr.With(fmt.Errorf("%w: %v", ErrPanic, r), "panic", r))
			}
		}()
		c.settle(fn())
	}()
	return c
}

func Resolved() *Completion {
	c := newCompletion()
	c.settle(nil)
	return c
}

func Rejected(err error) *Completion {
	c := newCompletion()
	c.settle(err)
	return c
}

// Done is closed once the outcome is known.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Settled is closed once no work belonging to c is still running.
func (c *Completion) Settled() <-chan struct{} {
	return c.settled
}

// Err returns the rejection error. It is only meaningful after Done is closed.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until c is done or ctx is cancelled.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// All resolves once every member resolved and rejects with the first
// rejection it observes. Members are never cancelled; the aggregate's Settled
// channel closes after the last of them finished.
// Nil members count as resolved.
func All(cs ...*Completion) *Completion {
	agg := newCompletion()
	settled := make(chan struct{})
	agg.settled = settled

	var g errgroup.Group
	for _, c := range cs {
		if c == nil {
			continue
		}
		g.Go(func() error {
			<-c.Done()
			err := c.Err()
			if err != nil {
				agg.settle(err)
			}
			<-c.Settled()
			return err
		})
	}

	go func() {
		agg.settle(g.Wait())
		close(settled)
	}()

	return agg
}

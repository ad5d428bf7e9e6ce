// Package stream models a streamed model response as an ordered sequence of
// typed events, and provides the transform that guarantees every finished
// response carries human-readable narrative.
package stream

import (
	"context"
	"errors"
	"sync"
)

// Stream is a pull iterator over events. Events are yielded in the order
// they were produced. Callers must Close a Stream they stop reading early.
type Stream interface {
	Next() bool
	Current() Event
	Err() error
	Close() error
}

// Emit hands an event to the consumer. It returns false once the consumer
// has gone away, after which the producer should stop.
type Emit func(Event) bool

// Producer writes events until it is done or ctx is cancelled.
type Producer func(ctx context.Context, emit Emit) error

type pipe struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan Event
	done   chan struct{}
	cur    Event
	err    error
	once   sync.Once
}

// Pipe runs producer on its own goroutine and exposes what it emits as a
// Stream. Each event is handed over unbuffered, so the producer never runs
// ahead of the consumer. A non-nil producer error other than cancellation
// is delivered as a trailing Error event.
func Pipe(ctx context.Context, producer Producer) Stream {
	ctx, cancel := context.WithCancel(ctx)
	p := &pipe{
		ctx:    ctx,
		cancel: cancel,
		ch:     make(chan Event),
		done:   make(chan struct{}),
	}

	emit := func(ev Event) bool {
		select {
		case p.ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(p.done)
		defer close(p.ch)
		if err := producer(ctx, emit); err != nil && !errors.Is(err, context.Canceled) {
			emit(Error{Text: err.Error()})
		}
	}()

	return p
}

func (p *pipe) Next() bool {
	select {
	case ev, ok := <-p.ch:
		if !ok {
			p.err = p.ctx.Err()
			return false
		}
		p.cur = ev
		return true
	case <-p.ctx.Done():
		p.err = p.ctx.Err()
		return false
	}
}

func (p *pipe) Current() Event { return p.cur }

func (p *pipe) Err() error { return p.err }

// Close cancels the producer and waits for it to return.
func (p *pipe) Close() error {
	p.once.Do(func() {
		p.cancel()
		<-p.done
	})
	return nil
}

type sliceStream struct {
	events []Event
	pos    int
	cur    Event
}

// FromEvents returns a Stream over a fixed sequence of events.
func FromEvents(events ...Event) Stream {
	return &sliceStream{events: events}
}

func (s *sliceStream) Next() bool {
	if s.pos >= len(s.events) {
		return false
	}
	s.cur = s.events[s.pos]
	s.pos++
	return true
}

func (s *sliceStream) Current() Event { return s.cur }
func (s *sliceStream) Err() error     { return nil }
func (s *sliceStream) Close() error   { return nil }

// Collect drains s and closes it.
func Collect(s Stream) ([]Event, error) {
	defer s.Close() //nolint:errcheck
	var out []Event
	for s.Next() {
		out = append(out, s.Current())
	}
	return out, s.Err()
}

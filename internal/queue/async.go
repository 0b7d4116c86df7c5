package queue

import (
    "context"
    "errors"
    "log"
    "sync"
    "time"
)

// ErrQueueFull is returned when the async buffer has no room left.
var ErrQueueFull = errors.New("queue: event buffer full")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("queue: publisher closed")

// Async hands events to a background goroutine that publishes them through
// next, so callers never wait on the broker.  Events that do not fit in the
// buffer are rejected instead of blocking.
type Async struct {
    next    Publisher
    timeout time.Duration

    events chan AuthEvent
    quit   chan struct{}
    done   chan struct{}
    once   sync.Once
}

// NewAsync starts the worker.  buffer below 1 means 256.
func NewAsync(next Publisher, buffer int) *Async {
    if buffer < 1 {
        buffer = 256
    }
    a := &Async{
        next:    next,
        timeout: 2 * dialTimeout,
        events:  make(chan AuthEvent, buffer),
        quit:    make(chan struct{}),
        done:    make(chan struct{}),
    }
    go a.run()
    return a
}

func (a *Async) Publish(_ context.Context, ev AuthEvent) error {
    select {
    case <-a.quit:
        return ErrClosed
    default:
    }
    select {
    case a.events <- ev:
        return nil
    default:
        return ErrQueueFull
    }
}

func (a *Async) run() {
    defer close(a.done)
    for {
        select {
        case ev := <-a.events:
            a.send(ev)
        case <-a.quit:
            // flush what was accepted before Close
            for {
                select {
                case ev := <-a.events:
                    a.send(ev)
                default:
                    return
                }
            }
        }
    }
}

func (a *Async) send(ev AuthEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
    defer cancel()
    if err := a.next.Publish(ctx, ev); err != nil {
        log.Printf("queue: async publish %s for user=%s failed: %v", ev.Type, ev.UserID, err)
    }
}

// Close stops accepting events and waits for the buffered ones to be sent.
func (a *Async) Close() error {
    a.once.Do(func() { close(a.quit) })
    <-a.done
    return nil
}

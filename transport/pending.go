package transport

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luma/anidb/protocol"
)

var (
	ErrUnexpectedReply = errors.New("Received a reply with no request outstanding")
	ErrTimeout         = errors.New("Timed out waiting for a reply")
	ErrTransportClosed = errors.New("Transport is closed")
)

// Result is what a Waiter settles with: a decoded reply or an error.
type Result struct {
	Reply protocol.Reply
	Err   error
}

// Waiter stands in for one request awaiting exactly one reply.
type Waiter struct {
	enqueued time.Time
	once     sync.Once
	result   chan Result

	// sent is guarded by the queue's mutex
	sent bool
}

func newWaiter() *Waiter {
	return &Waiter{
		enqueued: time.Now(),
		result:   make(chan Result, 1),
	}
}

// Enqueued is when the waiter joined the queue.
func (w *Waiter) Enqueued() time.Time {
	return w.enqueued
}

// Result delivers the outcome once. The channel is never closed.
func (w *Waiter) Result() <-chan Result {
	return w.result
}

// Wait blocks until the waiter settles or ctx is done. A ctx error leaves the
// waiter in its queue; callers must remove it themselves.
func (w *Waiter) Wait(ctx context.Context) (protocol.Reply, error) {
	select {
	case r := <-w.result:
		return r.Reply, r.Err

	case <-ctx.Done():
		return protocol.Reply{}, ctx.Err()
	}
}

// settle resolves the waiter, reporting false if it was already resolved.
func (w *Waiter) settle(r Result) bool {
	settled := false

	w.once.Do(func() {
		w.result <- r
		settled = true
	})

	return settled
}

// PendingQueue matches replies to requests strictly in the order the
// requests were enqueued. The protocol has no request IDs, so the oldest
// unresolved waiter always owns the next reply.
type PendingQueue struct {
	mu      sync.Mutex
	waiters *list.List
	index   map[*Waiter]*list.Element
}

func NewPendingQueue() *PendingQueue {
	return &PendingQueue{
		waiters: list.New(),
		index:   make(map[*Waiter]*list.Element),
	}
}

func (q *PendingQueue) Enqueue() *Waiter {
	q.mu.Lock()
	defer q.mu.Unlock()

	w := newWaiter()
	q.index[w] = q.waiters.PushBack(w)

	return w
}

// MarkSent records that the request of w is about to reach the wire. Only a
// sent request can own a reply.
func (q *PendingQueue) MarkSent(w *Waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()

	w.sent = true
}

// ResolveNext settles the oldest waiter with the decoded datagram. A datagram
// that fails to decode still consumes the waiter, which then carries
// protocol.ErrMalformedReply. While the oldest request is still waiting for
// its write slot the datagram can not be its reply, so it is refused and the
// waiter stays at the head.
func (q *PendingQueue) ResolveNext(data []byte) error {
	w, err := q.popSent()
	if err != nil {
		return err
	}

	reply, err := protocol.Decode(data)
	w.settle(Result{Reply: reply, Err: err})

	return nil
}

// Remove takes w out of the queue and settles it with err. It reports
// whether w was the head of the queue; removing any other waiter shifts
// every later reply onto the wrong request, so callers only do that when
// the queue is being torn down.
func (q *PendingQueue) Remove(w *Waiter, err error) (wasHead bool) {
	q.mu.Lock()
	el, ok := q.index[w]
	if ok {
		wasHead = q.waiters.Front() == el
		q.waiters.Remove(el)
		delete(q.index, w)
	}
	q.mu.Unlock()

	w.settle(Result{Err: err})

	return wasHead
}

// CancelAll settles every outstanding waiter with err.
func (q *PendingQueue) CancelAll(err error) {
	q.mu.Lock()
	waiters := make([]*Waiter, 0, q.waiters.Len())
	for el := q.waiters.Front(); el != nil; el = el.Next() {
		waiters = append(waiters, el.Value.(*Waiter))
	}
	q.waiters.Init()
	q.index = make(map[*Waiter]*list.Element)
	q.mu.Unlock()

	for _, w := range waiters {
		w.settle(Result{Err: err})
	}
}

func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters.Len()
}

func (q *PendingQueue) popSent() (*Waiter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	el := q.waiters.Front()
	if el == nil {
		return nil, ErrUnexpectedReply
	}

	w := el.Value.(*Waiter)
	if !w.sent {
		return nil, fmt.Errorf("oldest request not sent yet: %w", ErrUnexpectedReply)
	}

	q.waiters.Remove(el)
	delete(q.index, w)

	return w, nil
}

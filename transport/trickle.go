package transport

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMinInterval is the flood protection interval AniDB enforces between
// two requests of one client.
const DefaultMinInterval = 4 * time.Second

// Handle is a write that has been given a slot by a Trickle.
type Handle struct {
	at    time.Time
	write func() error

	mu        sync.Mutex
	fired     bool
	cancelled bool
	err       error
	done      chan struct{}
}

// At is the time the write was scheduled for.
func (h *Handle) At() time.Time {
	return h.at
}

// Cancel prevents the write from happening. It returns false if the write
// already happened.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fired {
		return false
	}

	if !h.cancelled {
		h.cancelled = true
		close(h.done)
	}

	return true
}

// Fired returns true once the write has been handed to the transport.
func (h *Handle) Fired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}

// Done is closed when the write has either run or been cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the error of the write, if it ran.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// claim marks the handle as fired unless it was cancelled first.
func (h *Handle) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled {
		return false
	}

	h.fired = true
	return true
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()

	close(h.done)
}

// Trickle spaces writes at least interval apart. Each Schedule call reserves
// the next free slot, so concurrent callers never compete for the same one,
// and a single runner goroutine performs the writes in slot order.
type Trickle struct {
	interval time.Duration

	mu      sync.Mutex
	last    time.Time
	queue   []*Handle
	wake    chan struct{}
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup

	log *zap.Logger
}

func NewTrickle(interval time.Duration, log *zap.Logger) *Trickle {
	if log == nil {
		log = zap.NewNop()
	}

	t := &Trickle{
		interval: interval,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		log:      log,
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run()
	}()

	return t
}

func (t *Trickle) Interval() time.Duration {
	return t.interval
}

// Schedule reserves a slot for write and returns its handle. The write runs
// immediately when the previous slot is at least an interval old, otherwise
// it is deferred until the reserved slot. After Close the returned handle is
// already cancelled.
func (t *Trickle) Schedule(write func() error) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	slot := now

	if !t.last.IsZero() {
		if diff := now.Sub(t.last); diff < t.interval {
			slot = now.Add(t.interval - diff)
		}
	}

	h := &Handle{
		at:    slot,
		write: write,
		done:  make(chan struct{}),
	}

	if t.stopped {
		h.Cancel()
		return h
	}

	t.last = slot
	t.queue = append(t.queue, h)

	select {
	case t.wake <- struct{}{}:
	default:
	}

	return h
}

// Close stops the runner and cancels every write that has not happened yet.
func (t *Trickle) Close() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	t.stopped = true
	pending := t.queue
	t.queue = nil
	close(t.stop)
	t.mu.Unlock()

	for _, h := range pending {
		h.Cancel()
	}

	t.wg.Wait()
}

func (t *Trickle) next() *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.queue) == 0 {
		return nil
	}

	h := t.queue[0]
	t.queue[0] = nil
	t.queue = t.queue[1:]
	return h
}

func (t *Trickle) run() {
	var lastDone time.Time

	for {
		h := t.next()
		if h == nil {
			select {
			case <-t.stop:
				return
			case <-t.wake:
				continue
			}
		}

		// The reserved slot, but never closer than an interval to the end of
		// the previous write.
		at := h.at
		if !lastDone.IsZero() && lastDone.Add(t.interval).After(at) {
			at = lastDone.Add(t.interval)
		}

		if wait := time.Until(at); wait > 0 {
			timer := time.NewTimer(wait)

			select {
			case <-t.stop:
				timer.Stop()
				h.Cancel()
				return

			case <-h.done:
				// Cancelled while waiting, the slot stays consumed.
				timer.Stop()
				continue

			case <-timer.C:
			}
		}

		select {
		case <-t.stop:
			h.Cancel()
			return
		default:
		}

		if !h.claim() {
			continue
		}

		err := h.write()
		if err != nil {
			t.log.Warn("Scheduled write failed", zap.Error(err))
		}

		lastDone = time.Now()
		h.finish(err)
	}
}

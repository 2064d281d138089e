package transport_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/anidb/protocol"
	"github.com/luma/anidb/transport"
)

var _ = Describe("PendingQueue", func() {
	var queue *transport.PendingQueue

	BeforeEach(func() {
		queue = transport.NewPendingQueue()
	})

	enqueueSent := func() *transport.Waiter {
		w := queue.Enqueue()
		queue.MarkSent(w)
		return w
	}

	It("resolves waiters in the order they were enqueued", func() {
		waiters := []*transport.Waiter{enqueueSent(), enqueueSent(), enqueueSent()}
		Expect(queue.Len()).To(Equal(3))

		Expect(queue.ResolveNext([]byte("300 PONG"))).To(Succeed())
		Expect(queue.ResolveNext([]byte("998 VERSION\n1"))).To(Succeed())
		Expect(queue.ResolveNext([]byte("208 UPTIME\n2"))).To(Succeed())
		Expect(queue.Len()).To(Equal(0))

		codes := []protocol.Status{protocol.StatusPong, protocol.StatusVersion, protocol.StatusUptime}
		for i, w := range waiters {
			reply, err := w.Wait(context.Background())
			Expect(err).To(Succeed())
			Expect(reply.Code).To(Equal(codes[i]))
		}
	})

	It("returns ErrUnexpectedReply when nothing is outstanding", func() {
		Expect(queue.ResolveNext([]byte("300 PONG"))).To(MatchError(transport.ErrUnexpectedReply))
	})

	It("keeps an unsent head and refuses the datagram", func() {
		w := queue.Enqueue()

		Expect(queue.ResolveNext([]byte("300 PONG"))).To(MatchError(transport.ErrUnexpectedReply))
		Expect(queue.Len()).To(Equal(1))
		Consistently(w.Result()).ShouldNot(Receive())

		queue.MarkSent(w)
		Expect(queue.ResolveNext([]byte("998 VERSION\n1"))).To(Succeed())

		reply, err := w.Wait(context.Background())
		Expect(err).To(Succeed())
		Expect(reply.Code).To(Equal(protocol.StatusVersion))
	})

	It("settles the waiter with the decode error of a malformed reply", func() {
		w := enqueueSent()
		Expect(queue.ResolveNext([]byte("garbage"))).To(Succeed())

		_, err := w.Wait(context.Background())
		Expect(errors.Is(err, protocol.ErrMalformedReply)).To(BeTrue())
	})

	It("removes a timed out head without disturbing later waiters", func() {
		first := enqueueSent()
		second := enqueueSent()

		Expect(queue.Remove(first, transport.ErrTimeout)).To(BeTrue())

		_, err := first.Wait(context.Background())
		Expect(err).To(MatchError(transport.ErrTimeout))

		Expect(queue.ResolveNext([]byte("300 PONG"))).To(Succeed())
		reply, err := second.Wait(context.Background())
		Expect(err).To(Succeed())
		Expect(reply.Code).To(Equal(protocol.StatusPong))
	})

	It("reports when a removed waiter was not the head", func() {
		queue.Enqueue()
		second := queue.Enqueue()

		Expect(queue.Remove(second, transport.ErrTimeout)).To(BeFalse())
		Expect(queue.Len()).To(Equal(1))
	})

	It("settles a waiter only once", func() {
		w := enqueueSent()
		Expect(queue.ResolveNext([]byte("300 PONG"))).To(Succeed())
		queue.Remove(w, transport.ErrTimeout)

		reply, err := w.Wait(context.Background())
		Expect(err).To(Succeed())
		Expect(reply.Code).To(Equal(protocol.StatusPong))
		Consistently(w.Result()).ShouldNot(Receive())
	})

	It("cancels every waiter with CancelAll", func() {
		a := queue.Enqueue()
		b := queue.Enqueue()

		queue.CancelAll(transport.ErrTransportClosed)
		Expect(queue.Len()).To(Equal(0))

		for _, w := range []*transport.Waiter{a, b} {
			_, err := w.Wait(context.Background())
			Expect(err).To(MatchError(transport.ErrTransportClosed))
		}

		Expect(queue.ResolveNext([]byte("300 PONG"))).To(MatchError(transport.ErrUnexpectedReply))
	})

	It("stops waiting when the context is done", func() {
		w := queue.Enqueue()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := w.Wait(ctx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(queue.Len()).To(Equal(1))
		Expect(w.Enqueued()).NotTo(BeZero())
	})
})

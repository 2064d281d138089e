package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/zap"
)

// MaxDatagramSize is the largest datagram the API server sends.
const MaxDatagramSize = 1400

var ErrNoAddress = errors.New("Host did not resolve to any address")

// UDP owns the single socket of a client. It writes requests through a
// Trickle and hands every datagram it reads to a PendingQueue.
type UDP struct {
	conn   net.PacketConn
	remote *net.UDPAddr

	trickle *Trickle
	pending *PendingQueue

	// mu makes enqueueing a waiter and scheduling its write one step
	mu     sync.Mutex
	closed bool

	loopWaiter sync.WaitGroup

	log   *zap.Logger
	trace bool
}

// Dial resolves the API server and binds the local socket.
func Dial(ctx context.Context, options Options) (*UDP, error) {
	options = options.withDefaults()

	remote, err := resolve(ctx, options.Resolver, options.Host, options.Port)
	if err != nil {
		return nil, err
	}

	network := "udp4"
	if remote.IP.To4() == nil {
		network = "udp6"
	}

	local := net.JoinHostPort("", strconv.Itoa(options.LocalPort))

	var conn net.PacketConn
	if options.Reuseport {
		conn, err = reuseport.ListenPacket(network, local)
	} else {
		conn, err = net.ListenPacket(network, local)
	}

	if err != nil {
		return nil, fmt.Errorf("Failed to bind %s: %w", local, err)
	}

	return NewUDP(conn, remote, options), nil
}

// NewUDP wraps an already bound socket and starts reading from it.
func NewUDP(conn net.PacketConn, remote *net.UDPAddr, options Options) *UDP {
	options = options.withDefaults()

	u := &UDP{
		conn:    conn,
		remote:  remote,
		trickle: NewTrickle(options.MinInterval, options.Log.Named("trickle")),
		pending: NewPendingQueue(),
		log:     options.Log,
		trace:   options.Trace,
	}

	u.log.Info("Bound socket",
		zap.String("local", conn.LocalAddr().String()),
		zap.String("remote", remote.String()),
		zap.Duration("minInterval", u.trickle.Interval()))

	u.loopWaiter.Add(1)
	go func() {
		defer u.loopWaiter.Done()
		u.ReadLoop()
	}()

	return u
}

func resolve(ctx context.Context, resolver Resolver, host string, port int) (*net.UDPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("Failed to resolve %s: %w", host, err)
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("Failed to resolve %s: %w", host, ErrNoAddress)
	}

	// Prefer IPv4, the API server has historically only answered there
	for _, addr := range addrs {
		if addr.IP.To4() != nil {
			return &net.UDPAddr{IP: addr.IP, Port: port, Zone: addr.Zone}, nil
		}
	}

	return &net.UDPAddr{IP: addrs[0].IP, Port: port, Zone: addrs[0].Zone}, nil
}

func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDP) RemoteAddr() net.Addr {
	return u.remote
}

// Pending is the number of requests waiting for a reply.
func (u *UDP) Pending() int {
	return u.pending.Len()
}

// Send enqueues a waiter for payload's reply and schedules the write. Both
// happen under one lock so the queue order always equals the write order.
func (u *UDP) Send(payload []byte) (*Waiter, *Handle, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil, nil, ErrTransportClosed
	}

	w := u.pending.Enqueue()
	h := u.trickle.Schedule(func() error {
		if u.trace {
			u.log.Debug(">", zap.ByteString("datagram", payload))
		}

		u.pending.MarkSent(w)
		if _, err := u.conn.WriteTo(payload, u.remote); err != nil {
			u.pending.Remove(w, fmt.Errorf("Failed to write request: %w", err))
			return err
		}

		return nil
	})

	return w, h, nil
}

// OnDatagram hands an inbound datagram to the oldest waiter.
func (u *UDP) OnDatagram(data []byte) {
	if u.trace {
		u.log.Debug("<", zap.ByteString("datagram", data))
	}

	if err := u.pending.ResolveNext(data); err != nil {
		u.log.Warn("Dropping datagram",
			zap.ByteString("datagram", data),
			zap.Error(err))
	}
}

// OnTimeout gives up on the exchange of w. See Abandon.
func (u *UDP) OnTimeout(w *Waiter, h *Handle) (sent bool) {
	return u.Abandon(w, h, ErrTimeout)
}

// Abandon cancels the write of h if it has not happened yet and settles w
// with err. It reports whether the request reached the wire, in which case
// its reply may still arrive later.
func (u *UDP) Abandon(w *Waiter, h *Handle, err error) (sent bool) {
	sent = !h.Cancel()

	if wasHead := u.pending.Remove(w, err); !wasHead && u.Pending() > 0 {
		u.log.Warn("Abandoned a request that was not the oldest outstanding one",
			zap.Int("pending", u.Pending()),
			zap.Duration("waited", time.Since(w.Enqueued())))
	}

	return sent
}

func (u *UDP) ReadLoop() {
	log := u.log.Named("readLoop")
	buf := make([]byte, 64*1024)

	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			if u.isClosed() || errors.Is(err, net.ErrClosed) {
				log.Info("Socket closed, exiting...")
			} else {
				log.Error("Failed to read datagram", zap.Error(err))
			}

			u.shutdown()
			return
		}

		if !sameAddr(addr, u.remote) {
			log.Warn("Ignoring datagram from unexpected peer",
				zap.String("peer", addr.String()))
			continue
		}

		if n > MaxDatagramSize {
			log.Warn("Datagram exceeds the protocol maximum", zap.Int("size", n))
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		u.OnDatagram(data)
	}
}

// Close stops writing, closes the socket and fails every outstanding request
// with ErrTransportClosed.
func (u *UDP) Close() error {
	err := u.shutdown()
	u.loopWaiter.Wait()
	return err
}

func (u *UDP) shutdown() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()

	u.trickle.Close()
	err := u.conn.Close()
	u.pending.CancelAll(ErrTransportClosed)

	return err
}

func (u *UDP) isClosed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

func sameAddr(addr net.Addr, remote *net.UDPAddr) bool {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return false
	}

	return udpAddr.Port == remote.Port && udpAddr.IP.Equal(remote.IP)
}

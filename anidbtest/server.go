// Package anidbtest runs a local stand-in for the API server so clients can
// be exercised over a real socket.
package anidbtest

import (
	"errors"
	"net"
	"sync"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/zap"

	"github.com/luma/anidb/protocol"
)

// Handler answers a request. Returning false drops it, as a lossy network
// would.
type Handler func(req protocol.Request) (reply protocol.Reply, ok bool)

type Server struct {
	conn    net.PacketConn
	handler Handler

	mu       sync.Mutex
	requests []protocol.Request
	repeats  map[protocol.Verb]time.Duration
	closed   bool

	loopWaiter sync.WaitGroup

	log *zap.Logger
}

// NewServer binds a loopback port and serves requests with handler until
// Close is called.
func NewServer(handler Handler, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := reuseport.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		conn:    conn,
		handler: handler,
		repeats: make(map[protocol.Verb]time.Duration),
		log:     log,
	}

	s.loopWaiter.Add(1)
	go func() {
		defer s.loopWaiter.Done()
		s.ReadLoop()
	}()

	return s, nil
}

func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Server) Host() string {
	return s.Addr().IP.String()
}

func (s *Server) Port() int {
	return s.Addr().Port
}

// Repeat sends the reply to the next request with verb a second time, after
// delay, as a network duplicating datagrams would.
func (s *Server) Repeat(verb protocol.Verb, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repeats[verb] = delay
}

// Requests returns every request received so far, in arrival order.
func (s *Server) Requests() []protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]protocol.Request(nil), s.requests...)
}

// Count returns how many requests with verb were received.
func (s *Server) Count(verb protocol.Verb) int {
	n := 0
	for _, req := range s.Requests() {
		if req.Verb == verb {
			n++
		}
	}

	return n
}

func (s *Server) ReadLoop() {
	log := s.log.Named("readLoop")
	buf := make([]byte, 64*1024)

	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if !s.isClosed() && !errors.Is(err, net.ErrClosed) {
				log.Error("Failed to read datagram", zap.Error(err))
			}

			return
		}

		req, err := protocol.ParseRequest(buf[:n])
		if err != nil {
			log.Warn("Failed to parse request", zap.ByteString("datagram", buf[:n]), zap.Error(err))
			continue
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		delay, repeat := s.repeats[req.Verb]
		delete(s.repeats, req.Verb)
		s.mu.Unlock()

		reply, ok := s.handler(req)
		if !ok {
			log.Debug("Dropping request", zap.Stringer("request", req))
			continue
		}

		data := protocol.EncodeReply(reply)
		if _, err := s.conn.WriteTo(data, addr); err != nil {
			log.Warn("Failed to write reply", zap.Stringer("reply", reply), zap.Error(err))
		}

		if repeat {
			time.AfterFunc(delay, func() {
				if _, err := s.conn.WriteTo(data, addr); err != nil && !s.isClosed() {
					log.Warn("Failed to repeat reply", zap.Stringer("reply", reply), zap.Error(err))
				}
			})
		}
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close()
	s.loopWaiter.Wait()
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

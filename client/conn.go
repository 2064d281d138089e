package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/anidb/protocol"
	"github.com/luma/anidb/transport"
)

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Conn is a session with the API server. It is safe for concurrent use, but
// only one exchange is ever outstanding: replies carry no request id and are
// matched to requests purely by order.
type Conn struct {
	opts Options

	// exchange is held from the first write of a request until its reply,
	// timeout or cancellation has been accounted for
	exchange chan struct{}

	mu          sync.Mutex
	udp         *transport.UDP
	session     string
	lastSession string
	encoding    string
	ban         *BannedError
	fatal       error

	log *zap.Logger
}

func New(opts Options) *Conn {
	opts = opts.withDefaults()

	return &Conn{
		opts:     opts,
		exchange: make(chan struct{}, 1),
		log:      opts.Log,
	}
}

// Connect binds the socket. Calling it on a connected client does nothing; a
// socket that went away underneath the client is replaced.
func (c *Conn) Connect(ctx context.Context) error {
	if c.connected() {
		return nil
	}

	udp, err := transport.Dial(ctx, c.opts.Transport)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.udp != nil && !errors.Is(c.fatal, ErrTransportClosed) {
		c.mu.Unlock()

		// Lost the race against another Connect
		return udp.Close()
	}

	stale := c.udp
	c.udp = udp
	if errors.Is(c.fatal, ErrTransportClosed) {
		c.fatal = nil
	}
	c.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	c.log.Info("Connected",
		zap.Stringer("local", udp.LocalAddr()),
		zap.Stringer("remote", udp.RemoteAddr()))
	return nil
}

func (c *Conn) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.udp != nil && !errors.Is(c.fatal, ErrTransportClosed)
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.udp == nil:
		return StateDisconnected
	case c.session != "":
		return StateAuthenticated
	default:
		return StateConnected
	}
}

func (c *Conn) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Encoding is the encoding last accepted by the server, empty if none was set.
func (c *Conn) Encoding() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoding
}

// Banned reports whether a ban is in effect and the reason the server gave.
func (c *Conn) Banned() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ban == nil {
		return "", false
	}

	return c.ban.Reason, true
}

// ClearBan lets requests through again. The server's cooldown is on the order
// of an hour and the client never lifts a ban by itself.
func (c *Conn) ClearBan() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ban != nil {
		c.log.Info("Clearing ban", zap.String("reason", c.ban.Reason))
	}

	c.ban = nil
}

// Login authenticates and stores the session the server hands out. It is
// never retried automatically.
func (c *Conn) Login(ctx context.Context, user, pass string) error {
	req := protocol.NewRequest(protocol.AUTH,
		protocol.Param{Key: "user", Value: user},
		protocol.Param{Key: "pass", Value: pass},
		protocol.Param{Key: "protover", Value: strconv.Itoa(ProtocolVersion)},
		protocol.Param{Key: "client", Value: c.opts.ClientName},
		protocol.Param{Key: "clientver", Value: strconv.Itoa(c.opts.ClientVersion)},
	)

	if c.opts.Encoding != "" {
		req.Params = req.Params.With("enc", c.opts.Encoding)
	}

	reply, err := c.roundTrip(ctx, req, false)
	if err != nil {
		return err
	}

	switch reply.Code {
	case protocol.StatusLoginAccepted, protocol.StatusLoginAcceptedNewVersion:
		fields := strings.Fields(reply.Line(0))
		if len(fields) == 0 {
			return fmt.Errorf("Login reply carries no session: %w", ErrMalformedReply)
		}

		c.setSession(fields[0])

		if c.opts.Encoding != "" {
			c.mu.Lock()
			c.encoding = c.opts.Encoding
			c.mu.Unlock()
		}

		if reply.Code == protocol.StatusLoginAcceptedNewVersion {
			c.log.Warn("A newer client version is available",
				zap.String("client", c.opts.ClientName),
				zap.Int("clientVersion", c.opts.ClientVersion))
		}

		c.log.Info("Logged in", zap.String("user", user))
		return nil

	case protocol.StatusLoginFailed:
		return ErrAuthenticationFailed

	default:
		return unexpectedStatus(protocol.AUTH, reply)
	}
}

// Logout ends the session. Logging out again is a success as long as the
// client ever had a session: the server answers the stale one with 403.
func (c *Conn) Logout(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	if session == "" {
		session = c.lastSession
	}
	c.mu.Unlock()

	if session == "" {
		return ErrNotAuthenticated
	}

	reply, err := c.roundTrip(ctx, protocol.NewRequest(protocol.LOGOUT).WithSession(session), false)
	if err != nil {
		return err
	}

	if !reply.Code.In(protocol.StatusLoggedOut, protocol.StatusNotLoggedIn) {
		return unexpectedStatus(protocol.LOGOUT, reply)
	}

	c.clearSession(session)
	c.log.Info("Logged out", zap.Int("code", int(reply.Code)))
	return nil
}

// SetEncoding asks the server to use name for every following reply. A
// refusal is fatal: nothing sent afterwards could be decoded reliably.
func (c *Conn) SetEncoding(ctx context.Context, name string) error {
	req := protocol.NewRequest(protocol.ENCODING, protocol.Param{Key: "name", Value: name})
	if session := c.Session(); session != "" {
		req = req.WithSession(session)
	}

	reply, err := c.roundTrip(ctx, req, false)
	if err != nil {
		return err
	}

	switch reply.Code {
	case protocol.StatusEncodingChanged:
		c.mu.Lock()
		c.encoding = name
		c.mu.Unlock()
		return nil

	case protocol.StatusEncodingNotSupported:
		c.latch(ErrEncodingUnsupported)
		return fmt.Errorf("%s: %w", name, ErrEncodingUnsupported)

	default:
		return unexpectedStatus(protocol.ENCODING, reply)
	}
}

func (c *Conn) Ping(ctx context.Context) error {
	reply, err := c.roundTrip(ctx, protocol.NewRequest(protocol.PING), true)
	if err != nil {
		return err
	}

	if reply.Code != protocol.StatusPong {
		return unexpectedStatus(protocol.PING, reply)
	}

	return nil
}

// Version returns the server's version string.
func (c *Conn) Version(ctx context.Context) (string, error) {
	reply, err := c.roundTrip(ctx, protocol.NewRequest(protocol.VERSION), true)
	if err != nil {
		return "", err
	}

	if reply.Code != protocol.StatusVersion {
		return "", unexpectedStatus(protocol.VERSION, reply)
	}

	version := strings.TrimSpace(reply.Payload())
	if version == "" {
		return "", fmt.Errorf("Version reply carries no version: %w", ErrMalformedReply)
	}

	return version, nil
}

// Uptime returns how long the server has been running.
func (c *Conn) Uptime(ctx context.Context) (time.Duration, error) {
	session := c.Session()
	if session == "" {
		return 0, ErrNotAuthenticated
	}

	reply, err := c.roundTrip(ctx, protocol.NewRequest(protocol.UPTIME).WithSession(session), true)
	if err != nil {
		return 0, err
	}

	if reply.Code != protocol.StatusUptime {
		return 0, unexpectedStatus(protocol.UPTIME, reply)
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(reply.Payload()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("Uptime reply carries no number: %w", ErrMalformedReply)
	}

	return time.Duration(ms) * time.Millisecond, nil
}

// LookupByHash looks a file up by its size and ed2k hash. A file the server
// does not know yields ErrNotFound.
func (c *Conn) LookupByHash(ctx context.Context, size int64, ed2k string) (*File, error) {
	session := c.Session()
	if session == "" {
		return nil, ErrNotAuthenticated
	}

	ed2k = strings.ToLower(ed2k)

	req := protocol.NewRequest(protocol.FILE,
		protocol.Param{Key: "size", Value: strconv.FormatInt(size, 10)},
		protocol.Param{Key: "ed2k", Value: ed2k},
		protocol.Param{Key: "fmask", Value: FileMask},
		protocol.Param{Key: "amask", Value: AnimeMask},
	).WithSession(session)

	reply, err := c.roundTrip(ctx, req, true)
	if err != nil {
		return nil, err
	}

	switch reply.Code {
	case protocol.StatusFile:
		f := decodeFile(reply)

		// A reply that belongs to an earlier, timed out lookup would otherwise
		// be attributed to this file
		if f.Size != size || f.ED2K != ed2k {
			return nil, fmt.Errorf("Asked for %d/%s, got %d/%s: %w",
				size, ed2k, f.Size, f.ED2K, ErrUnexpectedReply)
		}

		return f, nil

	case protocol.StatusNoSuchFile:
		return nil, fmt.Errorf("%d/%s: %w", size, ed2k, ErrNotFound)

	default:
		return nil, unexpectedStatus(protocol.FILE, reply)
	}
}

// Close logs out if a session is open and releases the socket.
func (c *Conn) Close(ctx context.Context) error {
	var err error

	if _, unusable := c.usable(); unusable == nil && c.State() == StateAuthenticated {
		err = multierr.Append(err, c.Logout(ctx))
	}

	c.mu.Lock()
	udp := c.udp
	c.udp = nil
	c.session = ""
	c.mu.Unlock()

	if udp != nil {
		err = multierr.Append(err, udp.Close())
	}

	return err
}

func (c *Conn) setSession(session string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = session
	c.lastSession = ""
}

func (c *Conn) clearSession(session string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == session {
		c.session = ""
	}

	c.lastSession = session
}

func (c *Conn) latch(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fatal == nil {
		c.fatal = err
		c.log.Error("Client can not continue", zap.Error(err))
	}
}

// usable returns the transport if requests may be sent right now.
func (c *Conn) usable() (*transport.UDP, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ban != nil {
		return nil, c.ban
	}

	if c.udp == nil {
		return nil, ErrNotConnected
	}

	if c.fatal != nil {
		return nil, c.fatal
	}

	return c.udp, nil
}

// roundTrip sends req and waits for its reply. Timeouts are retried only when
// idempotent is set. Codes every verb may receive are handled here.
func (c *Conn) roundTrip(ctx context.Context, req protocol.Request, idempotent bool) (protocol.Reply, error) {
	if _, err := c.usable(); err != nil {
		return protocol.Reply{}, err
	}

	select {
	case c.exchange <- struct{}{}:
	case <-ctx.Done():
		return protocol.Reply{}, ctx.Err()
	}
	defer func() { <-c.exchange }()

	attempts := 1
	if idempotent {
		attempts += c.opts.Retries
	}

	payload := protocol.Encode(req)
	log := c.log.With(zap.Stringer("request", req))

	for attempt := 1; ; attempt++ {
		// The state may have changed while waiting for the exchange
		udp, err := c.usable()
		if err != nil {
			return protocol.Reply{}, err
		}

		reply, err := c.exchangeOnce(ctx, udp, payload, log)
		if errors.Is(err, ErrTimeout) && attempt < attempts {
			log.Info("Request timed out, retrying", zap.Int("attempt", attempt))
			continue
		}

		if err != nil {
			if errors.Is(err, ErrTransportClosed) {
				c.onTransportClosed(udp)
			}

			return protocol.Reply{}, err
		}

		return c.checkReply(req, reply)
	}
}

func (c *Conn) exchangeOnce(ctx context.Context, udp *transport.UDP, payload []byte, log *zap.Logger) (protocol.Reply, error) {
	w, h, err := udp.Send(payload)
	if err != nil {
		return protocol.Reply{}, err
	}

	timer := time.NewTimer(time.Until(h.At().Add(c.opts.Timeout)))
	defer timer.Stop()

	select {
	case r := <-w.Result():
		// A waiter settled without its request on the wire must not let the
		// request go out later, its reply would belong to nobody
		h.Cancel()
		return r.Reply, r.Err

	case <-timer.C:
		if sent := udp.OnTimeout(w, h); sent {
			log.Warn("No reply in time, a late one may still arrive",
				zap.Duration("timeout", c.opts.Timeout),
				zap.Int("pending", udp.Pending()))
		}

	case <-ctx.Done():
		udp.Abandon(w, h, ctx.Err())
	}

	// w is settled now, possibly by a reply that raced the timeout
	r := <-w.Result()
	return r.Reply, r.Err
}

func (c *Conn) checkReply(req protocol.Request, reply protocol.Reply) (protocol.Reply, error) {
	switch reply.Code {
	case protocol.StatusBanned:
		reason := strings.TrimSpace(reply.Line(1))
		if reason == "" {
			reason = reply.Text
		}

		ban := &BannedError{Reason: reason}

		c.mu.Lock()
		c.ban = ban
		c.mu.Unlock()

		c.log.Error("Banned by the server",
			zap.Stringer("request", req),
			zap.String("reason", ban.Reason))

		return protocol.Reply{}, ban

	case protocol.StatusLoginFirst, protocol.StatusInvalidSession:
		if req.Session != "" {
			c.clearSession(req.Session)
		}

		return protocol.Reply{}, fmt.Errorf("%s got %s: %w", req.Verb, reply, ErrSessionRejected)

	case protocol.StatusUnknownCommand:
		return protocol.Reply{}, unexpectedStatus(req.Verb, reply)
	}

	return reply, nil
}

// onTransportClosed latches a socket that went away under the client. A
// deliberate Close has already detached it.
func (c *Conn) onTransportClosed(udp *transport.UDP) {
	c.mu.Lock()
	current := c.udp == udp
	c.mu.Unlock()

	if current {
		c.latch(ErrTransportClosed)
	}
}

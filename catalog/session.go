package catalog

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/anidb/client"
)

type Credentials struct {
	User string
	Pass string
}

// Session brackets a batch of lookups: Start connects, logs in and picks the
// reply encoding, Stop logs out and releases the socket. Lookups made through
// it log in again once when the server has expired the session.
type Session struct {
	conn     *client.Conn
	creds    Credentials
	encoding string

	// relogin keeps concurrent lookups from logging in more than once
	relogin sync.Mutex

	log *zap.Logger
}

// NewSession wraps conn. An empty encoding leaves the server default.
func NewSession(conn *client.Conn, creds Credentials, encoding string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}

	return &Session{
		conn:     conn,
		creds:    creds,
		encoding: encoding,
		log:      log,
	}
}

func (s *Session) Conn() *client.Conn {
	return s.conn
}

func (s *Session) Start(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return err
	}

	if err := s.login(ctx); err != nil {
		return multierr.Append(err, s.conn.Close(ctx))
	}

	s.log.Info("Session started", zap.String("user", s.creds.User))
	return nil
}

// LookupByHash asks the server about a file, logging in again first if the
// session was rejected.
func (s *Session) LookupByHash(ctx context.Context, size int64, ed2k string) (*client.File, error) {
	f, err := s.conn.LookupByHash(ctx, size, ed2k)
	if !errors.Is(err, client.ErrSessionRejected) && !errors.Is(err, client.ErrNotAuthenticated) {
		return f, err
	}

	if err := s.renew(ctx); err != nil {
		return nil, err
	}

	return s.conn.LookupByHash(ctx, size, ed2k)
}

func (s *Session) Stop(ctx context.Context) error {
	err := s.conn.Close(ctx)
	s.log.Info("Session stopped", zap.Error(err))
	return err
}

func (s *Session) renew(ctx context.Context) error {
	s.relogin.Lock()
	defer s.relogin.Unlock()

	if s.conn.State() == client.StateAuthenticated {
		return nil
	}

	s.log.Info("Session expired, logging in again", zap.String("user", s.creds.User))
	return s.login(ctx)
}

func (s *Session) login(ctx context.Context) error {
	if err := s.conn.Login(ctx, s.creds.User, s.creds.Pass); err != nil {
		return err
	}

	if s.encoding != "" {
		return s.conn.SetEncoding(ctx, s.encoding)
	}

	return nil
}

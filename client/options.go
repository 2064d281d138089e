package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/luma/anidb/transport"
)

const (
	DefaultClientName    = "openanidb"
	DefaultClientVersion = 2
	ProtocolVersion      = 3
	DefaultEncoding      = "UTF8"

	// DefaultTimeout is how long to wait for a reply once its request has
	// been written.
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is how often a read that timed out is sent again.
	DefaultRetries = 1
)

type Options struct {
	Transport transport.Options

	// ClientName and ClientVersion identify the client to the server, which
	// only accepts registered clients.
	ClientName    string
	ClientVersion int

	// Encoding is sent with AUTH when set, so the session starts out with it
	Encoding string

	// Timeout waiting for a reply, counted from the request's write slot
	Timeout time.Duration

	// Retries of an idempotent request after a timeout. Requests that change
	// session state are never retried automatically. Negative disables.
	Retries int

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ClientName == "" {
		o.ClientName = DefaultClientName
	}

	if o.ClientVersion == 0 {
		o.ClientVersion = DefaultClientVersion
	}

	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}

	if o.Retries == 0 {
		o.Retries = DefaultRetries
	} else if o.Retries < 0 {
		o.Retries = 0
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	if o.Transport.Log == nil {
		o.Transport.Log = o.Log.Named("transport")
	}

	return o
}

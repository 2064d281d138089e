package transport

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultHost = "api.anidb.info"
	DefaultPort = 9000
)

// Resolver turns the remote host name into addresses. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type Options struct {
	// Host of the API server
	Host string

	// Port of the API server
	Port int

	// LocalPort to bind, 0 picks an ephemeral port
	LocalPort int

	// Reuseport controls setting SO_REUSEPORT on the local socket
	Reuseport bool

	// MinInterval between two writes, DefaultMinInterval when zero
	MinInterval time.Duration

	// Trace will log every datagram. This is only useful in local debugging
	Trace bool

	Resolver Resolver

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = DefaultHost
	}

	if o.Port == 0 {
		o.Port = DefaultPort
	}

	if o.MinInterval == 0 {
		o.MinInterval = DefaultMinInterval
	}

	if o.Resolver == nil {
		o.Resolver = net.DefaultResolver
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}

package client

import (
	"errors"
	"fmt"

	"github.com/luma/anidb/protocol"
	"github.com/luma/anidb/transport"
)

var (
	ErrNotConnected         = errors.New("Client is not connected")
	ErrNotAuthenticated     = errors.New("Client is not logged in")
	ErrAuthenticationFailed = errors.New("Login failed")
	ErrSessionRejected      = errors.New("Server rejected the session")
	ErrEncodingUnsupported  = errors.New("Encoding not supported by the server")
	ErrNotFound             = errors.New("No such entry")

	ErrTimeout         = transport.ErrTimeout
	ErrUnexpectedReply = transport.ErrUnexpectedReply
	ErrTransportClosed = transport.ErrTransportClosed
	ErrMalformedReply  = protocol.ErrMalformedReply
)

// BannedError is returned while the server refuses to talk to this client.
type BannedError struct {
	Reason string
}

func (e *BannedError) Error() string {
	if e.Reason == "" {
		return "Banned by the server"
	}

	return "Banned by the server: " + e.Reason
}

// UnexpectedStatusError is a reply code the operation does not know how to
// interpret.
type UnexpectedStatusError struct {
	Verb protocol.Verb
	Code protocol.Status
	Text string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("Unexpected reply to %s: %d %s", e.Verb, e.Code, e.Text)
}

func unexpectedStatus(verb protocol.Verb, reply protocol.Reply) error {
	return &UnexpectedStatusError{Verb: verb, Code: reply.Code, Text: reply.Text}
}

// IsBanned reports whether err means the server banned the client.
func IsBanned(err error) bool {
	var banned *BannedError
	return errors.As(err, &banned)
}

// IsFatal reports whether err leaves the client unable to continue.
func IsFatal(err error) bool {
	return IsBanned(err) ||
		errors.Is(err, ErrEncodingUnsupported) ||
		errors.Is(err, ErrTransportClosed)
}

package protocol

import (
	"strings"
)

var (
	valueEscaper   = strings.NewReplacer("&", "&amp;", "\r\n", "<br />", "\n", "<br />")
	valueUnescaper = strings.NewReplacer("&amp;", "&", "<br />", "\n")
)

// Encode serialises r as a single datagram payload:
//
//   VERB
//   VERB k1=v1&k2=v2
//
// The session, when present, is appended as the last parameter. ParseRequest
// restores every value except those holding the literal text "<br />" or a
// "\r" ahead of a newline or at the end of the datagram: the wire format has
// no way to tell those apart from an escaped newline.
func Encode(r Request) []byte {
	params := r.Params
	if r.Session != "" {
		params = params.With(SessionKey, r.Session)
	}

	if len(params) == 0 {
		return []byte(r.Verb)
	}

	var b strings.Builder
	b.WriteString(string(r.Verb))
	b.WriteByte(' ')

	for i, kv := range params {
		if i > 0 {
			b.WriteByte('&')
		}

		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(valueEscaper.Replace(kv.Value))
	}

	return []byte(b.String())
}

// EncodeRequest is Encode for callers holding the pieces of a request.
func EncodeRequest(verb Verb, params Params, session string) []byte {
	return Encode(Request{Verb: verb, Params: params, Session: session})
}

// EncodeReply serialises a server reply. Only servers (and tests standing in
// for one) need this.
func EncodeReply(r Reply) []byte {
	return []byte(r.String())
}

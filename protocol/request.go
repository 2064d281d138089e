package protocol

// SessionKey is the parameter carrying the session token.
const SessionKey = "s"

type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list. Keys are unique; the order is the
// order in which they were added, which keeps encoding deterministic.
type Params []Param

// With returns a copy of p with key set to value. An existing key keeps its
// position.
func (p Params) With(key, value string) Params {
	out := make(Params, len(p), len(p)+1)
	copy(out, p)

	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}

	return append(out, Param{Key: key, Value: value})
}

func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}

	return "", false
}

// Map flattens the parameters, dropping their order.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, kv := range p {
		m[kv.Key] = kv.Value
	}

	return m
}

type Request struct {
	Verb    Verb
	Params  Params
	Session string
}

func NewRequest(verb Verb, params ...Param) Request {
	var p Params
	for _, kv := range params {
		p = p.With(kv.Key, kv.Value)
	}

	return Request{Verb: verb, Params: p}
}

// WithSession returns a copy of r that carries the session token.
func (r Request) WithSession(session string) Request {
	r.Params = append(Params(nil), r.Params...)
	r.Session = session
	return r
}

func (r Request) String() string {
	return string(Encode(r.redacted()))
}

// redacted hides secrets so requests can be logged.
func (r Request) redacted() Request {
	out := Request{Verb: r.Verb, Params: append(Params(nil), r.Params...)}

	if _, ok := out.Params.Get("pass"); ok {
		out.Params = out.Params.With("pass", "***")
	}

	if r.Session != "" {
		out.Session = "***"
	}

	return out
}

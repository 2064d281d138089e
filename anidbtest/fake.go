package anidbtest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/luma/anidb/protocol"
)

// Fake keeps just enough server state to answer every verb the client
// speaks. Its Handle method is a Handler.
type Fake struct {
	mu sync.Mutex

	users     map[string]string
	files     map[string]string
	encodings map[string]bool
	sessions  map[string]string
	drops     map[protocol.Verb]int
	answers   map[protocol.Verb]protocol.Reply

	banReason  string
	newVersion bool
	version    string
	started    time.Time
	nextID     int
}

func NewFake() *Fake {
	return &Fake{
		users:     make(map[string]string),
		files:     make(map[string]string),
		encodings: map[string]bool{"UTF8": true, "ASCII": true},
		sessions:  make(map[string]string),
		drops:     make(map[protocol.Verb]int),
		answers:   make(map[protocol.Verb]protocol.Reply),
		version:   "0.03.730 (2008-11-12)",
		started:   time.Now(),
	}
}

func (f *Fake) AddUser(user, pass string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.users[user] = pass
	return f
}

// AddFile registers a file. fields is the payload line of its FILE reply,
// without the delimiters.
func (f *Fake) AddFile(size int64, ed2k string, fields ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[fileKey(strconv.FormatInt(size, 10), ed2k)] = strings.Join(fields, protocol.DefaultFieldDelimiter)
	return f
}

// Ban makes every following request get a 555.
func (f *Fake) Ban(reason string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.banReason = reason
	return f
}

// Drop swallows the next n requests with verb.
func (f *Fake) Drop(verb protocol.Verb, n int) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.drops[verb] += n
	return f
}

// Answer makes the next request with verb get reply, whatever its state.
func (f *Fake) Answer(verb protocol.Verb, reply protocol.Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.answers[verb] = reply
	return f
}

// AnnounceNewVersion makes logins answer 201 instead of 200.
func (f *Fake) AnnounceNewVersion() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.newVersion = true
	return f
}

// Sessions is the number of sessions currently open.
func (f *Fake) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// ExpireSessions forgets every session, as the server does after a while.
func (f *Fake) ExpireSessions() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions = make(map[string]string)
}

func (f *Fake) Handle(req protocol.Request) (protocol.Reply, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.drops[req.Verb] > 0 {
		f.drops[req.Verb]--
		return protocol.Reply{}, false
	}

	if r, ok := f.answers[req.Verb]; ok {
		delete(f.answers, req.Verb)
		return r, true
	}

	if f.banReason != "" {
		return reply(protocol.StatusBanned, "BANNED", f.banReason), true
	}

	switch req.Verb {
	case protocol.PING:
		return reply(protocol.StatusPong, "PONG"), true

	case protocol.VERSION:
		return reply(protocol.StatusVersion, "VERSION", f.version), true

	case protocol.AUTH:
		return f.auth(req), true

	case protocol.LOGOUT:
		if _, ok := f.sessions[req.Session]; !ok {
			return reply(protocol.StatusNotLoggedIn, "NOT LOGGED IN"), true
		}

		delete(f.sessions, req.Session)
		return reply(protocol.StatusLoggedOut, "LOGGED OUT"), true

	case protocol.ENCODING:
		name, _ := req.Params.Get("name")
		if !f.encodings[strings.ToUpper(name)] {
			return reply(protocol.StatusEncodingNotSupported, "ENCODING NOT SUPPORTED"), true
		}

		return reply(protocol.StatusEncodingChanged, "ENCODING CHANGED"), true

	case protocol.UPTIME:
		if r, ok := f.checkSession(req); !ok {
			return r, true
		}

		ms := time.Since(f.started).Milliseconds()
		return reply(protocol.StatusUptime, "UPTIME", strconv.FormatInt(ms, 10)), true

	case protocol.FILE:
		if r, ok := f.checkSession(req); !ok {
			return r, true
		}

		size, _ := req.Params.Get("size")
		ed2k, _ := req.Params.Get("ed2k")

		line, ok := f.files[fileKey(size, ed2k)]
		if !ok {
			return reply(protocol.StatusNoSuchFile, "NO SUCH FILE"), true
		}

		return reply(protocol.StatusFile, "FILE", line), true

	default:
		return reply(protocol.StatusUnknownCommand, "UNKNOWN COMMAND"), true
	}
}

func (f *Fake) auth(req protocol.Request) protocol.Reply {
	user, _ := req.Params.Get("user")
	pass, _ := req.Params.Get("pass")

	if expected, ok := f.users[user]; !ok || expected != pass {
		return reply(protocol.StatusLoginFailed, "LOGIN FAILED")
	}

	f.nextID++
	session := fmt.Sprintf("s%04d", f.nextID)
	f.sessions[session] = user

	if f.newVersion {
		return reply(protocol.StatusLoginAcceptedNewVersion, session+" LOGIN ACCEPTED - NEW VERSION AVAILABLE")
	}

	return reply(protocol.StatusLoginAccepted, session+" LOGIN ACCEPTED")
}

func (f *Fake) checkSession(req protocol.Request) (protocol.Reply, bool) {
	if req.Session == "" {
		return reply(protocol.StatusLoginFirst, "LOGIN FIRST"), false
	}

	if _, ok := f.sessions[req.Session]; !ok {
		return reply(protocol.StatusInvalidSession, "INVALID SESSION"), false
	}

	return protocol.Reply{}, true
}

func reply(code protocol.Status, lines ...string) protocol.Reply {
	return protocol.Reply{Code: code, Text: strings.Join(lines, "\n")}
}

func fileKey(size, ed2k string) string {
	return size + "/" + strings.ToLower(ed2k)
}

package protocol

// This package implements parsing and serialising payloads for the AniDB UDP
// API, the protocol the client uses to identify files against the AniDB
// catalog.
//
// - `Verb` - A client instruction to the server (e.g. 'AUTH').
// - `Request` - A verb plus its parameters, sent as one datagram.
// - `Reply` - A server datagram answering exactly one request.
//
// === General Syntax
//
// - one request per datagram, one reply per datagram
// - requests are ASCII, `VERB` or `VERB key1=val1&key2=val2`
// - parameter values escape '&' as `&amp;` and newlines as `<br />`
// - the session token travels as the `s` parameter
// - replies are `CODE TEXT`, CODE being a three digit status
// - TEXT may hold several `\n` separated lines, payload lines are `|` delimited
//
// There are no request IDs. Replies come back in the order requests were
// sent and the client matches them purely by that order, so a client must
// never have more than one exchange in flight.
//
// === Flood control
//
// The server expects at least 4 seconds between requests from one client,
// and bans clients that ignore this for roughly an hour:
//
//  ```
//    > PING
//    < 555 BANNED
//    < <reason>
//  ```
//
// === AUTH
//
//  ```
//    > AUTH user=<user>&pass=<pass>&protover=3&client=<name>&clientver=<n>
//    < 200 <session> LOGIN ACCEPTED
//    < 201 <session> LOGIN ACCEPTED - NEW VERSION AVAILABLE
//    < 500 LOGIN FAILED
//  ```
//
// === LOGOUT
//
//  ```
//    > LOGOUT s=<session>
//    < 203 LOGGED OUT
//    < 403 NOT LOGGED IN
//  ```
//
// === ENCODING
//
//  ```
//    > ENCODING name=UTF8
//    < 219 ENCODING CHANGED
//    < 519 ENCODING NOT SUPPORTED
//  ```
//
// === PING, VERSION, UPTIME
//
//  ```
//    > PING
//    < 300 PONG
//
//    > VERSION
//    < 998 VERSION
//    < <server version>
//
//    > UPTIME s=<session>
//    < 208 UPTIME
//    < <milliseconds>
//  ```
//
// === FILE
//
//  ```
//    > FILE size=<bytes>&ed2k=<hash>&fmask=<hex>&amask=<hex>&s=<session>
//    < 220 FILE
//    < <fid>|<field>|<field>...
//    < 320 NO SUCH FILE
//  ```
//
// The fields present on the payload line, and their order, are selected by
// the fmask and amask bits. The file id always comes first.
//
// === Session errors
//
// Any request needing a session can be answered with `501 LOGIN FIRST` or
// `506 INVALID SESSION`, after which the session must be considered gone.
//

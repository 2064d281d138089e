package protocol

type Verb string

const (
	AUTH     Verb = "AUTH"
	LOGOUT   Verb = "LOGOUT"
	ENCODING Verb = "ENCODING"
	PING     Verb = "PING"
	VERSION  Verb = "VERSION"
	UPTIME   Verb = "UPTIME"
	FILE     Verb = "FILE"
)

// Status is the three digit code leading every server reply.
type Status int

const (
	StatusLoginAccepted           Status = 200
	StatusLoginAcceptedNewVersion Status = 201
	StatusLoggedOut               Status = 203
	StatusUptime                  Status = 208
	StatusEncodingChanged         Status = 219
	StatusFile                    Status = 220
	StatusPong                    Status = 300
	StatusNoSuchFile              Status = 320
	StatusNotLoggedIn             Status = 403
	StatusLoginFailed             Status = 500
	StatusLoginFirst              Status = 501
	StatusInvalidSession          Status = 506
	StatusEncodingNotSupported    Status = 519
	StatusBanned                  Status = 555
	StatusUnknownCommand          Status = 598
	StatusVersion                 Status = 998
)

// In reports whether s is one of codes.
func (s Status) In(codes ...Status) bool {
	for _, c := range codes {
		if s == c {
			return true
		}
	}

	return false
}

package protocol

import (
	"strconv"
	"strings"
)

// Reply is a decoded server datagram: `CODE TEXT`. TEXT may span several
// `\n` separated lines; the first is the human readable status.
type Reply struct {
	Code Status
	Text string
}

func (r Reply) String() string {
	return strconv.Itoa(int(r.Code)) + " " + r.Text
}

func (r Reply) Lines() []string {
	return strings.Split(r.Text, "\n")
}

// Line returns the i-th line of the text, or "" when there is none.
func (r Reply) Line(i int) string {
	lines := r.Lines()
	if i < 0 || i >= len(lines) {
		return ""
	}

	return lines[i]
}

// Payload returns everything after the status line.
func (r Reply) Payload() string {
	if i := strings.IndexByte(r.Text, '\n'); i >= 0 {
		return r.Text[i+1:]
	}

	return ""
}

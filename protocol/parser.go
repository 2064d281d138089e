package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultFieldDelimiter separates fields on a payload line.
const DefaultFieldDelimiter = "|"

var (
	ErrMalformedReply        = errors.New("Reply is malformed, expected a numeric code followed by a space")
	ErrRequestEmpty          = errors.New("Request is malformed, it is empty")
	ErrRequestMalformedParam = errors.New("Request is malformed, a parameter is missing its '='")
)

// Decode parses a server datagram into its status code and text.
func Decode(data []byte) (Reply, error) {
	data = RemoveTrailingNewline(data)

	sp := bytes.IndexByte(data, ' ')
	if sp <= 0 {
		return Reply{}, fmt.Errorf("Failed to parse '%s': %w", string(data), ErrMalformedReply)
	}

	rawCode := data[:sp]
	for _, c := range rawCode {
		if c < '0' || c > '9' {
			return Reply{}, fmt.Errorf("Failed to parse '%s': %w", string(data), ErrMalformedReply)
		}
	}

	code, err := strconv.Atoi(string(rawCode))
	if err != nil {
		return Reply{}, fmt.Errorf("Failed to parse '%s': %w", string(data), ErrMalformedReply)
	}

	return Reply{Code: Status(code), Text: string(data[sp+1:])}, nil
}

// DecodeFields selects line `line` of a multi-line reply text, splits it on
// delimiter and zips the pieces against keys. Surplus keys or pieces are
// dropped; deciding whether that is acceptable is up to the caller.
func DecodeFields(text string, line int, keys []string, delimiter string) map[string]string {
	if delimiter == "" {
		delimiter = DefaultFieldDelimiter
	}

	fields := make(map[string]string, len(keys))

	lines := strings.Split(text, "\n")
	if line < 0 || line >= len(lines) {
		return fields
	}

	pieces := strings.Split(lines[line], delimiter)
	for i := 0; i < len(keys) && i < len(pieces); i++ {
		fields[keys[i]] = pieces[i]
	}

	return fields
}

// ParseRequest is the inverse of Encode. The session parameter, if any, is
// lifted out of the parameter list into Request.Session.
func ParseRequest(data []byte) (Request, error) {
	data = RemoveTrailingNewline(data)
	if len(data) == 0 {
		return Request{}, ErrRequestEmpty
	}

	raw := string(data)

	verb, rawParams, hasParams := strings.Cut(raw, " ")
	req := Request{Verb: Verb(verb)}

	if !hasParams || rawParams == "" {
		return req, nil
	}

	for _, pair := range splitParams(rawParams) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return Request{}, fmt.Errorf("Failed to parse '%s': %w", raw, ErrRequestMalformedParam)
		}

		value = valueUnescaper.Replace(value)

		if key == SessionKey {
			req.Session = value
			continue
		}

		req.Params = req.Params.With(key, value)
	}

	return req, nil
}

// splitParams splits on the '&' separators, leaving escaped "&amp;"
// sequences inside their values.
func splitParams(raw string) []string {
	var (
		pairs []string
		start int
	)

	for i := 0; i < len(raw); i++ {
		if raw[i] != '&' || strings.HasPrefix(raw[i:], "&amp;") {
			continue
		}

		pairs = append(pairs, raw[start:i])
		start = i + 1
	}

	return append(pairs, raw[start:])
}

// RemoveTrailingNewline strips any trailing '\r' and '\n' bytes.
func RemoveTrailingNewline(data []byte) []byte {
	return bytes.TrimRight(data, "\r\n")
}

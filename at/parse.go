package at

import "strings"

// Response is a parsed modem reply.
type Response struct {
	// Echo is the command text echoed back by the modem, empty when echo
	// is off.
	Echo string
	// Lines holds the intermediate response blocks in order; nil when the
	// reply carried none.
	Lines []string
	// Success is true when the status text starts with OK.
	Success bool
}

// Parse splits a raw reply captured up to and including its terminal
// marker. It has no state and never fails: a reply without any terminator
// simply parses as unsuccessful.
//
// Replies have the shape
//
//	<echo>\r\r\n<line>\r\n\r\n<line>\r\n\r\nOK\r\n
//
// where both the echo and the lines are optional.
func Parse(raw []byte) *Response {
	msg := string(raw)
	resp := &Response{}

	if echo, rest, ok := strings.Cut(msg, EchoSeparator); ok {
		resp.Echo = echo
		msg = rest
	}

	if strings.Contains(msg, BlockSeparator) {
		blocks := strings.Split(msg, BlockSeparator)
		resp.Lines = blocks[:len(blocks)-1]
		msg = blocks[len(blocks)-1]
	}

	if status, _, ok := strings.Cut(msg, CRLF); ok {
		resp.Success = status == OK
	}
	return resp
}

// First returns the first response line that starts with prefix, with the
// prefix and surrounding blanks removed.
func (r *Response) First(prefix string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, line := range r.Lines {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// HasData reports whether the reply carried any response line.
func (r *Response) HasData() bool { return r != nil && len(r.Lines) > 0 }

package payload

import (
	"errors"
	"strconv"
	"strings"
)

// MultipleTopic is the topic suffix used when one message carries several
// records.
const MultipleTopic = "multiple"

// DownloadTopic is the topic suffix of export requests.
const DownloadTopic = "download"

// ErrEmptyPayload is returned by Decode for a message without user id.
var ErrEmptyPayload = errors.New("empty payload")

// Compose builds the message body "userid,<record>[,<record>...]".
func Compose(userID string, records ...*Record) string {
	parts := make([]string, 0, len(records)+1)
	parts = append(parts, userID)
	for _, r := range records {
		parts = append(parts, r.Serialize())
	}
	return strings.Join(parts, ",")
}

// Topic returns prefix followed by the identifier of a single record, or
// by MultipleTopic otherwise.
func Topic(prefix string, records ...*Record) string {
	if len(records) == 1 {
		return prefix + records[0].Identifier()
	}
	return prefix + MultipleTopic
}

// Decode parses a message body back into the user id and its records.
//
// The grammar is positional and untyped: a token that parses as a number is
// a value of the current record, a token containing ':' is a timestamp, the
// marker "ts" is skipped and anything else starts a new record. Tokens
// before the first identifier are dropped. Identifiers that look like
// numbers or contain ':' therefore cannot be decoded.
func Decode(body string) (string, []*Record, error) {
	if body == "" {
		return "", nil, ErrEmptyPayload
	}
	tokens := strings.Split(body, ",")
	userID := tokens[0]

	var records []*Record
	var current *Record
	for _, tok := range tokens[1:] {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			if current != nil {
				current.values = append(current.values, v)
			}
			continue
		}
		switch {
		case strings.Contains(tok, ":"):
			if current != nil {
				current.timestamps = append(current.timestamps, tok)
			}
		case tok == TimestampMarker:
		default:
			current = &Record{identifier: tok}
			records = append(records, current)
		}
	}
	return userID, records, nil
}

// DecodeDownload parses an export request "userid,<sensor|all>".
func DecodeDownload(body string) (userID, sensor string, err error) {
	if body == "" {
		return "", "", ErrEmptyPayload
	}
	userID, sensor, _ = strings.Cut(body, ",")
	sensor, _, _ = strings.Cut(sensor, ",")
	return userID, sensor, nil
}

// ExpandTimestamps returns one timestamp per value: a single timestamp is
// repeated for every value, otherwise the timestamps are returned as they
// are.
func (r *Record) ExpandTimestamps() []string {
	if len(r.timestamps) != 1 {
		return r.Timestamps()
	}
	out := make([]string, len(r.values))
	for i := range out {
		out[i] = r.timestamps[0]
	}
	return out
}

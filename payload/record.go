// Package payload implements the flat comma separated message format carried
// over MQTT between the gateway and the downstream subscriber.
package payload

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxSize is the MQTT buffer size negotiated with the modem. Add and AddAt
// report the space left against it.
const MaxSize = 512

// TimestampMarker separates the values of a record from its timestamps.
const TimestampMarker = "ts"

var (
	// ErrNeedsTimestamp is returned by Add on a record without any timestamp.
	ErrNeedsTimestamp = errors.New("record needs at least one timestamp")
	// ErrAmbiguousTimestamp is returned when a value cannot be matched to
	// exactly one timestamp.
	ErrAmbiguousTimestamp = errors.New("number of timestamps must be 1 or match the number of values")
	// ErrTimestampCount is returned by NewRecord for a timestamp list that is
	// neither empty, a single shared timestamp, nor one per value.
	ErrTimestampCount = errors.New("timestamp count must be 0, 1 or the number of values")
)

// Record is a batch of values from one sensor with either one shared
// timestamp or one timestamp per value.
type Record struct {
	identifier string
	values     []float64
	timestamps []string
}

// NewRecord creates a record. timestamps must be empty, hold a single
// timestamp shared by all values, or hold one timestamp per value.
func NewRecord(identifier string, values []float64, timestamps ...string) (*Record, error) {
	if n := len(timestamps); n > 1 && n != len(values) {
		return nil, fmt.Errorf("%w: %d timestamps for %d values", ErrTimestampCount, n, len(values))
	}
	return &Record{
		identifier: identifier,
		values:     append([]float64(nil), values...),
		timestamps: append([]string(nil), timestamps...),
	}, nil
}

func (r *Record) Identifier() string { return r.identifier }

func (r *Record) Values() []float64 { return append([]float64(nil), r.values...) }

func (r *Record) Timestamps() []string { return append([]string(nil), r.timestamps...) }

// Add appends a value covered by the record's single shared timestamp.
// It returns the space left before the serialized record exceeds MaxSize,
// which is negative once it does.
func (r *Record) Add(value float64) (int, error) {
	switch len(r.timestamps) {
	case 0:
		return 0, ErrNeedsTimestamp
	case 1:
	default:
		return 0, ErrAmbiguousTimestamp
	}
	r.values = append(r.values, value)
	return r.Remaining(), nil
}

// AddAt appends a value with its own timestamp. This is only allowed while
// every value so far has its own timestamp.
func (r *Record) AddAt(value float64, timestamp string) (int, error) {
	if len(r.timestamps) != len(r.values) {
		return 0, ErrAmbiguousTimestamp
	}
	r.values = append(r.values, value)
	r.timestamps = append(r.timestamps, timestamp)
	return r.Remaining(), nil
}

// Remaining is MaxSize minus the serialized length.
func (r *Record) Remaining() int { return MaxSize - r.Len() }

func (r *Record) Len() int { return len(r.Serialize()) }

// Serialize renders "identifier,<values>,ts,<timestamps>". Values use four
// significant digits.
func (r *Record) Serialize() string {
	var b strings.Builder
	b.WriteString(r.identifier)
	for _, v := range r.values {
		b.WriteByte(',')
		b.WriteString(FormatValue(v))
	}
	b.WriteString("," + TimestampMarker)
	for _, ts := range r.timestamps {
		b.WriteByte(',')
		b.WriteString(ts)
	}
	return b.String()
}

func (r *Record) String() string { return r.Serialize() }

// FormatValue renders v with four significant digits, switching to
// exponent notation for large and very small magnitudes.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

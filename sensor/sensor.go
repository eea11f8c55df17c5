// Package sensor holds the value types shared by sensor wrappers: a reading
// paired with its sample time and the closed sets of chip settings.
package sensor

import (
	"errors"
	"fmt"
	"time"

	"i4.energy/across/nbiotgw/payload"
)

// TimeLayout is the UTC wall clock format used for sample timestamps.
const TimeLayout = "15:04:05"

// ErrUnknownVariant is returned when a setting is not one of its allowed
// values.
var ErrUnknownVariant = errors.New("unknown variant")

// Reading is one sample and the time it was taken.
type Reading struct {
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// Timestamp formats t as UTC "HH:MM:SS".
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Stamp pairs v with the formatted time t.
func Stamp(v float64, t time.Time) Reading {
	return Reading{Value: v, Timestamp: Timestamp(t)}
}

// Now stamps v with the current time.
func Now(v float64) Reading { return Stamp(v, time.Now()) }

// Record collects readings into a message record with one timestamp per
// value.
func Record(identifier string, readings ...Reading) (*payload.Record, error) {
	r, err := payload.NewRecord(identifier, nil)
	if err != nil {
		return nil, err
	}
	for _, rd := range readings {
		if _, err := r.AddAt(rd.Value, rd.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: %w", identifier, err)
		}
	}
	return r, nil
}

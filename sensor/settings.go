package sensor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Oversample is the BME680 oversampling rate for temperature, humidity and
// pressure.
type Oversample int

const (
	OversampleSkip Oversample = 0
	Oversample1    Oversample = 1
	Oversample2    Oversample = 2
	Oversample4    Oversample = 4
	Oversample8    Oversample = 8
	Oversample16   Oversample = 16
)

const oversamplePrefix = "ovr_samp_"

// ParseOversample accepts "ovr_samp_<n>" or the bare rate.
func ParseOversample(s string) (Oversample, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, oversamplePrefix))
	if err != nil {
		return 0, fmt.Errorf("oversample %q: %w", s, ErrUnknownVariant)
	}
	switch o := Oversample(n); o {
	case OversampleSkip, Oversample1, Oversample2, Oversample4, Oversample8, Oversample16:
		return o, nil
	}
	return 0, fmt.Errorf("oversample %q: %w", s, ErrUnknownVariant)
}

func (o Oversample) String() string { return oversamplePrefix + strconv.Itoa(int(o)) }

// Gain is the VEML7700 ambient light gain. The values are the chip's
// register codes.
type Gain uint8

const (
	Gain1        Gain = 0x00
	Gain2        Gain = 0x01
	GainOneEight Gain = 0x02
	GainOneFour  Gain = 0x03
)

var gainNames = map[Gain]string{
	Gain1:        "ALS_GAIN_1",
	Gain2:        "ALS_GAIN_2",
	GainOneEight: "ALS_GAIN_1_8",
	GainOneFour:  "ALS_GAIN_1_4",
}

var gainFactors = map[Gain]float64{
	Gain1:        1,
	Gain2:        2,
	GainOneEight: 0.125,
	GainOneFour:  0.25,
}

func ParseGain(s string) (Gain, error) {
	for g, name := range gainNames {
		if name == s {
			return g, nil
		}
	}
	return 0, fmt.Errorf("gain %q: %w", s, ErrUnknownVariant)
}

func (g Gain) String() string {
	if name, ok := gainNames[g]; ok {
		return name
	}
	return "Gain(" + strconv.Itoa(int(g)) + ")"
}

// Factor is the multiplication applied by the gain stage.
func (g Gain) Factor() float64 { return gainFactors[g] }

// IntegrationTime is the VEML7700 integration time register code.
type IntegrationTime uint8

const (
	Integration25ms  IntegrationTime = 0x0C
	Integration50ms  IntegrationTime = 0x08
	Integration100ms IntegrationTime = 0x00
	Integration200ms IntegrationTime = 0x01
	Integration400ms IntegrationTime = 0x02
	Integration800ms IntegrationTime = 0x03
)

var integrationDurations = map[IntegrationTime]time.Duration{
	Integration25ms:  25 * time.Millisecond,
	Integration50ms:  50 * time.Millisecond,
	Integration100ms: 100 * time.Millisecond,
	Integration200ms: 200 * time.Millisecond,
	Integration400ms: 400 * time.Millisecond,
	Integration800ms: 800 * time.Millisecond,
}

// ParseIntegrationTime accepts "ALS_<n>MS" or a duration such as "100ms".
func ParseIntegrationTime(s string) (IntegrationTime, error) {
	v := s
	if rest, ok := strings.CutPrefix(s, "ALS_"); ok {
		v = strings.ToLower(rest)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("integration time %q: %w", s, ErrUnknownVariant)
	}
	for it, dur := range integrationDurations {
		if dur == d {
			return it, nil
		}
	}
	return 0, fmt.Errorf("integration time %q: %w", s, ErrUnknownVariant)
}

// Duration returns the integration window, zero for an unknown code.
func (it IntegrationTime) Duration() time.Duration { return integrationDurations[it] }

func (it IntegrationTime) String() string {
	if d, ok := integrationDurations[it]; ok {
		return fmt.Sprintf("ALS_%dMS", d.Milliseconds())
	}
	return "IntegrationTime(" + strconv.Itoa(int(it)) + ")"
}

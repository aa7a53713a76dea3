// Package perkinelmer provides a driver for the Perkin Elmer (Signal
// Recovery) 7280 DSP lock-in amplifier
package perkinelmer

import (
	"strconv"
	"strings"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

var (
	amplitude = scpi.Setting{Name: "amplitude", Prefix: "OA. ", Format: scpi.Fixed, Precision: 6, Range: &scpi.Range{Min: 0, Max: 5}}
	frequency = scpi.Setting{Name: "frequency", Prefix: "OF. ", Format: scpi.Scientific, Precision: 3, Range: &scpi.Range{Min: 0, Max: 2e6}}
)

// Lockin7280 is a 7280 lock-in amplifier.  Floating point commands end in a
// period, e.g. MAG. returns the magnitude in V.
type Lockin7280 struct {
	scpi.SCPI
}

// NewLockin7280 creates a new lock-in on an open session
func NewLockin7280(s *comm.Session) *Lockin7280 {
	return &Lockin7280{scpi.SCPI{Session: s}}
}

func (l *Lockin7280) queryFloat(cmd string) (float64, error) {
	resp, err := l.Query(cmd)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// Reset restores the factory defaults
func (l *Lockin7280) Reset() error {
	return l.Write("ADF 1")
}

// AutoMeasure runs the auto-measure sequence
func (l *Lockin7280) AutoMeasure() error {
	return l.Write("ASM")
}

// AutoSensitivity runs the auto-sensitivity sequence
func (l *Lockin7280) AutoSensitivity() error {
	return l.Write("AS")
}

// R returns the signal magnitude in V
func (l *Lockin7280) R() (float64, error) {
	return l.queryFloat("MAG.")
}

// Phase returns the signal phase in degrees
func (l *Lockin7280) Phase() (float64, error) {
	return l.queryFloat("PHA.")
}

// Amplitude returns the oscillator amplitude in V rms
func (l *Lockin7280) Amplitude() (float64, error) {
	return l.queryFloat("OA.")
}

// SetAmplitude sets the oscillator amplitude in V rms
func (l *Lockin7280) SetAmplitude(v float64) error {
	cmd, err := amplitude.Encode(v)
	if err != nil {
		return err
	}
	return l.Write(cmd)
}

// Frequency returns the oscillator frequency in Hz
func (l *Lockin7280) Frequency() (float64, error) {
	return l.queryFloat("OF.")
}

// SetFrequency sets the oscillator frequency in Hz
func (l *Lockin7280) SetFrequency(hz float64) error {
	if _, err := frequency.Encode(hz); err != nil {
		return err
	}
	set := func(v float64) error {
		cmd, err := frequency.Encode(v)
		if err != nil {
			return err
		}
		return l.Write(cmd)
	}
	return verify.SetAndVerify("frequency", set, l.Frequency, hz, frequency.Tolerance(hz), verify.DefaultAttempts)
}

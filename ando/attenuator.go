package ando

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

var attenuation = scpi.Setting{
	Name:      "attenuation",
	Prefix:    "AAV",
	Format:    scpi.Fixed,
	Precision: 3,
	Range:     &scpi.Range{Min: 0, Max: 60}}

// Attenuator is an AQ820133 variable optical attenuator
type Attenuator struct {
	module
}

var _ scpi.Instrument = Attenuator{}

// NewAttenuator returns the attenuator in slot of mf
func NewAttenuator(mf *Mainframe, slot int) Attenuator {
	return Attenuator{module{mf: mf, slot: slot}}
}

// Attenuation returns the attenuation in dB
func (a Attenuator) Attenuation() (float64, error) {
	return a.queryPrefixed("AAV?", "AAV")
}

// SetAttenuation sets the attenuation in dB.  The sign of db is ignored.
func (a Attenuator) SetAttenuation(db float64) error {
	db = math.Abs(db)
	if _, err := attenuation.Encode(db); err != nil {
		return err
	}
	set := func(v float64) error {
		cmd, err := attenuation.Encode(v)
		if err != nil {
			return err
		}
		return a.write(cmd)
	}
	return verify.SetAndVerify("attenuation", set, a.Attenuation, db, attenuation.Tolerance(db), verify.DefaultAttempts, verify.Settle(settle))
}

// Wavelength returns the calibration wavelength in nm
func (a Attenuator) Wavelength() (int, error) {
	f, err := a.queryPrefixed("AW?", "AW")
	return int(math.Round(f)), err
}

// SetWavelength sets the calibration wavelength, rounded to the nearest nm
func (a Attenuator) SetWavelength(nm float64) error {
	if nm <= 0 || math.IsNaN(nm) {
		return &scpi.InvalidArgument{Setting: "wavelength", Value: nm, Domain: "positive"}
	}
	set := func(v int) error { return a.write("AW" + strconv.Itoa(v)) }
	return verify.SetAndVerifyExact("wavelength", set, a.Wavelength, int(math.Round(nm)), verify.DefaultAttempts, verify.Settle(settle))
}

// Enabled returns true if the shutter is open
func (a Attenuator) Enabled() (bool, error) {
	resp, err := a.query("ASHTR?")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(resp) == "ASHTR1", nil
}

func (a Attenuator) setShutter(open bool) error {
	set := func(v bool) error {
		if v {
			return a.write("ASHTR1")
		}
		return a.write("ASHTR0")
	}
	return verify.SetAndVerifyExact("shutter", set, a.Enabled, open, verify.DefaultAttempts, verify.Settle(settle))
}

// Enable opens the shutter
func (a Attenuator) Enable() error {
	return a.setShutter(true)
}

// Disable closes the shutter
func (a Attenuator) Disable() error {
	return a.setShutter(false)
}

// ConfigLine renders the attenuator's settings as a comment line for a data file header
func (a Attenuator) ConfigLine() (string, error) {
	db, err := a.Attenuation()
	if err != nil {
		return "", err
	}
	wl, err := a.Wavelength()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("# Attenuator, slot %d: \t%.3f dB at %d nm", a.slot, db, wl), nil
}

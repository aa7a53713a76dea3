// Package jds provides a driver for the JDS Uniphase HA9 optical attenuator
package jds

import (
	"math"
	"strconv"
	"strings"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

var attenuation = scpi.Setting{
	Name:      "attenuation",
	Prefix:    ":INP:ATT ",
	Suffix:    " dB",
	Format:    scpi.Fixed,
	Precision: 1,
	Range:     &scpi.Range{Min: 0, Max: 100}}

// HA9 is an HA9 attenuator
type HA9 struct {
	scpi.SCPI
}

// NewHA9 creates a new HA9 on an open session
func NewHA9(s *comm.Session) *HA9 {
	return &HA9{scpi.SCPI{Session: s}}
}

// SetWavelength sets the calibration wavelength, rounded to the nearest nm
func (h *HA9) SetWavelength(nm float64) error {
	if err := scpi.CheckRange("wavelength", nm, 1200, 1700); err != nil {
		return err
	}
	return h.Write(":INP:WAV " + strconv.Itoa(int(math.Round(nm))) + " nm")
}

// Attenuation returns the attenuation in dB
func (h *HA9) Attenuation() (float64, error) {
	resp, err := h.Query(":INP:ATT?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// SetAttenuation sets the attenuation in dB, 0 to 100
func (h *HA9) SetAttenuation(db float64) error {
	if _, err := attenuation.Encode(db); err != nil {
		return err
	}
	set := func(v float64) error {
		cmd, err := attenuation.Encode(v)
		if err != nil {
			return err
		}
		return h.Write(cmd)
	}
	return verify.SetAndVerify("attenuation", set, h.Attenuation, db, attenuation.Tolerance(db), verify.DefaultAttempts)
}

// SetBeamBlock closes (true) or opens the output shutter
func (h *HA9) SetBeamBlock(block bool) error {
	if block {
		return h.Write(":OUTP:STAT 0")
	}
	return h.Write(":OUTP:STAT 1")
}

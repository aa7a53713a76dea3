package agilent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
)

// Lightwave is an 8164A lightwave measurement system.  Its modules are
// addressed by the slot number in each command, so unlike the Ando or SIM900
// mainframes there is no select step and no lock beyond the session's.
type Lightwave struct {
	scpi.SCPI
}

// NewLightwave creates a new Lightwave instance
func NewLightwave(s *comm.Session) *Lightwave {
	return &Lightwave{scpi.SCPI{Session: s}}
}

func g(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func checkSlot(slot int) error {
	if slot < 0 || slot > 4 {
		return &scpi.InvalidArgument{Setting: "slot", Value: slot, Domain: "in [0, 4]"}
	}
	return nil
}

func (l *Lightwave) writef(slot int, format string, a ...interface{}) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	return l.Write(fmt.Sprintf(format, a...))
}

func (l *Lightwave) queryf(slot int, format string, a ...interface{}) (float64, error) {
	if err := checkSlot(slot); err != nil {
		return 0, err
	}
	resp, err := l.Query(fmt.Sprintf(format, a...))
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// SetLaserWavelength sets the wavelength of the laser in slot, in nm
func (l *Lightwave) SetLaserWavelength(slot int, nm float64) error {
	return l.writef(slot, "SOUR%d:WAV %sNM", slot, g(nm))
}

// LaserWavelength returns the wavelength of the laser in slot, in nm
func (l *Lightwave) LaserWavelength(slot int) (float64, error) {
	m, err := l.queryf(slot, "SOUR%d:WAV?", slot)
	return m * 1e9, err
}

// SetLaserPower sets the power of the laser in slot, in dBm
func (l *Lightwave) SetLaserPower(slot int, dbm float64) error {
	return l.writef(slot, "SOUR%d:POW %sDBM", slot, g(dbm))
}

// SetLaserOutput turns the laser in slot on or off
func (l *Lightwave) SetLaserOutput(slot int, on bool) error {
	state := 0
	if on {
		state = 1
	}
	return l.writef(slot, "OUTP%d:CHAN1:STAT %d", slot, state)
}

// SetMeterWavelength sets the calibration wavelength of the power meter in slot, in nm
func (l *Lightwave) SetMeterWavelength(slot int, nm float64) error {
	return l.writef(slot, "SENS%d:POW:WAV %sNM", slot, g(nm))
}

// MeterPower reads the power meter in slot
func (l *Lightwave) MeterPower(slot int) (float64, error) {
	return l.queryf(slot, "READ%d:POW?", slot)
}

// SetAttenuation sets the attenuator in slot, in dB
func (l *Lightwave) SetAttenuation(slot int, db float64) error {
	if err := scpi.CheckRange("attenuation", db, 0, 60); err != nil {
		return err
	}
	return l.writef(slot, "INP%d:ATT %s", slot, g(db))
}

// Attenuation returns the attenuation of the attenuator in slot, in dB
func (l *Lightwave) Attenuation(slot int) (float64, error) {
	return l.queryf(slot, "INP%d:ATT?", slot)
}

// SetAttenuatorWavelength sets the calibration wavelength of the attenuator in slot, in nm
func (l *Lightwave) SetAttenuatorWavelength(slot int, nm float64) error {
	return l.writef(slot, "INP%d:WAV %s NM", slot, g(nm))
}

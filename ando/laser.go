package ando

import (
	"fmt"
	"math"
	"strings"

	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

var (
	laserWavelength = scpi.Setting{Name: "wavelength", Prefix: "LW", Format: scpi.Fixed, Precision: 1}
	laserPower      = scpi.Setting{Name: "power", Prefix: "LPL", Format: scpi.Fixed, Precision: 2}
	laserCal        = scpi.Setting{Name: "wavelength calibration", Prefix: "LWLCAL", Format: scpi.Fixed, Precision: 2}
	laserATL        = scpi.Setting{Name: "ATL level", Prefix: "LATL", Format: scpi.Fixed, Precision: 2}
)

// Laser is an AQ8201-1x tunable laser source
type Laser struct {
	module
}

var _ scpi.Instrument = Laser{}

// NewLaser returns the laser in slot of mf
func NewLaser(mf *Mainframe, slot int) Laser {
	return Laser{module{mf: mf, slot: slot}}
}

// StdInit puts the laser in the state the other methods expect:
// wavelength in nm, power in dBm, coherence control on
func (l Laser) StdInit() error {
	for _, cmd := range []string{"LUS0", "LEMO0", "LIMO0", "LCOHR1"} {
		if err := l.write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Reset resets the mainframe and reapplies StdInit
func (l Laser) Reset() error {
	if err := l.module.Reset(); err != nil {
		return err
	}
	return l.StdInit()
}

// WavelengthLimits returns the tuning range in nm
func (l Laser) WavelengthLimits() (min, max float64, err error) {
	if min, err = l.queryPrefixed("LWMIN?", "LWMIN"); err != nil {
		return
	}
	max, err = l.queryPrefixed("LWMAX?", "LWMAX")
	return
}

// Wavelength returns the wavelength in nm
func (l Laser) Wavelength() (float64, error) {
	return l.queryPrefixed("LW?", "LW")
}

// SetWavelength sets the wavelength in nm
func (l Laser) SetWavelength(nm float64) error {
	if nm <= 0 || math.IsNaN(nm) {
		return &scpi.InvalidArgument{Setting: "wavelength", Value: nm, Domain: "positive"}
	}
	set := func(v float64) error {
		cmd, err := laserWavelength.Encode(v)
		if err != nil {
			return err
		}
		return l.write(cmd)
	}
	return verify.SetAndVerify("wavelength", set, l.Wavelength, nm, laserWavelength.Tolerance(nm), verify.DefaultAttempts, verify.Settle(settle))
}

// WattsToDBm converts optical power in W to dBm
func WattsToDBm(w float64) float64 {
	return 10*math.Log10(w) + 30
}

// DBmToWatts converts optical power in dBm to W
func DBmToWatts(dbm float64) float64 {
	return math.Pow(10, dbm/10) * 1e-3
}

// PowerDBm returns the output power setpoint in dBm
func (l Laser) PowerDBm() (float64, error) {
	return l.queryPrefixed("LPL?", "LPL")
}

// Power returns the output power setpoint in W
func (l Laser) Power() (float64, error) {
	dbm, err := l.PowerDBm()
	if err != nil {
		return 0, err
	}
	return DBmToWatts(dbm), nil
}

// SetPower sets the output power in W.  The laser is programmed in dBm and
// the setting is verified there.
func (l Laser) SetPower(w float64) error {
	if w <= 0 || math.IsNaN(w) {
		return &scpi.InvalidArgument{Setting: "power", Value: w, Domain: "positive"}
	}
	dbm := WattsToDBm(w)
	set := func(v float64) error {
		cmd, err := laserPower.Encode(v)
		if err != nil {
			return err
		}
		return l.write(cmd)
	}
	return verify.SetAndVerify("power", set, l.PowerDBm, dbm, laserPower.Tolerance(dbm), verify.DefaultAttempts, verify.Settle(settle))
}

func (l Laser) queryFlag(cmd, prefix string) (bool, error) {
	f, err := l.queryPrefixed(cmd, prefix)
	return f != 0, err
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// Coherence returns true if coherence control is on
func (l Laser) Coherence() (bool, error) {
	return l.queryFlag("LCOHR?", "LCOHR")
}

// SetCoherence turns coherence control on or off
func (l Laser) SetCoherence(on bool) error {
	set := func(v bool) error { return l.write("LCOHR" + flag(v)) }
	return verify.SetAndVerifyExact("coherence control", set, l.Coherence, on, verify.DefaultAttempts, verify.Settle(settle))
}

// Enabled returns true if the optical output is on
func (l Laser) Enabled() (bool, error) {
	return l.queryFlag("LOPT?", "LOPT")
}

func (l Laser) setOutput(on bool) error {
	set := func(v bool) error { return l.write("LOPT" + flag(v)) }
	return verify.SetAndVerifyExact("output", set, l.Enabled, on, verify.DefaultAttempts, verify.Settle(settle))
}

// Enable turns the optical output on
func (l Laser) Enable() error {
	return l.setOutput(true)
}

// Disable turns the optical output off
func (l Laser) Disable() error {
	return l.setOutput(false)
}

// WavelengthCal returns the wavelength calibration offset in nm
func (l Laser) WavelengthCal() (float64, error) {
	return l.queryPrefixed("LWLCAL?", "LWLCAL")
}

// SetWavelengthCal sets the wavelength calibration offset in nm
func (l Laser) SetWavelengthCal(nm float64) error {
	cmd, err := laserCal.Encode(nm)
	if err != nil {
		return err
	}
	return l.write(cmd)
}

// ATL returns the ATL level
func (l Laser) ATL() (float64, error) {
	return l.queryPrefixed("LATL?", "LATL")
}

// SetATL sets the ATL level
func (l Laser) SetATL(level float64) error {
	cmd, err := laserATL.Encode(level)
	if err != nil {
		return err
	}
	return l.write(cmd)
}

// Status returns the one character module status of LMSTAT?
func (l Laser) Status() (string, error) {
	resp, err := l.query("LMSTAT?")
	if err != nil {
		return "", err
	}
	resp = strings.TrimPrefix(strings.TrimSpace(resp), "LMSTAT")
	if len(resp) != 1 {
		return "", fmt.Errorf("laser status %q is not one character", resp)
	}
	return resp, nil
}

// ConfigLine renders the laser's settings as a comment line for a data file header
func (l Laser) ConfigLine() (string, error) {
	wl, err := l.Wavelength()
	if err != nil {
		return "", err
	}
	p, err := l.PowerDBm()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("# Laser, slot %d: \t%.1f nm, %.2f dBm", l.slot, wl, p), nil
}

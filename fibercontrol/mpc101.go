// Package fibercontrol provides a driver for the FiberControl MPC1 motorized
// polarization controller
package fibercontrol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
)

// Axes are the waveplates of the controller, in order
var Axes = []string{"X", "Y", "Z"}

var waveplate = scpi.Setting{Name: "waveplate angle", Format: scpi.Fixed, Precision: 2, Range: &scpi.Range{Min: -99, Max: 99}}

// MPC101 is an MPC101 polarization controller
type MPC101 struct {
	scpi.SCPI
}

// NewMPC101 creates a new MPC101 on an open session
func NewMPC101(s *comm.Session) *MPC101 {
	return &MPC101{scpi.SCPI{Session: s}}
}

// Center moves every waveplate to its center position
func (m *MPC101) Center() error {
	return m.Write("CEN")
}

// SetWaveplate moves the waveplate of an axis to an angle in degrees
func (m *MPC101) SetWaveplate(axis string, deg float64) error {
	axis, err := scpi.CheckEnum("axis", axis, Axes...)
	if err != nil {
		return err
	}
	cmd, err := waveplate.WithPrefix("%s=", axis).Encode(deg)
	if err != nil {
		return err
	}
	return m.Write(cmd)
}

// Waveplate returns the angle of the waveplate of an axis in degrees
func (m *MPC101) Waveplate(axis string) (float64, error) {
	axis, err := scpi.CheckEnum("axis", axis, Axes...)
	if err != nil {
		return 0, err
	}
	resp, err := m.Query(axis + "?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// SetWaveplates moves the X, Y and Z waveplates
func (m *MPC101) SetWaveplates(deg [3]float64) error {
	for _, d := range deg {
		if _, err := waveplate.Encode(d); err != nil {
			return err
		}
	}
	for i, d := range deg {
		if err := m.SetWaveplate(Axes[i], d); err != nil {
			return err
		}
	}
	return nil
}

// SetRate sets the speed of the waveplates, 1 to 20
func (m *MPC101) SetRate(rate int) error {
	if rate < 1 || rate > 20 {
		return &scpi.InvalidArgument{Setting: "rate", Value: rate, Domain: "in [1, 20]"}
	}
	return m.Write(fmt.Sprintf("RATE=%d", rate))
}

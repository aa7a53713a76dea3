package agilent

import (
	"strconv"
	"strings"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
)

// Multimeter is a 34401A digital multimeter
type Multimeter struct {
	scpi.SCPI
}

// NewMultimeter creates a new Multimeter instance
func NewMultimeter(s *comm.Session) *Multimeter {
	return &Multimeter{scpi.SCPI{Session: s}}
}

// Resistance measures a resistance in Ohms.  max selects the range; zero autoranges.
func (m *Multimeter) Resistance(max float64) (float64, error) {
	if max < 0 {
		return 0, &scpi.InvalidArgument{Setting: "range", Value: max, Domain: "positive, or 0 for auto"}
	}
	cmd := "MEAS:RES?"
	if max > 0 {
		cmd += " " + strconv.FormatFloat(max, 'g', -1, 64)
	}
	return m.ReadFloat(cmd)
}

// Voltage measures a DC voltage
func (m *Multimeter) Voltage() (float64, error) {
	resp, err := m.Query("MEAS?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

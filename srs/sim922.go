package srs

import (
	"strconv"

	"github.com/amcc/golab/scpi"
)

// SIM922 is a four channel diode temperature monitor
type SIM922 struct {
	port
}

var _ scpi.Instrument = SIM922{}

// NewSIM922 returns the monitor in port n of mf
func NewSIM922(mf *Mainframe, n int) SIM922 {
	return SIM922{port{mf: mf, n: n}}
}

// Temperature returns the temperature of a channel in K
func (s SIM922) Temperature(ch int) (float64, error) {
	if err := checkChannel(ch, 4); err != nil {
		return 0, err
	}
	return s.queryFloat("TVAL? " + strconv.Itoa(ch))
}

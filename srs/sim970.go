package srs

import (
	"fmt"
	"strconv"

	"github.com/amcc/golab/scpi"
)

// SIM970 is a four channel voltmeter
type SIM970 struct {
	port
}

var _ scpi.Instrument = SIM970{}

// NewSIM970 returns the voltmeter in port n of mf
func NewSIM970(mf *Mainframe, n int) SIM970 {
	return SIM970{port{mf: mf, n: n}}
}

// Voltage returns the voltage of a channel
func (s SIM970) Voltage(ch int) (float64, error) {
	if err := checkChannel(ch, 4); err != nil {
		return 0, err
	}
	return s.queryFloat("VOLT? " + strconv.Itoa(ch))
}

// SetImpedance sets the input impedance of a channel.  gigaohm true takes the
// divider out of autoranging and fixes it at >1 GOhm; false restores
// autoranging and the 10 MOhm divider.
func (s SIM970) SetImpedance(ch int, gigaohm bool) error {
	if err := checkChannel(ch, 4); err != nil {
		return err
	}
	auto, dvdr := 15, 1
	if gigaohm {
		auto, dvdr = 13, 2
	}
	return s.mf.WithPort(s.n, func(b *scpi.SCPI) error {
		if err := b.Write(fmt.Sprintf("AUTO %d,%d", ch, auto)); err != nil {
			return err
		}
		return b.Write(fmt.Sprintf("DVDR %d,%d", ch, dvdr))
	})
}

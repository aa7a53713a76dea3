package srs

import (
	"math"
	"strconv"

	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

var (
	// ranges are the full scale resistances, 20 mOhm to 20 MOhm
	ranges = scpi.NewCodeTable("range",
		[]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		[]float64{20e-3, 200e-3, 2, 20, 200, 2e3, 20e3, 200e3, 2e6, 20e6})

	excitations = scpi.NewCodeTable("excitation",
		[]int{0, 1, 2, 3, 4, 5, 6, 7, 8},
		[]float64{3e-6, 10e-6, 30e-6, 100e-6, 300e-6, 1e-3, 3e-3, 10e-3, 30e-3})

	timeConstants = scpi.NewCodeTable("time constant",
		[]int{0, 1, 2, 3, 4, 5, 6},
		[]float64{0.3, 1, 3, 10, 30, 100, 300})
)

// SIM921 is an AC resistance bridge
type SIM921 struct {
	port
}

var _ scpi.Instrument = SIM921{}

// NewSIM921 returns the bridge in port n of mf
func NewSIM921(mf *Mainframe, n int) SIM921 {
	return SIM921{port{mf: mf, n: n}}
}

// Resistance returns the measured resistance in Ohms
func (s SIM921) Resistance() (float64, error) {
	return s.queryFloat("RVAL?")
}

// RangeFor returns the code of the smallest range that can measure maxOhms
func RangeFor(maxOhms float64) (int, error) {
	if maxOhms <= 0 || math.IsNaN(maxOhms) {
		return 0, &scpi.InvalidArgument{Setting: "range", Value: maxOhms, Domain: "positive"}
	}
	for i, full := range ranges.Values() {
		if full*(1+1e-9) >= maxOhms {
			return ranges.Codes()[i], nil
		}
	}
	return 0, &scpi.InvalidArgument{Setting: "range", Value: maxOhms, Domain: "at most 20 MOhm"}
}

// Range returns the full scale resistance in Ohms
func (s SIM921) Range() (float64, error) {
	code, err := s.queryInt("RANG?")
	if err != nil {
		return 0, err
	}
	return ranges.Value(code)
}

// SetRange selects the smallest range that measures maxOhms and returns its
// full scale resistance
func (s SIM921) SetRange(maxOhms float64) (float64, error) {
	code, err := RangeFor(maxOhms)
	if err != nil {
		return 0, err
	}
	full, _ := ranges.Value(code)
	set := func(c int) error { return s.write("RANG " + strconv.Itoa(c)) }
	get := func() (int, error) { return s.queryInt("RANG?") }
	return full, verify.SetAndVerifyExact("range", set, get, code, verify.DefaultAttempts)
}

// Excitation returns the excitation voltage in V
func (s SIM921) Excitation() (float64, error) {
	code, err := s.queryInt("EXCI?")
	if err != nil {
		return 0, err
	}
	return excitations.Value(code)
}

// SetExcitation sets the excitation voltage, one of 3 uV, 10 uV, 30 uV ... 30 mV
func (s SIM921) SetExcitation(volts float64) error {
	code, err := excitations.Code(volts)
	if err != nil {
		return err
	}
	set := func(c int) error { return s.write("EXCI " + strconv.Itoa(c)) }
	get := func() (int, error) { return s.queryInt("EXCI?") }
	return verify.SetAndVerifyExact("excitation", set, get, code, verify.DefaultAttempts)
}

// TimeConstant returns the filter time constant in seconds
func (s SIM921) TimeConstant() (float64, error) {
	code, err := s.queryInt("TCON?")
	if err != nil {
		return 0, err
	}
	return timeConstants.Value(code)
}

// SetTimeConstant sets the filter time constant, one of 0.3, 1, 3 ... 300 s
func (s SIM921) SetTimeConstant(seconds float64) error {
	code, err := timeConstants.Code(seconds)
	if err != nil {
		return err
	}
	set := func(c int) error { return s.write("TCON " + strconv.Itoa(c)) }
	get := func() (int, error) { return s.queryInt("TCON?") }
	return verify.SetAndVerifyExact("time constant", set, get, code, verify.DefaultAttempts)
}

package agilent

import (
	"fmt"
	"strconv"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/mathx"
	"github.com/amcc/golab/oscilloscope"
	"github.com/amcc/golab/scpi"
)

// FieldFoxTimeout is the response timeout a FieldFox needs for a slow sweep
const FieldFoxTimeout = 30 * time.Second

// FieldFox is a FieldFox handheld analyzer used as a network analyzer
type FieldFox struct {
	scpi.SCPI
}

// NewFieldFox creates a new FieldFox instance
func NewFieldFox(s *comm.Session) *FieldFox {
	return &FieldFox{scpi.SCPI{Session: s}}
}

func (f *FieldFox) writeAll(cmds ...string) error {
	for _, cmd := range cmds {
		if err := f.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// SetParameter selects network analyzer mode measuring S11 or S21, sweeping continuously
func (f *FieldFox) SetParameter(param string) error {
	tok, err := scpi.CheckEnum("S parameter", param, "S11", "S21")
	if err != nil {
		return err
	}
	return f.writeAll(`INST:SEL "NA"`, "INIT:CONT 1", "CALC:PAR:DEF "+tok)
}

// SetPoints sets the number of points in a sweep
func (f *FieldFox) SetPoints(n int) error {
	if n < 2 || n > 10001 {
		return &scpi.InvalidArgument{Setting: "points", Value: n, Domain: "in [2, 10001]"}
	}
	return f.Write("SWE:POIN " + strconv.Itoa(n))
}

func sci6(v float64) string {
	return strconv.FormatFloat(v, 'e', 6, 64)
}

// SetStartStop sets the sweep by its start and stop frequencies in Hz
func (f *FieldFox) SetStartStop(start, stop float64) error {
	if stop <= start || start < 0 {
		return &scpi.InvalidArgument{Setting: "stop frequency", Value: stop, Domain: "above a non-negative start frequency"}
	}
	return f.writeAll("FREQ:STAR "+sci6(start), "FREQ:STOP "+sci6(stop))
}

// SetCenterSpan sets the sweep by its center and span in Hz
func (f *FieldFox) SetCenterSpan(center, span float64) error {
	if span <= 0 {
		return &scpi.InvalidArgument{Setting: "span", Value: span, Domain: "positive"}
	}
	return f.writeAll("FREQ:CENT "+sci6(center), "FREQ:SPAN "+sci6(span))
}

// SetPower sets the source power in dBm, -31 to 0
func (f *FieldFox) SetPower(dbm float64) error {
	s := scpi.Setting{Name: "power", Prefix: "SOUR:POW ", Format: scpi.Fixed, Precision: 1, Range: &scpi.Range{Min: -31, Max: 0}}
	cmd, err := s.Encode(dbm)
	if err != nil {
		return err
	}
	return f.Write(cmd)
}

// SetFormat selects log (MLOG) or linear (MLIN) magnitude
func (f *FieldFox) SetFormat(format string) error {
	tok, err := scpi.CheckEnum("format", format, "MLOG", "MLIN")
	if err != nil {
		return err
	}
	return f.Write("CALC:FORM " + tok)
}

/*Measure takes a single sweep of trace and returns it against frequency.
Continuous sweeping is stopped for the sweep and resumed afterwards, also
when the sweep fails.
*/
func (f *FieldFox) Measure(trace int) (spec oscilloscope.Spectrum, err error) {
	if trace < 1 || trace > 4 {
		return spec, &scpi.InvalidArgument{Setting: "trace", Value: trace, Domain: "in [1, 4]"}
	}
	n, err := f.ReadInt("SENS:SWEEP:POINTS?")
	if err != nil {
		return spec, err
	}
	start, err := f.ReadFloat("SENS:FREQ:STAR?")
	if err != nil {
		return spec, err
	}
	stop, err := f.ReadFloat("SENS:FREQ:STOP?")
	if err != nil {
		return spec, err
	}
	if n < 2 {
		return spec, fmt.Errorf("fieldfox reports %d sweep points", n)
	}
	if spec.YUnit, err = f.ReadString("CALC:FORM?"); err != nil {
		return spec, err
	}
	if err = f.Write("INIT:CONT 0"); err != nil {
		return spec, err
	}
	defer func() {
		if rerr := f.Write("INIT:CONT 1"); err == nil {
			err = rerr
		}
	}()
	if _, err = f.Query("INIT:IMM;*OPC?"); err != nil {
		return spec, err
	}
	if err = f.Write(fmt.Sprintf("CALC:PAR%d:SEL", trace)); err != nil {
		return spec, err
	}
	resp, err := f.Query("CALC:DATA:FDATa?")
	if err != nil {
		return spec, err
	}
	mags, err := parseFloats(resp)
	if err != nil {
		return spec, err
	}
	if len(mags) < n {
		return spec, fmt.Errorf("fieldfox returned %d of %d points", len(mags), n)
	}
	spec.X = mathx.Linspace(start, stop, n)
	spec.Y = mags[:n]
	spec.XUnit = "Hz"
	return spec, nil
}

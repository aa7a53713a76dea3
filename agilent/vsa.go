package agilent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/oscilloscope"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

// averageTypes maps the averaging modes of the 89410A to their commands
var averageTypes = scpi.NewCodeTable("average type",
	[]string{"RMS;TCON NORM", "RMS;TCON EXP", "COMP;TCON NORM", "COMP;TCON EXP", "MAX"},
	[]string{"VRMS", "ERMS", "TIME", "TEXP", "CPH"})

// TraceFormats are the coordinates a trace can be displayed in
var TraceFormats = []string{"MLIN", "MLOG", "PHAS", "UPH", "REAL", "IMAG", "GDEL", "COMP", "CONS", "IEYE", "QEYE", "TEYE"}

// feeds are the measurement data of each instrument mode, S(pectrum),
// P(ower spectral density) and F(requency response)
var feeds = map[string]map[string]string{
	"SCALAR": {"S": "XFR:POW 1", "P": "XFR:POW:PSD 1"},
	"VECTOR": {"S": "XFR:POW 1", "P": "XFR:POW:PSD 1", "F": "XFR:POW:RAT 2,1"},
}

// VSA is an 89410A vector signal analyzer.  Trace commands go to the trace
// chosen at construction.
type VSA struct {
	scpi.SCPI

	trace int
}

// NewVSA creates a new VSA instance working on trace 1 to 4
func NewVSA(s *comm.Session, trace int) (*VSA, error) {
	if trace < 1 || trace > 4 {
		return nil, &scpi.InvalidArgument{Setting: "trace", Value: trace, Domain: "in [1, 4]"}
	}
	return &VSA{SCPI: scpi.SCPI{Session: s}, trace: trace}, nil
}

// Trace returns the trace the analyzer works on
func (v *VSA) Trace() int {
	return v.trace
}

func (v *VSA) calc(format string, a ...interface{}) string {
	return fmt.Sprintf("CALCULATE%d:", v.trace) + fmt.Sprintf(format, a...)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func checkInput(ch int) error {
	if ch != 1 && ch != 2 {
		return &scpi.InvalidArgument{Setting: "input", Value: ch, Domain: "1 or 2"}
	}
	return nil
}

func (v *VSA) writeAll(cmds ...string) error {
	for _, cmd := range cmds {
		if err := v.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Calibrate runs the self calibration and returns its result, 0 on success
func (v *VSA) Calibrate() (int, error) {
	return v.ReadInt("*CAL?")
}

// Trigger sends a software trigger
func (v *VSA) Trigger() error { return v.Write("*TRG") }

// Continue resumes a paused measurement
func (v *VSA) Continue() error { return v.Write("CONTINUE") }

// Pause pauses the measurement
func (v *VSA) Pause() error { return v.Write("PAUSE") }

// Abort stops the measurement
func (v *VSA) Abort() error { return v.Write("ABORT") }

// Wait holds further commands until pending operations complete
func (v *VSA) Wait() error { return v.Write("*WAI") }

// Preset restores the factory preset
func (v *VSA) Preset() error { return v.Write("SYSTEM:PRESET") }

// SetFreeRun triggers continuously
func (v *VSA) SetFreeRun() error { return v.Write("TRIG:SOUR IMM") }

// SetDetector selects the SIGNAL, SAMPLE or POSITIVE peak detector
func (v *VSA) SetDetector(f string) error {
	tok, err := scpi.CheckEnum("detector", f, "SIGNAL", "SAMPLE", "POSITIVE")
	if err != nil {
		return err
	}
	return v.Write("SENSE:DETECTOR:FUNCTION " + tok)
}

// CCDF returns the sample count and average power of the CCDF measurement
func (v *VSA) CCDF() (count, power float64, err error) {
	if count, err = v.ReadFloat(v.calc("CCDF:COUNT?")); err != nil {
		return
	}
	power, err = v.ReadFloat(v.calc("CCDF:POWER?"))
	return
}

// SetFastAverage shows only the final result of an average rather than each step
func (v *VSA) SetFastAverage(on bool) error {
	if on {
		return v.Write("AVERAGE:IRES 1")
	}
	return v.Write("AVERAGE:IRES 0")
}

// AverageProgress returns the number of averages taken and the number asked for
func (v *VSA) AverageProgress() (done, total int, err error) {
	if done, err = v.ReadInt("SENSE:AVERAGE:COUNT:INTERMEDIATE?"); err != nil {
		return
	}
	total, err = v.ReadInt("SENSE:AVERAGE:COUNT?")
	return
}

// WaitForAverage blocks until the running average is complete
func (v *VSA) WaitForAverage(ctx context.Context, timeout time.Duration) error {
	status := func() ([2]int, error) {
		d, t, err := v.AverageProgress()
		return [2]int{d, t}, err
	}
	complete := func(p [2]int) bool { return p[0] >= p[1] }
	_, err := verify.PollUntil(ctx, "average", status, complete, 250*time.Millisecond, timeout)
	return err
}

// SetMeasurement sets the instrument mode, SCALAR or VECTOR, and the data the
// trace is fed from: S(pectrum), P(ower spectral density) or, in vector
// mode, F(requency response)
func (v *VSA) SetMeasurement(mode, measurement string) error {
	mode, err := scpi.CheckEnum("mode", mode, "SCALAR", "VECTOR")
	if err != nil {
		return err
	}
	feed, ok := feeds[mode][strings.ToUpper(measurement)]
	if !ok {
		return &scpi.InvalidArgument{Setting: "measurement", Value: measurement, Domain: "S, P or, in vector mode, F"}
	}
	return v.writeAll("INSTRUMENT "+mode, v.calc("FEED '%s'", feed))
}

// Measurement returns the data the trace is fed from
func (v *VSA) Measurement() (string, error) {
	resp, err := v.ReadString(v.calc("FEED?"))
	return strings.Trim(resp, `"'`), err
}

// SetFormat sets the trace coordinates, one of TraceFormats
func (v *VSA) SetFormat(f string) error {
	tok, err := scpi.CheckEnum("trace format", f, TraceFormats...)
	if err != nil {
		return err
	}
	return v.Write(v.calc("FORMAT " + tok))
}

// Format returns the trace coordinates
func (v *VSA) Format() (string, error) {
	return v.ReadString(v.calc("FORMAT?"))
}

// SetMarkerBand sets the left (start) or right (stop) edge of the band marker
func (v *VSA) SetMarkerBand(right bool, pos float64) error {
	edge := "START"
	if right {
		edge = "STOP"
	}
	return v.Write(v.calc("MARKER:BAND:%s %s", edge, sci(pos)))
}

// SetMarkerCoupling couples the markers of all traces
func (v *VSA) SetMarkerCoupling(on bool) error {
	return v.Write(v.calc("MARKER:COUPLED " + onOff(on)))
}

// SetFrequencyCount turns the marker frequency counter on or off
func (v *VSA) SetFrequencyCount(on bool) error {
	return v.Write(v.calc("MARKER:FCOUNT " + onOff(on)))
}

// FrequencyCount returns the counted frequency at the marker in Hz
func (v *VSA) FrequencyCount() (float64, error) {
	return v.ReadFloat(v.calc("MARKER:FCOUNT:RESULT?"))
}

// MarkerMoves are the peak searches MoveMarker accepts
var MarkerMoves = []string{"MAX", "MIN", "LEFT", "RIGHT", "NEXT"}

// MoveMarker moves the marker to the maximum or minimum of the trace, or to
// the next peak to the LEFT, RIGHT or below (NEXT) the current one
func (v *VSA) MoveMarker(move string) error {
	tok, err := scpi.CheckEnum("marker move", move, MarkerMoves...)
	if err != nil {
		return err
	}
	switch tok {
	case "MAX":
		return v.Write(v.calc("MARKER:MAXIMUM"))
	case "MIN":
		return v.Write(v.calc("MARKER:MINIMUM"))
	}
	return v.Write(v.calc("MARKER:MAXIMUM:" + tok))
}

// SetPeakTracking keeps the marker on the maximum of the trace
func (v *VSA) SetPeakTracking(on bool) error {
	return v.Write(v.calc("MARKER:MAXIMUM:TRACK " + onOff(on)))
}

// SetCoupling selects AC or DC coupling of an input
func (v *VSA) SetCoupling(ch int, dc bool) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	coup := "AC"
	if dc {
		coup = "DC"
	}
	return v.Write(fmt.Sprintf("INPUT%d:COUPLING %s", ch, coup))
}

// SetImpedance sets the impedance of an input to 50, 75 or 1e6 Ohm
func (v *VSA) SetImpedance(ch int, ohms float64) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	if ohms != 50 && ohms != 75 && ohms != 1e6 {
		return &scpi.InvalidArgument{Setting: "impedance", Value: ohms, Domain: "50, 75 or 1e6"}
	}
	return v.Write(fmt.Sprintf("INPUT%d:IMPEDANCE %s", ch, strconv.FormatFloat(ohms, 'g', -1, 64)))
}

// SetInput turns an input on or off
func (v *VSA) SetInput(ch int, on bool) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	return v.Write(fmt.Sprintf("INPUT%d %s", ch, onOff(on)))
}

// SetAverage turns averaging off, or on with one of the types VRMS, ERMS
// (exponential rms), TIME, TEXP (exponential time) or CPH (continuous peak
// hold) over count measurements
func (v *VSA) SetAverage(on bool, typ string, count int) error {
	if !on {
		return v.Write("AVERAGE OFF")
	}
	cmd, err := averageTypes.Code(strings.ToUpper(typ))
	if err != nil {
		return err
	}
	if count < 1 || count > 99999 {
		return &scpi.InvalidArgument{Setting: "average count", Value: count, Domain: "in [1, 99999]"}
	}
	return v.writeAll("AVERAGE ON", "AVERAGE:TYPE "+cmd, "AVERAGE:COUNT "+strconv.Itoa(count))
}

// SetSpan sets the frequency span and center in Hz
func (v *VSA) SetSpan(span, center float64) error {
	return v.writeAll("FREQUENCY:SPAN "+sci(span), "FREQUENCY:CENTER "+sci(center))
}

// SetStartStop sets the start and stop frequencies in Hz
func (v *VSA) SetStartStop(start, stop float64) error {
	if stop <= start {
		return &scpi.InvalidArgument{Setting: "stop frequency", Value: stop, Domain: "above the start frequency"}
	}
	return v.writeAll("FREQUENCY:START "+sci(start), "FREQUENCY:STOP "+sci(stop))
}

// SetGain sets the loss correction of an input, a linear factor in [1e-6, 1e6]
func (v *VSA) SetGain(ch int, gain float64) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	if err := scpi.CheckRange("gain", gain, 1e-6, 1e6); err != nil {
		return err
	}
	return v.Write(fmt.Sprintf("CORRECTION%d:LOSS:MAGNITUDE %s", ch, sci(gain)))
}

// SetDCOffset sets the DC offset correction of an input in V
func (v *VSA) SetDCOffset(ch int, volts float64) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	if err := scpi.CheckRange("dc offset", volts, -20, 20); err != nil {
		return err
	}
	return v.Write(fmt.Sprintf("CORRECTION%d:OFFS %s", ch, sci(volts)))
}

// parseFloats parses a comma separated ASCII array
func parseFloats(resp string) ([]float64, error) {
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return nil, nil
	}
	fields := strings.Split(resp, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("element %d of array: %w", i, err)
		}
		out[i] = x
	}
	return out, nil
}

// Spectrum reads the trace, with its x axis and x unit
func (v *VSA) Spectrum() (oscilloscope.Spectrum, error) {
	var spec oscilloscope.Spectrum
	tr := fmt.Sprintf(" TRACE%d", v.trace)
	unit, err := v.ReadString("TRACE:X:UNIT?" + tr)
	if err != nil {
		return spec, err
	}
	spec.XUnit = strings.Trim(strings.TrimSpace(unit), `"`)
	if spec.YUnit, err = v.Format(); err != nil {
		return spec, err
	}
	resp, err := v.Query("TRACE:X?" + tr)
	if err != nil {
		return spec, err
	}
	if spec.X, err = parseFloats(resp); err != nil {
		return spec, err
	}
	if resp, err = v.Query(v.calc("DATA?")); err != nil {
		return spec, err
	}
	if spec.Y, err = parseFloats(resp); err != nil {
		return spec, err
	}
	if len(spec.X) != len(spec.Y) {
		return spec, fmt.Errorf("89410A returned %d x values for %d y values", len(spec.X), len(spec.Y))
	}
	return spec, nil
}

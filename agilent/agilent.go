// Package agilent provides an interface to agilent test and measurement equipment,
// and to the Rigol generators that speak the same dialect of SCPI
package agilent

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/mathx"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

// ErrUnsupported is generated when a dialect has no equivalent of a command
var ErrUnsupported = errors.New("not supported by this generator")

// Dialect is the command set of a function generator
type Dialect int

const (
	// Agilent33522A is the 30 MHz two channel Agilent/Keysight generator
	Agilent33522A Dialect = iota

	// RigolDG5000 is the Rigol DG5000 series
	RigolDG5000
)

func (d Dialect) String() string {
	if d == RigolDG5000 {
		return "Rigol DG5000"
	}
	return "Agilent 33522A"
}

// maxFrequency is the highest sine frequency of the dialect
func (d Dialect) maxFrequency() float64 {
	if d == RigolDG5000 {
		return 350e6
	}
	return 30e6
}

const (
	// MaxArbSampleRate is the fastest an arbitrary waveform can be clocked on the 33522A
	MaxArbSampleRate = 250e6

	// arbPoints is the number of points a waveform is resampled to on the 33522A
	arbPoints = 1 << 14
)

// FunctionGenerator is an interface to hardware of the same name.  Channels
// are numbered from 1.
type FunctionGenerator struct {
	scpi.SCPI

	Dialect Dialect
}

// NewFunctionGenerator creates a new FunctionGenerator instance.  Writes to
// the 33522A are handshaked, see scpi.SCPI.
func NewFunctionGenerator(s *comm.Session, d Dialect) *FunctionGenerator {
	return &FunctionGenerator{SCPI: scpi.SCPI{Session: s, Handshaking: d == Agilent33522A}, Dialect: d}
}

func checkChannel(ch int) error {
	if ch != 1 && ch != 2 {
		return &scpi.InvalidArgument{Setting: "channel", Value: ch, Domain: "1 or 2"}
	}
	return nil
}

func sci(v float64) string {
	return strconv.FormatFloat(v, 'e', 6, 64)
}

// writef checks the channel and sends the formatted command
func (f *FunctionGenerator) writef(ch int, format string, a ...interface{}) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	return f.Write(fmt.Sprintf(format, a...))
}

// queryFloat parses a numeric response, the Rigol appends units (1.0VPP)
func (f *FunctionGenerator) queryFloat(cmd string) (float64, error) {
	resp, err := f.Query(cmd)
	if err != nil {
		return 0, err
	}
	resp = strings.TrimRightFunc(strings.TrimSpace(resp), unicode.IsLetter)
	return strconv.ParseFloat(resp, 64)
}

// SetTrigger selects an external or immediate (internal/manual) trigger and
// the delay after it in seconds
func (f *FunctionGenerator) SetTrigger(ch int, external bool, delay float64) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if f.Dialect == RigolDG5000 {
		src := "MAN"
		if external {
			src = "EXT"
		}
		if err := f.writef(ch, ":SOUR%d:BURS:TRIG:SOUR %s", ch, src); err != nil {
			return err
		}
		return f.writef(ch, ":SOUR%d:BURS:TDEL %s", ch, sci(delay))
	}
	src := "IMM"
	if external {
		src = "EXT"
	}
	if err := f.writef(ch, "TRIG%d:SOUR %s", ch, src); err != nil {
		return err
	}
	return f.writef(ch, "TRIG%d:DEL %s", ch, sci(delay))
}

// TriggerNow sends a software trigger
func (f *FunctionGenerator) TriggerNow(ch int) error {
	if f.Dialect == RigolDG5000 {
		return f.writef(ch, "SOUR%d:BURS:TRIG:IMM", ch)
	}
	return f.writef(ch, "TRIG%d", ch)
}

// Frequency returns the output frequency in Hz
func (f *FunctionGenerator) Frequency(ch int) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	return f.queryFloat(fmt.Sprintf("SOUR%d:FREQ?", ch))
}

// SetFrequency sets the output frequency in Hz
func (f *FunctionGenerator) SetFrequency(ch int, hz float64) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	freq := scpi.Setting{
		Name:      "frequency",
		Prefix:    fmt.Sprintf("SOUR%d:FREQ ", ch),
		Format:    scpi.Scientific,
		Precision: 6,
		Range:     &scpi.Range{Min: 1e-6, Max: f.Dialect.maxFrequency()}}
	if _, err := freq.Encode(hz); err != nil {
		return err
	}
	set := func(v float64) error {
		cmd, err := freq.Encode(v)
		if err != nil {
			return err
		}
		return f.Write(cmd)
	}
	get := func() (float64, error) { return f.Frequency(ch) }
	return verify.SetAndVerify("frequency", set, get, hz, freq.Tolerance(hz), verify.DefaultAttempts)
}

// SetPeriod sets the output period in seconds
func (f *FunctionGenerator) SetPeriod(ch int, seconds float64) error {
	if seconds <= 0 {
		return &scpi.InvalidArgument{Setting: "period", Value: seconds, Domain: "positive"}
	}
	return f.writef(ch, "SOUR%d:PER %s", ch, sci(seconds))
}

// Amplitude returns the peak to peak amplitude in V
func (f *FunctionGenerator) Amplitude(ch int) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	return f.queryFloat(fmt.Sprintf("SOUR%d:VOLT?", ch))
}

func (f *FunctionGenerator) writeAmplitude(ch int, vpp float64) error {
	return f.writef(ch, "SOUR%d:VOLT %s", ch, sci(vpp))
}

// SetAmplitude sets the peak to peak amplitude in V
func (f *FunctionGenerator) SetAmplitude(ch int, vpp float64) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := scpi.CheckRange("amplitude", vpp, 1e-3, 20); err != nil {
		return err
	}
	set := func(v float64) error { return f.writeAmplitude(ch, v) }
	get := func() (float64, error) { return f.Amplitude(ch) }
	tol := scpi.Setting{Format: scpi.Scientific, Precision: 6}.Tolerance(vpp)
	return verify.SetAndVerify("amplitude", set, get, vpp, tol, verify.DefaultAttempts)
}

// SetOffset sets the DC offset in V
func (f *FunctionGenerator) SetOffset(ch int, volts float64) error {
	return f.writef(ch, "SOUR%d:VOLT:OFFS %s", ch, sci(volts))
}

// SetOutput turns the front panel output on or off
func (f *FunctionGenerator) SetOutput(ch int, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return f.writef(ch, "OUTPUT%d %s", ch, state)
}

// SetLoad sets the load impedance the amplitude is calibrated for.  Use
// math.Inf(1) for high impedance.
func (f *FunctionGenerator) SetLoad(ch int, ohms float64) error {
	if math.IsInf(ohms, 1) {
		return f.writef(ch, "OUTP%d:LOAD INF", ch)
	}
	if err := scpi.CheckRange("load", ohms, 1, 10e3); err != nil {
		return err
	}
	return f.writef(ch, "OUTP%d:LOAD %s", ch, strconv.FormatFloat(ohms, 'f', -1, 64))
}

// SetPolarity inverts the output, or restores it
func (f *FunctionGenerator) SetPolarity(ch int, inverted bool) error {
	pol := "NORM"
	if inverted {
		pol = "INV"
	}
	return f.writef(ch, "OUTP%d:POL %s", ch, pol)
}

// SetHighLow sets the output levels.  high below low is produced by inverting
// the output.
func (f *FunctionGenerator) SetHighLow(ch int, low, high float64) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if high == low {
		return &scpi.InvalidArgument{Setting: "high level", Value: high, Domain: "different from the low level"}
	}
	if err := f.writeAmplitude(ch, math.Abs(high-low)); err != nil {
		return err
	}
	if err := f.SetOffset(ch, (high+low)/2); err != nil {
		return err
	}
	return f.SetPolarity(ch, high < low)
}

// SetupSine configures a sine wave.  phase is in degrees.
func (f *FunctionGenerator) SetupSine(ch int, freq, vpp, offset, phase float64) error {
	return f.apply(ch, "SIN", freq, vpp, offset, phase)
}

// SetupSquare configures a square wave.  phase is in degrees.
func (f *FunctionGenerator) SetupSquare(ch int, freq, vpp, offset, phase float64) error {
	return f.apply(ch, "SQU", freq, vpp, offset, phase)
}

// apply sends an APPL command; the 33522A takes no phase in it and gets a
// separate PHAS command
func (f *FunctionGenerator) apply(ch int, shape string, freq, vpp, offset, phase float64) error {
	if f.Dialect == RigolDG5000 {
		return f.writef(ch, "SOUR%d:APPL:%s %s, %s, %s, %s", ch, shape, sci(freq), sci(vpp), sci(offset), sci(phase))
	}
	if err := f.writef(ch, "SOUR%d:APPL:%s %s, %s, %s", ch, shape, sci(freq), sci(vpp), sci(offset)); err != nil {
		return err
	}
	return f.writef(ch, "SOUR%d:PHAS %s", ch, sci(phase))
}

// SetupRamp configures a ramp, symmetry is the percentage of the period spent rising
func (f *FunctionGenerator) SetupRamp(ch int, freq, vpp, offset, symmetry float64) error {
	if err := scpi.CheckRange("symmetry", symmetry, 0, 100); err != nil {
		return err
	}
	if err := f.writef(ch, "SOUR%d:APPL:RAMP %s, %s, %s", ch, sci(freq), sci(vpp), sci(offset)); err != nil {
		return err
	}
	return f.writef(ch, "SOUR%d:FUNC:RAMP:SYMM %s", ch, strconv.FormatFloat(symmetry, 'f', -1, 64))
}

// Pulse describes a pulse train
type Pulse struct {
	Freq  float64 `json:"freq"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Width float64 `json:"width"`
	Rise  float64 `json:"rise"`

	// Fall is the trailing edge time, zero uses Rise
	Fall float64 `json:"fall"`

	// Delay is only used by the Rigol
	Delay float64 `json:"delay"`
}

// SetupPulse configures a pulse train
func (f *FunctionGenerator) SetupPulse(ch int, p Pulse) error {
	vpp := p.High - p.Low
	off := (p.High + p.Low) / 2
	var err error
	if f.Dialect == RigolDG5000 {
		err = f.writef(ch, "SOUR%d:APPL:PULS %s, %s, %s, %s", ch, sci(p.Freq), sci(vpp), sci(off), sci(p.Delay))
	} else {
		err = f.writef(ch, "SOUR%d:APPL:PULS %s, %s, %s", ch, sci(p.Freq), sci(vpp), sci(off))
	}
	if err != nil {
		return err
	}
	if err = f.SetPulseWidth(ch, p.Width); err != nil {
		return err
	}
	return f.SetPulseEdges(ch, p.Rise, p.Fall)
}

// SetPulseWidth sets the pulse width in seconds
func (f *FunctionGenerator) SetPulseWidth(ch int, width float64) error {
	if width <= 0 {
		return &scpi.InvalidArgument{Setting: "pulse width", Value: width, Domain: "positive"}
	}
	return f.writef(ch, "SOUR%d:PULS:WIDT %s", ch, sci(width))
}

// SetPulseEdges sets the leading and trailing edge times.  A zero fall time
// uses the rise time.
func (f *FunctionGenerator) SetPulseEdges(ch int, rise, fall float64) error {
	if fall == 0 {
		fall = rise
	}
	if err := f.writef(ch, "SOUR%d:PULS:TRAN:LEAD %s", ch, sci(rise)); err != nil {
		return err
	}
	return f.writef(ch, "SOUR%d:PULS:TRAN:TRA %s", ch, sci(fall))
}

// SetupDC configures a constant output
func (f *FunctionGenerator) SetupDC(ch int, volts float64) error {
	var err error
	if f.Dialect == RigolDG5000 {
		err = f.writef(ch, "SOUR%d:FUNC:SHAP DC", ch)
	} else {
		err = f.writef(ch, "SOUR%d:FUNC DC", ch)
	}
	if err != nil {
		return err
	}
	return f.SetOffset(ch, volts)
}

// Burst configures triggered bursts on the Rigol
type Burst struct {
	Enable bool `json:"enable"`
	Cycles int  `json:"cycles"`

	// Phase is the start phase in degrees
	Phase int `json:"phase"`

	// Trigger is INT, EXT or MAN
	Trigger string `json:"trigger"`

	// Delay is the delay after the trigger, Period the interval between
	// bursts when Trigger is INT, both in seconds
	Delay  float64 `json:"delay"`
	Period float64 `json:"period"`
}

// SetBurst configures burst mode.  It is only supported on the Rigol.
func (f *FunctionGenerator) SetBurst(ch int, b Burst) error {
	if f.Dialect != RigolDG5000 {
		return ErrUnsupported
	}
	if err := checkChannel(ch); err != nil {
		return err
	}
	if !b.Enable {
		return f.writef(ch, ":SOUR%d:BURS:STAT OFF", ch)
	}
	trig, err := scpi.CheckEnum("burst trigger", b.Trigger, "INT", "EXT", "MAN")
	if err != nil {
		return err
	}
	if b.Cycles < 1 {
		return &scpi.InvalidArgument{Setting: "burst cycles", Value: b.Cycles, Domain: "at least 1"}
	}
	cmds := []string{
		fmt.Sprintf(":SOUR%d:BURS:STAT ON", ch),
		fmt.Sprintf(":SOUR%d:BURS:MODE TRIG", ch),
		fmt.Sprintf(":SOUR%d:BURS:NCYC %d", ch, b.Cycles),
		fmt.Sprintf(":SOUR%d:BURS:PHAS %d", ch, b.Phase),
		fmt.Sprintf(":SOUR%d:BURS:TRIG:SOUR %s", ch, trig),
	}
	if trig == "INT" {
		cmds = append(cmds, fmt.Sprintf(":SOUR%d:BURS:INT:PER %s", ch, sci(b.Period)))
	}
	cmds = append(cmds, fmt.Sprintf(":SOUR%d:BURS:TDEL %s", ch, sci(b.Delay)))
	for _, cmd := range cmds {
		if err := f.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// normalize resamples (t, v) onto n equally spaced points and scales them to
// [-1, 1].  It returns the points and the peak to peak and offset of v.
func normalize(t, v []float64, n int) (pts []float64, vpp, offset float64, err error) {
	if len(t) != len(v) || len(t) < 2 {
		return nil, 0, 0, &scpi.InvalidArgument{Setting: "waveform", Value: len(t), Domain: "at least two (t, v) pairs of equal length"}
	}
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if hi == lo {
		return nil, 0, 0, &scpi.InvalidArgument{Setting: "waveform", Value: hi, Domain: "not constant"}
	}
	ts := mathx.Linspace(t[0], t[len(t)-1], n)
	pts = make([]float64, n)
	for i, x := range ts {
		pts[i] = 2*(mathx.Interp(x, t, v)-lo)/(hi-lo) - 1
	}
	return pts, hi - lo, (hi + lo) / 2, nil
}

func joinPoints(pts []float64, sep string) string {
	strs := make([]string, len(pts))
	for i, p := range pts {
		strs[i] = strconv.FormatFloat(p, 'f', 3, 64)
	}
	return strings.Join(strs, sep)
}

/*SetArbitrary uploads an arbitrary waveform given as voltages v at times t.
The waveform is resampled to n equally spaced points and scaled to +/-1.

On the 33522A the sample rate is set so the waveform plays at the times
given, and the amplitude and offset are set to reproduce v; the sample rate
may not exceed MaxArbSampleRate.  n of zero uses 16384 points.  On the
Rigol the waveform is loaded into volatile memory with linear interpolation,
and amplitude and frequency are left to the caller.
*/
func (f *FunctionGenerator) SetArbitrary(ch int, t, v []float64, n int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if n == 0 {
		n = arbPoints
	}
	if n < 2 {
		return &scpi.InvalidArgument{Setting: "points", Value: n, Domain: "at least 2"}
	}
	pts, vpp, offset, err := normalize(t, v, n)
	if err != nil {
		return err
	}
	if f.Dialect == RigolDG5000 {
		// selects the channel the DATA command goes to
		amp, err := f.Amplitude(ch)
		if err != nil {
			return err
		}
		if err = f.writeAmplitude(ch, amp); err != nil {
			return err
		}
		if err = f.Write("DATA VOLATILE," + joinPoints(pts, ",")); err != nil {
			return err
		}
		return f.Write("DATA:POIN:INT LIN")
	}
	total := t[len(t)-1] - t[0]
	rate := float64(n) / total
	if total <= 0 || rate > MaxArbSampleRate {
		return &scpi.InvalidArgument{Setting: "sample rate", Value: rate, Domain: fmt.Sprintf("at most %g Sa/s", MaxArbSampleRate)}
	}
	name := fmt.Sprintf("TEMPARB%d", ch)
	cmds := []string{
		fmt.Sprintf("SOUR%d:FUNC ARB", ch),
		fmt.Sprintf("SOUR%d:DATA:VOL:CLE", ch),
		fmt.Sprintf("SOUR%d:DATA:ARB %s, %s", ch, name, joinPoints(pts, ", ")),
		fmt.Sprintf("SOUR%d:FUNC:ARB %s", ch, name),
		fmt.Sprintf("SOUR%d:FUNC:ARB:SRAT %s", ch, sci(rate)),
	}
	prev := f.Session.Timeout
	f.Session.Timeout = 20 * time.Second
	defer func() { f.Session.Timeout = prev }()
	for _, cmd := range cmds {
		if err := f.Write(cmd); err != nil {
			return err
		}
	}
	if err = f.writeAmplitude(ch, vpp); err != nil {
		return err
	}
	return f.SetOffset(ch, offset)
}

// SyncArbs restarts the arbitrary waveforms of both channels together
func (f *FunctionGenerator) SyncArbs() error {
	if f.Dialect == RigolDG5000 {
		return ErrUnsupported
	}
	return f.Write("SOUR:FUNC:ARB:SYNC")
}

// AlignPhase aligns the phase of the channels
func (f *FunctionGenerator) AlignPhase(ch int) error {
	if f.Dialect == RigolDG5000 {
		// the Rigol ignores the command while still applying an earlier setting
		time.Sleep(500 * time.Millisecond)
		return f.writef(ch, ":SOUR%d:PHAS:INIT", ch)
	}
	return f.writef(ch, "SOUR%d:PHAS:SYNC", ch)
}

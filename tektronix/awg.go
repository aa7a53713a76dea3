// Package tektronix provides an interface to Tektronix arbitrary waveform
// generators.  The AWG610, AWG7101 and AWG7000 series share one driver; the
// Dialect picks the command forms and waveform format.
package tektronix

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/mathx"
	"github.com/amcc/golab/scpi"
)

// ErrUnsupported is generated when a dialect has no equivalent of a command
var ErrUnsupported = errors.New("not supported by this generator")

// Dialect is the command set of a generator
type Dialect int

const (
	// AWG610 is the 2.6 GS/s AWG610, which also has a function generator mode
	AWG610 Dialect = iota

	// AWG7101 is the single channel 10 GS/s AWG7101 driven with WFM files
	AWG7101

	// AWG7000 is the AWG7000 series driven through its waveform list
	AWG7000
)

func (d Dialect) String() string {
	switch d {
	case AWG7101:
		return "Tektronix AWG7101"
	case AWG7000:
		return "Tektronix AWG7000"
	default:
		return "Tektronix AWG610"
	}
}

func (d Dialect) channels() int {
	if d == AWG7000 {
		return 2
	}
	return 1
}

func (d Dialect) clockRange() *scpi.Range {
	switch d {
	case AWG7101:
		return &scpi.Range{Min: 10e6, Max: 10.1e9}
	case AWG7000:
		return &scpi.Range{Min: 10e6, Max: 12e9}
	default:
		return &scpi.Range{Min: 50e3, Max: 2.6e9}
	}
}

// fileBased is true for dialects that load waveforms from WFM files in mass memory
func (d Dialect) fileBased() bool {
	return d != AWG7000
}

const (
	// MinWFMPoints is the shortest waveform a WFM file may hold; the length
	// must also be a multiple of WFMGranularity
	MinWFMPoints = 512

	// WFMGranularity is the multiple a WFM file's length must be
	WFMGranularity = 8

	// MaxListPoints is the longest waveform the AWG7000 waveform list accepts
	MaxListPoints = 650000000

	// syncPoints is the length of the marker 2 sync pulse the AWG7101 adds
	syncPoints = 256

	// uploadTimeout bounds the write of a waveform or sequence
	uploadTimeout = 30 * time.Second
)

// lowpass maps the filter bandwidths to their rendering; +Inf is no filter
var lowpass = scpi.NewCodeTable("lowpass filter",
	[]string{"2.0E+07", "5.0E+07", "1.0E+08", "2.0E+08", "9.9E+37"},
	[]float64{20e6, 50e6, 100e6, 200e6, math.Inf(1)})

func sci(v float64) string {
	return strconv.FormatFloat(v, 'e', 3, 64)
}

// AWG is an arbitrary waveform generator.  Channels and markers are numbered from 1.
type AWG struct {
	scpi.SCPI

	Dialect Dialect

	// fg is true while an AWG610 is in function generator mode
	fg bool
}

// NewAWG creates a new AWG instance
func NewAWG(s *comm.Session, d Dialect) *AWG {
	return &AWG{SCPI: scpi.SCPI{Session: s}, Dialect: d}
}

func (a *AWG) checkChannel(ch int) error {
	if ch < 1 || ch > a.Dialect.channels() {
		return &scpi.InvalidArgument{Setting: "channel", Value: ch, Domain: fmt.Sprintf("in [1, %d]", a.Dialect.channels())}
	}
	return nil
}

// source is the prefix of the commands addressed to a channel
func (a *AWG) source(ch int) string {
	if a.Dialect == AWG7101 {
		return ":"
	}
	return fmt.Sprintf("SOUR%d:", ch)
}

func (a *AWG) writeAll(cmds ...string) error {
	for _, cmd := range cmds {
		if err := a.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// TriggerNow sends a software trigger
func (a *AWG) TriggerNow() error {
	return a.Write("*TRG")
}

// SetFunctionGeneratorMode switches an AWG610 between function generator and
// arbitrary waveform modes.  Clock and amplitude commands follow the mode.
func (a *AWG) SetFunctionGeneratorMode(on bool) error {
	if a.Dialect != AWG610 {
		return ErrUnsupported
	}
	cmd := "AWGC:FG 0"
	if on {
		cmd = "AWGC:FG 1"
	}
	if err := a.Write(cmd); err != nil {
		return err
	}
	a.fg = on
	return nil
}

// FunctionGeneratorMode returns true if the generator is in function generator mode
func (a *AWG) FunctionGeneratorMode() bool {
	return a.fg
}

// SetClock sets the sample clock in Hz, or the output frequency in function
// generator mode
func (a *AWG) SetClock(hz float64) error {
	prefix := ":FREQuency "
	switch {
	case a.fg:
		prefix = "AWGControl:FG:FREQ "
	case a.Dialect == AWG610:
		prefix = "SOURce1:FREQuency "
	}
	s := scpi.Setting{Name: "clock", Prefix: prefix, Format: scpi.Scientific, Precision: 3, Range: a.Dialect.clockRange()}
	cmd, err := s.Encode(hz)
	if err != nil {
		return err
	}
	return a.Write(cmd)
}

// SetAmplitude sets the peak to peak amplitude of a channel in V
func (a *AWG) SetAmplitude(ch int, vpp float64) error {
	if err := a.checkChannel(ch); err != nil {
		return err
	}
	if err := scpi.CheckRange("amplitude", vpp, 0, 4.5); err != nil {
		return err
	}
	switch {
	case a.fg:
		return a.Write(fmt.Sprintf("AWGControl:FG%d:VOLT %s", ch, sci(vpp)))
	case a.Dialect == AWG7000:
		return a.Write(fmt.Sprintf("SOUR%d:VOLT:AMPLITUDE %s", ch, sci(vpp)))
	}
	return a.Write(a.source(ch) + "VOLT " + sci(vpp))
}

// SetOffset sets the DC offset of a channel in V
func (a *AWG) SetOffset(ch int, volts float64) error {
	if err := a.checkChannel(ch); err != nil {
		return err
	}
	switch {
	case a.fg:
		return a.Write(fmt.Sprintf("AWGControl:FG%d:VOLT:OFFS %s", ch, sci(volts)))
	case a.Dialect == AWG7000:
		return a.Write(fmt.Sprintf(":SOUR%d:VOLT:OFFSET %s", ch, sci(volts)))
	}
	return a.Write(a.source(ch) + "VOLT:OFFS " + sci(volts))
}

// SetHighLow sets the output levels through the offset and amplitude
func (a *AWG) SetHighLow(ch int, low, high float64) error {
	if high <= low {
		return &scpi.InvalidArgument{Setting: "high level", Value: high, Domain: "above the low level"}
	}
	if err := a.SetOffset(ch, (low+high)/2); err != nil {
		return err
	}
	return a.SetAmplitude(ch, high-low)
}

func checkMarker(m int) error {
	if m != 1 && m != 2 {
		return &scpi.InvalidArgument{Setting: "marker", Value: m, Domain: "1 or 2"}
	}
	return nil
}

// SetMarkerLevels sets the low and high levels of a marker output in V.  The
// AWG7101 has one marker.
func (a *AWG) SetMarkerLevels(ch, marker int, low, high float64) error {
	if err := a.checkChannel(ch); err != nil {
		return err
	}
	if err := checkMarker(marker); err != nil {
		return err
	}
	if a.Dialect == AWG7101 && marker != 1 {
		return ErrUnsupported
	}
	pre := fmt.Sprintf("%sMARK%d:VOLT:", a.source(ch), marker)
	return a.writeAll(pre+"LOW "+sci(low), pre+"HIGH "+sci(high))
}

// SetMarkerDelay delays a marker output by up to 1.5 ns
func (a *AWG) SetMarkerDelay(ch, marker int, delay float64) error {
	if a.Dialect == AWG7000 {
		return ErrUnsupported
	}
	if err := a.checkChannel(ch); err != nil {
		return err
	}
	if err := checkMarker(marker); err != nil {
		return err
	}
	if a.Dialect == AWG7101 && marker != 1 {
		return ErrUnsupported
	}
	s := scpi.Setting{
		Name:      "marker delay",
		Prefix:    fmt.Sprintf("%sMARK%d:DEL ", a.source(ch), marker),
		Format:    scpi.Scientific,
		Precision: 3,
		Range:     &scpi.Range{Min: 0, Max: 1.5e-9}}
	cmd, err := s.Encode(delay)
	if err != nil {
		return err
	}
	return a.Write(cmd)
}

// RunModes are the run modes SetRunMode accepts
var RunModes = []string{"TRIG", "CONT", "ENH"}

// SetRunMode selects triggered, continuous or enhanced (sequence) playback
func (a *AWG) SetRunMode(mode string) error {
	tok, err := scpi.CheckEnum("run mode", mode, RunModes...)
	if err != nil {
		return err
	}
	return a.Write("AWGControl:RMODE " + tok)
}

// SetOutput turns a channel's output on or off, then starts or stops playback
func (a *AWG) SetOutput(ch int, on, run bool) error {
	if err := a.checkChannel(ch); err != nil {
		return err
	}
	state, ctl := "OFF", "AWGControl:STOP"
	if on {
		state = "ON"
	}
	if run {
		ctl = "AWGControl:RUN"
	}
	return a.writeAll(fmt.Sprintf("OUTPUT%d:STATE %s", ch, state), ctl)
}

// SetLowpass selects the output filter bandwidth in Hz; zero or +Inf removes the filter
func (a *AWG) SetLowpass(ch int, hz float64) error {
	if a.Dialect == AWG7000 {
		return ErrUnsupported
	}
	if err := a.checkChannel(ch); err != nil {
		return err
	}
	if hz == 0 {
		hz = math.Inf(1)
	}
	code, err := lowpass.Code(hz)
	if err != nil {
		return err
	}
	return a.Write(fmt.Sprintf("OUTPUT%d:FILTER:LPASS:FREQ %s", ch, code))
}

// SetDACResolution sets the DAC resolution of an AWG7000 to 8 or 10 bits.
// Waveforms are uploaded in the 8 bit format.
func (a *AWG) SetDACResolution(bits int) error {
	if a.Dialect != AWG7000 {
		return ErrUnsupported
	}
	if bits != 8 && bits != 10 {
		return &scpi.InvalidArgument{Setting: "DAC resolution", Value: bits, Domain: "8 or 10"}
	}
	return a.Write(":DAC:RESolution " + strconv.Itoa(bits))
}

// Waveform is one arbitrary waveform and its markers
type Waveform struct {
	// Voltages are the normalized samples, each in [-1, 1]
	Voltages []float64 `json:"voltages"`

	// Marker1 and Marker2, if not nil, have one entry per sample
	Marker1 []bool `json:"marker1,omitempty"`
	Marker2 []bool `json:"marker2,omitempty"`

	// Clock, if not zero, is stored in a WFM file as its sample clock in Hz
	Clock float64 `json:"clock,omitempty"`

	// Pad lengthens a short waveform to the WFM length rules
	Pad bool `json:"pad,omitempty"`
}

func (w Waveform) check() error {
	n := len(w.Voltages)
	if n == 0 {
		return &scpi.InvalidArgument{Setting: "waveform", Value: n, Domain: "not empty"}
	}
	for _, v := range w.Voltages {
		if !(v >= -1 && v <= 1) {
			return &scpi.InvalidArgument{Setting: "waveform", Value: v, Domain: "in [-1, 1]"}
		}
	}
	if (w.Marker1 != nil && len(w.Marker1) != n) || (w.Marker2 != nil && len(w.Marker2) != n) {
		return &scpi.InvalidArgument{Setting: "markers", Value: n, Domain: "one per sample"}
	}
	return nil
}

// markerBits packs the two markers of sample i, marker 1 in bit 0
func (w Waveform) markerBits(i int) byte {
	var b byte
	if w.Marker1 != nil && w.Marker1[i] {
		b |= 1
	}
	if w.Marker2 != nil && w.Marker2[i] {
		b |= 2
	}
	return b
}

// padded returns a copy of w lengthened to at least MinWFMPoints and a
// multiple of WFMGranularity.  The AWG610 pads with the first sample, the
// AWG7101 with the last.
func (d Dialect) padded(w Waveform) Waveform {
	n := len(w.Voltages)
	target := n
	if target < MinWFMPoints {
		target = MinWFMPoints
	}
	if r := target % WFMGranularity; r != 0 {
		target += WFMGranularity - r
	}
	if target == n {
		return w
	}
	src := 0
	if d == AWG7101 {
		src = n - 1
	}
	out := Waveform{Clock: w.Clock, Voltages: make([]float64, target)}
	copy(out.Voltages, w.Voltages)
	for i := n; i < target; i++ {
		out.Voltages[i] = w.Voltages[src]
	}
	padBools := func(m []bool) []bool {
		if m == nil {
			return nil
		}
		p := make([]bool, target)
		copy(p, m)
		for i := n; i < target; i++ {
			p[i] = m[src]
		}
		return p
	}
	out.Marker1, out.Marker2 = padBools(w.Marker1), padBools(w.Marker2)
	return out
}

/*EncodeWFM renders w as a WFM file: a MAGIC 1000 header, one block of
little endian float32 samples each followed by a marker byte, and a CLOCK
trailer.  Without Pad the waveform must already be at least MinWFMPoints
long and a multiple of WFMGranularity.  On the AWG7101 marker 2 carries a
sync pulse over the first 256 samples unless it is given.
*/
func (d Dialect) EncodeWFM(w Waveform) ([]byte, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	if w.Pad {
		w = d.padded(w)
	}
	n := len(w.Voltages)
	if n < MinWFMPoints || n%WFMGranularity != 0 {
		return nil, &scpi.InvalidArgument{Setting: "waveform length", Value: n,
			Domain: fmt.Sprintf("at least %d and a multiple of %d", MinWFMPoints, WFMGranularity)}
	}
	sync := d == AWG7101 && w.Marker2 == nil
	body := make([]byte, 5*n)
	for i, v := range w.Voltages {
		binary.LittleEndian.PutUint32(body[5*i:], math.Float32bits(float32(v)))
		m := w.markerBits(i)
		if sync && i < syncPoints {
			m |= 2
		}
		body[5*i+4] = m
	}
	trailer := "\r\n"
	if w.Clock != 0 {
		trailer = "CLOCK " + sci(w.Clock) + "\r\n"
	}
	out := []byte("MAGIC 1000\r\n")
	out = append(out, comm.BlockHeader(len(body))...)
	out = append(out, body...)
	return append(out, trailer...), nil
}

// EncodeWords renders w in the AWG7000 8 bit integer format, one little
// endian uint16 per sample with the sample in bits 6-13 and the markers in
// bits 14 and 15
func EncodeWords(w Waveform) ([]byte, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	if len(w.Voltages) > MaxListPoints {
		return nil, &scpi.InvalidArgument{Setting: "waveform length", Value: len(w.Voltages), Domain: fmt.Sprintf("at most %d", MaxListPoints)}
	}
	out := make([]byte, 2*len(w.Voltages))
	for i, v := range w.Voltages {
		word := uint16((v+1)/2*255)<<6 | uint16(w.markerBits(i))<<14
		binary.LittleEndian.PutUint16(out[2*i:], word)
	}
	return out, nil
}

// withTimeout runs f with the session timeout raised for a long transfer
func (a *AWG) withTimeout(f func() error) error {
	prev := a.Session.Timeout
	if prev < uploadTimeout {
		a.Session.Timeout = uploadTimeout
		defer func() { a.Session.Timeout = prev }()
	}
	return f()
}

// WriteFile stores data in the generator's mass memory under name
func (a *AWG) WriteFile(name string, data []byte) error {
	if !a.Dialect.fileBased() {
		return ErrUnsupported
	}
	return a.withTimeout(func() error {
		return a.Session.WriteBlock(fmt.Sprintf("MMEMORY:DATA %q,", name), data)
	})
}

// ReadFile returns a file from the generator's mass memory
func (a *AWG) ReadFile(name string) ([]byte, error) {
	if !a.Dialect.fileBased() {
		return nil, ErrUnsupported
	}
	var buf []byte
	err := a.withTimeout(func() error {
		var err error
		buf, err = a.QueryRaw(fmt.Sprintf("MMEMORY:DATA? %q", name))
		return err
	})
	if err != nil {
		return nil, err
	}
	return comm.BlockPayload(buf)
}

// Upload stores a waveform under name, as a WFM file or in the AWG7000 waveform list
func (a *AWG) Upload(name string, w Waveform) error {
	if a.Dialect.fileBased() {
		file, err := a.Dialect.EncodeWFM(w)
		if err != nil {
			return err
		}
		return a.WriteFile(name, file)
	}
	words, err := EncodeWords(w)
	if err != nil {
		return err
	}
	if err = a.Write(fmt.Sprintf("WLIST:WAVEFORM:NEW %q, %d, INT", name, len(w.Voltages))); err != nil {
		return err
	}
	return a.withTimeout(func() error {
		return a.Session.WriteBlock(fmt.Sprintf("WLIST:WAVEFORM:DATA %q,", name), words)
	})
}

// Load selects the waveform or sequence stored under name for a channel
func (a *AWG) Load(ch int, name string) error {
	if err := a.checkChannel(ch); err != nil {
		return err
	}
	if a.Dialect == AWG7000 {
		return a.Write(fmt.Sprintf("SOUR%d:WAV %q", ch, name))
	}
	return a.Write(fmt.Sprintf("%sFUNC:USER %q", a.source(ch), name))
}

// PulseWaveform samples a trapezoidal pulse of the given width and edge time
// at rate, padded with zeros to the WFM length rules
func PulseWaveform(width, edge, volts, rate float64) (Waveform, error) {
	if width < 0 || edge < 0 || width+edge == 0 || rate <= 0 {
		return Waveform{}, &scpi.InvalidArgument{Setting: "pulse", Value: width, Domain: "a positive width or edge and sample rate"}
	}
	t := []float64{0, edge, edge + width, 2*edge + width}
	v := []float64{0, volts, volts, 0}
	n := int(t[3]*rate) + 1
	w := Waveform{Voltages: make([]float64, n)}
	for i, x := range mathx.Linspace(t[0], t[3], n) {
		w.Voltages[i] = mathx.Interp(x, t, v)
	}
	if n < MinWFMPoints {
		n = MinWFMPoints
	}
	if r := n % WFMGranularity; r != 0 {
		n += WFMGranularity - r
	}
	for len(w.Voltages) < n {
		w.Voltages = append(w.Voltages, 0)
	}
	return w, nil
}

// Step is one line of a sequence
type Step struct {
	// Waveform is the file played on channel 1, Channel2 the one on channel 2
	Waveform string `json:"waveform"`
	Channel2 string `json:"channel2,omitempty"`

	// Repeat is the number of plays, zero is once
	Repeat int `json:"repeat"`

	// WaitTrigger holds the step until a trigger
	WaitTrigger bool `json:"waitTrigger"`
}

// EncodeSequence renders steps as a MAGIC 3002 sequence file with table jumps
func (d Dialect) EncodeSequence(steps []Step) ([]byte, error) {
	if len(steps) == 0 {
		return nil, &scpi.InvalidArgument{Setting: "sequence", Value: 0, Domain: "at least one step"}
	}
	var b strings.Builder
	b.WriteString("MAGIC 3002\r\n")
	fmt.Fprintf(&b, "LINES %d\r\n", len(steps))
	for _, s := range steps {
		rep := s.Repeat
		if rep == 0 {
			rep = 1
		}
		wait := 0
		if s.WaitTrigger {
			wait = 1
		}
		ch2 := s.Channel2
		if d == AWG7101 {
			ch2 = ""
		}
		fmt.Fprintf(&b, "%q, %q, %d, %d, 0, 0\r\n", s.Waveform, ch2, rep, wait)
	}
	b.WriteString("TABLE_JUMP" + strings.Repeat(" 0,", 16) + "\r\n")
	b.WriteString("LOGIC_JUMP -1, -1, -1, -1,\r\n")
	b.WriteString("JUMP_MODE TABLE\r\n")
	b.WriteString("JUMP_TIMING ASYNC\r\n")
	b.WriteString("STROBE 0")
	return []byte(b.String()), nil
}

// UploadSequence stores a sequence file under name
func (a *AWG) UploadSequence(name string, steps []Step) error {
	if !a.Dialect.fileBased() {
		return ErrUnsupported
	}
	seq, err := a.Dialect.EncodeSequence(steps)
	if err != nil {
		return err
	}
	return a.WriteFile(name, seq)
}

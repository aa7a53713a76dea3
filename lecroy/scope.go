/*Package lecroy provides a driver for LeCroy WaveRunner oscilloscopes, and a
decoder for their binary waveform format.

Most settings are made through the scope's automation object model, with
VBS 'app.<path> = <value>' commands.  Waveforms are transferred as 16 bit
words in an IEEE-488.2 block and calibrated with DecodeWaveform.
*/
package lecroy

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/mathx"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
	"github.com/pkg/errors"
)

const (
	// DefaultTimeout is the session timeout to use for a scope, waveform
	// transfers of many megasamples are slow
	DefaultTimeout = 10 * time.Second

	// tracePollInterval is how often the trigger mode is checked while waiting for a trigger
	tracePollInterval = 10 * time.Millisecond
)

var (
	couplings    = []string{"AC1M", "DC1M", "DC50", "Gnd"}
	bandwidths   = []string{"20MHz", "200MHz", "1GHz", "3GHz", "4GHz", "Full"}
	slopes       = []string{"Positive", "Negative", "Either"}
	triggerModes = []string{"Auto", "Normal", "Single", "Stop"}
	gridModes    = []string{"Auto", "Dual", "Octal", "Quad", "Single", "XY", "XYDual", "XYSingle"}

	initCmds = []string{
		"COMM_HEADER OFF",
		"COMM_ORDER LO",
		"COMM_FORMAT DEF9,WORD,BIN",
	}
)

// Scope is a LeCroy WaveRunner 620Zi or similar
type Scope struct {
	scpi.SCPI
}

// New configures the scope behind s for headerless, little endian, 16 bit transfers
func New(s *comm.Session) (*Scope, error) {
	sc := &Scope{scpi.SCPI{Session: s}}
	return sc, sc.init()
}

func (s *Scope) init() error {
	for _, cmd := range initCmds {
		if err := s.SCPI.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Reset resets the scope and restores the transfer format
func (s *Scope) Reset() error {
	if err := s.SCPI.Write("*RST"); err != nil {
		return err
	}
	if err := s.init(); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return nil
}

// VBSWrite sets something in the automation object model, msg is e.g. app.ClearSweeps
func (s *Scope) VBSWrite(msg string) error {
	return s.SCPI.Write("VBS '" + msg + "'")
}

// VBSQuery returns the value of an expression in the automation object model
func (s *Scope) VBSQuery(msg string) (string, error) {
	resp, err := s.SCPI.Query("VBS? 'return = " + msg + "'")
	return strings.TrimSpace(resp), err
}

func (s *Scope) vbsf(format string, a ...interface{}) error {
	return s.VBSWrite(fmt.Sprintf(format, a...))
}

func vbsBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// checkChannel validates a trace name: C1..C8, F1..F12, M1..M4 or Z1..Z8
func checkChannel(ch string) error {
	if len(ch) >= 2 && strings.ContainsRune("CFMZ", rune(ch[0])) {
		if n, err := strconv.Atoi(ch[1:]); err == nil && n >= 1 && n <= 12 {
			return nil
		}
	}
	return &scpi.InvalidArgument{Setting: "channel", Value: ch, Domain: "a trace name such as C1 or F2"}
}

func checkInput(ch string) error {
	if err := checkChannel(ch); err != nil || ch[0] != 'C' {
		return &scpi.InvalidArgument{Setting: "channel", Value: ch, Domain: "an input channel such as C1"}
	}
	return nil
}

// ClearSweeps clears accumulated sweeps and waits for the scope to reset its statistics
func (s *Scope) ClearSweeps() error {
	if err := s.VBSWrite("app.ClearSweeps"); err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	return nil
}

// ViewChannel shows or hides an input (C*) or math (F*) trace
func (s *Scope) ViewChannel(ch string, view bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	switch ch[0] {
	case 'C':
		return s.vbsf("app.Acquisition.%s.View = %s", ch, vbsBool(view))
	case 'F':
		return s.vbsf("app.Math.%s.View = %s", ch, vbsBool(view))
	}
	return &scpi.InvalidArgument{Setting: "channel", Value: ch, Domain: "an input or math channel"}
}

// SetCoupling sets the input coupling, one of AC1M, DC1M, DC50 or Gnd
func (s *Scope) SetCoupling(ch, coupling string) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	tok, err := scpi.CheckEnum("coupling", coupling, couplings...)
	if err != nil {
		return err
	}
	return s.vbsf(`app.Acquisition.%s.Coupling = "%s"`, ch, tok)
}

// GetCoupling returns the input coupling of a channel
func (s *Scope) GetCoupling(ch string) (string, error) {
	if err := checkInput(ch); err != nil {
		return "", err
	}
	return s.VBSQuery(fmt.Sprintf("app.Acquisition.%s.Coupling", ch))
}

// SetBandwidth sets the bandwidth limit, one of 20MHz, 200MHz, 1GHz, 3GHz, 4GHz or Full
func (s *Scope) SetBandwidth(ch, bw string) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	tok, err := scpi.CheckEnum("bandwidth", bw, bandwidths...)
	if err != nil {
		return err
	}
	return s.vbsf(`app.Acquisition.%s.BandwidthLimit = "%s"`, ch, tok)
}

// SetAveraging sets the number of sweeps averaged on an input
func (s *Scope) SetAveraging(ch string, averages int) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	if averages < 1 {
		return &scpi.InvalidArgument{Setting: "averages", Value: averages, Domain: ">= 1"}
	}
	return s.vbsf(`app.Acquisition.%s.Averaging = "%d"`, ch, averages)
}

// SetVerticalScale sets volts/div, rounded up to the next 1-2-5 step, and the offset
func (s *Scope) SetVerticalScale(ch string, voltsPerDiv, offset float64) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	if voltsPerDiv <= 0 {
		return &scpi.InvalidArgument{Setting: "vertical scale", Value: voltsPerDiv, Domain: "> 0"}
	}
	voltsPerDiv = mathx.RoundUp125(voltsPerDiv)
	if err := s.vbsf("app.Acquisition.%s.VerScale = %0.0e", ch, voltsPerDiv); err != nil {
		return err
	}
	return s.vbsf("app.Acquisition.%s.VerOffset = %0.0e", ch, offset)
}

// FindVerticalScale asks the scope to autoscale a channel
func (s *Scope) FindVerticalScale(ch string) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	return s.vbsf("app.Acquisition.%s.FindScale", ch)
}

// SetHorizontalScale sets the timebase in s/div and the trigger delay
func (s *Scope) SetHorizontalScale(timePerDiv, offset float64) error {
	if timePerDiv <= 0 {
		return &scpi.InvalidArgument{Setting: "horizontal scale", Value: timePerDiv, Domain: "> 0"}
	}
	if err := s.vbsf("app.Acquisition.Horizontal.HorScale = %0.6e", timePerDiv); err != nil {
		return err
	}
	return s.vbsf("app.Acquisition.Horizontal.HorOffset = %0.6e", offset)
}

// SetMemorySamples sets the maximum number of samples per acquisition
func (s *Scope) SetMemorySamples(n float64) error {
	if n < 1 {
		return &scpi.InvalidArgument{Setting: "memory samples", Value: n, Domain: ">= 1"}
	}
	return s.vbsf("app.Acquisition.Horizontal.MaxSamples = %0.3e", n)
}

// SetTrigger sets the trigger source, level in volts and slope (Positive, Negative or Either)
func (s *Scope) SetTrigger(source string, level float64, slope string) error {
	if err := checkInput(source); err != nil {
		return err
	}
	tok, err := scpi.CheckEnum("slope", slope, slopes...)
	if err != nil {
		return err
	}
	if err = s.vbsf(`app.Acquisition.Trigger.Source = "%s"`, source); err != nil {
		return err
	}
	if err = s.vbsf("app.Acquisition.Trigger.%s.Level = %0.4e", source, level); err != nil {
		return err
	}
	return s.vbsf(`app.Acquisition.Trigger.%s.Slope = "%s"`, source, tok)
}

func (s *Scope) writeTriggerMode(mode string) error {
	return s.vbsf(`app.Acquisition.TriggerMode = "%s"`, mode)
}

// GetTriggerMode returns the trigger mode, Auto, Normal, Single or Stopped
func (s *Scope) GetTriggerMode() (string, error) {
	return s.VBSQuery("app.Acquisition.TriggerMode")
}

// SetTriggerMode sets the trigger mode, one of Auto, Normal, Single or Stop,
// and verifies it.  The scope reports Stop as Stopped, and a Single
// acquisition that has already triggered as Stopped too.
func (s *Scope) SetTriggerMode(mode string) error {
	tok, err := scpi.CheckEnum("trigger mode", mode, triggerModes...)
	if err != nil {
		return err
	}
	get := func() (string, error) {
		m, err := s.GetTriggerMode()
		if err != nil {
			return m, err
		}
		if m == "Stopped" && (tok == "Stop" || tok == "Single") {
			return tok, nil
		}
		return m, nil
	}
	return verify.SetAndVerifyExact("trigger mode", s.writeTriggerMode, get, tok, verify.DefaultAttempts)
}

// SetPersistence turns per-trace persistence on or off for a channel
func (s *Scope) SetPersistence(ch string, persist, monochrome bool) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	if err := s.VBSWrite(`app.Display.LockPersistence = "PerTrace"`); err != nil {
		return err
	}
	if err := s.vbsf("app.Acquisition.%s.Persisted = %s", ch, vbsBool(persist)); err != nil {
		return err
	}
	return s.vbsf("app.Acquisition.%s.PersistenceMonochrome = %s", ch, vbsBool(monochrome))
}

// LabelChannel labels a channel on screen.  An empty label hides the label.
func (s *Scope) LabelChannel(ch, label string) error {
	if err := checkInput(ch); err != nil {
		return err
	}
	if label == "" {
		return s.vbsf("app.Acquisition.%s.ViewLabels = False", ch)
	}
	if err := s.vbsf(`app.Acquisition.%s.LabelsText = "%s"`, ch, label); err != nil {
		return err
	}
	return s.vbsf("app.Acquisition.%s.ViewLabels = True", ch)
}

// SetDisplayGridMode sets the grid, one of Auto, Dual, Octal, Quad, Single, XY, XYDual or XYSingle
func (s *Scope) SetDisplayGridMode(mode string) error {
	tok, err := scpi.CheckEnum("grid mode", mode, gridModes...)
	if err != nil {
		return err
	}
	return s.vbsf(`app.Display.GridMode = "%s"`, tok)
}

// SetParameter configures a measurement parameter (P1..P12) to compute
// engine (Maximum, Mean, PeakToPeak, ...) on one or two sources.  Empty
// sources are left as they are.
func (s *Scope) SetParameter(param, engine, source1, source2 string, showTable bool) error {
	if err := s.vbsf("app.Measure.ShowMeasure = %s", vbsBool(showTable)); err != nil {
		return err
	}
	if err := s.vbsf(`app.Measure.%s.ParamEngine = "%s"`, param, engine); err != nil {
		return err
	}
	if source1 != "" {
		if err := s.vbsf(`app.Measure.%s.Source1 = "%s"`, param, source1); err != nil {
			return err
		}
	}
	if source2 != "" {
		if err := s.vbsf(`app.Measure.%s.Source2 = "%s"`, param, source2); err != nil {
			return err
		}
	}
	return s.vbsf("app.Measure.%s.View = True", param)
}

// SetMath configures a math trace (F1..F12) to apply operator (Average,
// Trend, Histogram, FFT, ...) to one or two sources
func (s *Scope) SetMath(mathCh, operator, source1, source2 string) error {
	if err := checkChannel(mathCh); err != nil || mathCh[0] != 'F' {
		return &scpi.InvalidArgument{Setting: "math channel", Value: mathCh, Domain: "F1..F12"}
	}
	if err := s.vbsf(`app.Math.%s.Operator1 = "%s"`, mathCh, operator); err != nil {
		return err
	}
	if source1 != "" {
		if err := s.vbsf(`app.Math.%s.Source1 = "%s"`, mathCh, source1); err != nil {
			return err
		}
	}
	if source2 != "" {
		return s.vbsf(`app.Math.%s.Source2 = "%s"`, mathCh, source2)
	}
	return nil
}

// GetParameterValue returns the current value of a measurement parameter
func (s *Scope) GetParameterValue(param string) (float64, error) {
	resp, err := s.VBSQuery(fmt.Sprintf("app.Measure.%s.Out.Result.Value", param))
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(resp, 64)
	return f, errors.Wrapf(err, "parameter %s", param)
}

// GetNumSweeps returns the number of sweeps accumulated by a math trace
func (s *Scope) GetNumSweeps(ch string) (int, error) {
	resp, err := s.VBSQuery(fmt.Sprintf("app.Math.%s.Out.Result.Sweeps", ch))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(resp)
	return n, errors.Wrapf(err, "sweeps of %s", ch)
}

// SetupMathTrend makes mathCh a trend of the last values of a parameter
func (s *Scope) SetupMathTrend(mathCh, source string, values int) error {
	if err := s.SetMath(mathCh, "Trend", source, ""); err != nil {
		return err
	}
	if err := s.vbsf("app.Math.%s.Operator1Setup.Values = %d", mathCh, values); err != nil {
		return err
	}
	return s.ViewChannel(mathCh, true)
}

// SetupMathWaveformAverage makes mathCh the average of sweeps acquisitions of source
func (s *Scope) SetupMathWaveformAverage(mathCh, source string, sweeps int) error {
	if err := s.SetMath(mathCh, "Average", source, ""); err != nil {
		return err
	}
	if err := s.vbsf("app.Math.%s.Operator1Setup.Sweeps = %d", mathCh, sweeps); err != nil {
		return err
	}
	return s.ViewChannel(mathCh, true)
}

// Histogram configures a histogram math trace
type Histogram struct {
	Values      int
	Bins        int
	Center      float64
	WidthPerDiv float64
	AutoScale   bool
}

// SetupMathHistogram makes mathCh a histogram of a parameter.  The width per
// division is rounded up to the next 1-2-5 step.
func (s *Scope) SetupMathHistogram(mathCh, source string, h Histogram) error {
	if err := s.SetMath(mathCh, "Histogram", source, ""); err != nil {
		return err
	}
	cmds := []string{
		fmt.Sprintf("app.Math.%s.Operator1Setup.Values = %d", mathCh, h.Values),
		fmt.Sprintf("app.Math.%s.Operator1Setup.AutoFindScale = %s", mathCh, vbsBool(h.AutoScale)),
		fmt.Sprintf("app.Math.%s.Operator1Setup.Bins = %d", mathCh, h.Bins),
		fmt.Sprintf("app.Math.%s.Operator1Setup.Center = %g", mathCh, h.Center),
		fmt.Sprintf("app.Math.%s.Operator1Setup.HorScale = %g", mathCh, mathx.RoundUp125(h.WidthPerDiv)),
	}
	for _, cmd := range cmds {
		if err := s.VBSWrite(cmd); err != nil {
			return err
		}
	}
	return s.ViewChannel(mathCh, true)
}

// Waveform transfers and decodes the current trace of a channel
func (s *Scope) Waveform(ch string) (Waveform, error) {
	if err := checkChannel(ch); err != nil {
		return Waveform{}, err
	}
	buf, err := s.SCPI.QueryRaw("WAIT;" + ch + ":WAVEFORM?")
	if err != nil {
		return Waveform{}, err
	}
	w, err := DecodeWaveform(buf)
	w.Channel = ch
	return w, err
}

// waitForTrigger arms a single acquisition and waits for it to complete
func (s *Scope) waitForTrigger(ctx context.Context, timeout time.Duration) error {
	if err := s.writeTriggerMode("Single"); err != nil {
		return err
	}
	notSingle := func(m string) bool { return m != "Single" }
	_, err := verify.PollUntil(ctx, "single acquisition", s.GetTriggerMode, notSingle, tracePollInterval, timeout)
	return err
}

// SingleTrace arms a single acquisition, waits up to timeout for the
// trigger, and returns the trace of ch
func (s *Scope) SingleTrace(ctx context.Context, ch string, timeout time.Duration) (Waveform, error) {
	if err := checkChannel(ch); err != nil {
		return Waveform{}, err
	}
	if err := s.waitForTrigger(ctx, timeout); err != nil {
		return Waveform{}, err
	}
	return s.Waveform(ch)
}

// MultipleTraces is SingleTrace for several channels sharing one trigger
func (s *Scope) MultipleTraces(ctx context.Context, channels []string, timeout time.Duration) ([]Waveform, error) {
	for _, ch := range channels {
		if err := checkChannel(ch); err != nil {
			return nil, err
		}
	}
	if err := s.waitForTrigger(ctx, timeout); err != nil {
		return nil, err
	}
	out := make([]Waveform, len(channels))
	for i, ch := range channels {
		w, err := s.Waveform(ch)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// CollectSweeps clears the sweeps of a math trace (a trend or histogram),
// waits for n sweeps to accumulate, and returns the first n values
func (s *Scope) CollectSweeps(ctx context.Context, ch string, n int, timeout time.Duration) ([]float64, error) {
	if n < 1 {
		return nil, &scpi.InvalidArgument{Setting: "sweeps", Value: n, Domain: ">= 1"}
	}
	if err := s.ClearSweeps(); err != nil {
		return nil, err
	}
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	enough := func(got int) bool { return got >= n+1 }
	sweeps := func() (int, error) { return s.GetNumSweeps(ch) }
	if _, err := verify.PollUntil(ctx, "collect sweeps", sweeps, enough, 100*time.Millisecond, timeout); err != nil {
		return nil, err
	}
	// the trace can lag the sweep counter by a sweep or two
	full := func(w Waveform) bool { return w.Len() >= n }
	wf := func() (Waveform, error) { return s.Waveform(ch) }
	remaining := timeout - time.Since(start)
	if remaining < time.Second {
		remaining = time.Second
	}
	w, err := verify.PollUntil(ctx, "collect sweeps", wf, full, 50*time.Millisecond, remaining)
	if err != nil {
		return nil, err
	}
	return w.Voltage[:n], nil
}

// Screenshot captures the screen as a PNG and writes it to w
func (s *Scope) Screenshot(w io.Writer, whiteBackground bool) error {
	bg := "BLACK"
	if whiteBackground {
		bg = "WHITE"
	}
	cmds := []string{
		"HCSU BCKG," + bg,
		"HCSU DEV,PNG",
		"HCSU FORMAT,LANDSCAPE",
		"HCSU DEST,REMOTE",
		"HCSU AREA,DSOWINDOW",
	}
	for _, cmd := range cmds {
		if err := s.SCPI.Write(cmd); err != nil {
			return err
		}
	}
	buf, err := s.SCPI.QueryRaw("SCREEN_DUMP")
	if err != nil {
		return err
	}
	png, err := Block(buf)
	if err != nil {
		return err
	}
	_, err = w.Write(png)
	return err
}

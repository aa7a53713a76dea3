package ando

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/amcc/golab/oscilloscope"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

const (
	// DefaultZeroInterval is how often Zero checks whether zeroing is done
	DefaultZeroInterval = time.Second

	// DefaultZeroTimeout bounds Zero
	DefaultZeroTimeout = 100 * time.Second

	// autoRange is the range code of autoranging
	autoRange = 'A'

	// wavelengthSettle is the time the meter needs to take a new wavelength
	wavelengthSettle = 500 * time.Millisecond
)

var (
	meterRanges = scpi.NewCodeTable("range",
		[]byte("CDEFGHIJKL"),
		[]int{30, 20, 10, 0, -10, -20, -30, -40, -50, -60})

	meterAveraging = scpi.NewCodeTable("averaging time",
		[]byte("ABCDEFGH"),
		[]int{1, 2, 5, 10, 20, 50, 100, 200})

	meterExponents = scpi.NewCodeTable("unit",
		[]byte("LMNOPQRSTZ"),
		[]int{9, 6, 3, 0, -3, -6, -9, -12, -15, -18})

	meterWavelength = scpi.Setting{Name: "wavelength", Prefix: "PW", Format: scpi.Fixed, Precision: 1}
)

// PowerUnit is the display unit of a power meter
type PowerUnit byte

const (
	// Watts displays linear power
	Watts PowerUnit = 'A'

	// DBm displays logarithmic power
	DBm PowerUnit = 'B'
)

func (u PowerUnit) String() string {
	switch u {
	case Watts:
		return "W"
	case DBm:
		return "dBm"
	default:
		return "unknown"
	}
}

// Reading is a decoded POD? response
type Reading struct {
	Channel int

	// Status is 'I' for a valid reading, 'Z' while zeroing
	Status byte

	Measure byte
	Unit    byte
	Range   byte

	// Power is in W, NaN unless Status is 'I'
	Power float64
}

/*ParseReading decodes a POD? response.  The response is

	POD<channel, 2 digits><status><measure><unit><range><value>[,<next head>...]

only the first head's reading is decoded.  A unit of U means value is in
dBm; otherwise the unit is an SI prefix letter (L = giga ... Z = atto) and
value is in prefixed watts.
*/
func ParseReading(resp string) (Reading, error) {
	var r Reading
	resp = strings.TrimSpace(resp)
	idx := strings.Index(resp, "POD")
	if idx < 0 {
		return r, fmt.Errorf("power meter response %q has no POD", resp)
	}
	msg := resp[idx+3:]
	if i := strings.IndexByte(msg, ','); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) < 7 {
		return r, fmt.Errorf("power meter response %q is too short", resp)
	}
	ch, err := strconv.Atoi(msg[:2])
	if err != nil {
		return r, fmt.Errorf("bad channel in power meter response %q", resp)
	}
	r.Channel = ch
	r.Status, r.Measure, r.Unit, r.Range = msg[2], msg[3], msg[4], msg[5]
	if r.Status != 'I' {
		r.Power = math.NaN()
		return r, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(msg[6:]), 64)
	if err != nil {
		return r, err
	}
	if r.Unit == 'U' {
		r.Power = DBmToWatts(v)
		return r, nil
	}
	exp, err := meterExponents.Value(r.Unit)
	if err != nil {
		return r, err
	}
	r.Power = v * math.Pow(10, float64(exp))
	return r, nil
}

// PowerMeter is one head of an AQ82011 or AQ82012 optical power meter
type PowerMeter struct {
	module

	// ZeroInterval and ZeroTimeout are the cadence and bound of Zero
	ZeroInterval time.Duration
	ZeroTimeout  time.Duration
}

var _ scpi.Instrument = PowerMeter{}

// NewPowerMeter returns head of the power meter in slot of mf.  Single head
// meters use head 1.
func NewPowerMeter(mf *Mainframe, slot, head int) PowerMeter {
	return PowerMeter{
		module:       module{mf: mf, slot: slot, head: head},
		ZeroInterval: DefaultZeroInterval,
		ZeroTimeout:  DefaultZeroTimeout}
}

// Head returns the head the meter addresses
func (m PowerMeter) Head() int {
	return m.head
}

// StdInit puts the meter in CW mode with no reference, no max/min hold,
// averaging of 10 and readings in W
func (m PowerMeter) StdInit() error {
	for _, cmd := range []string{"PMO0", "PDR0", "PH0", "PAD"} {
		if err := m.write(cmd); err != nil {
			return err
		}
	}
	return m.SetUnit(Watts)
}

// Reset resets the mainframe and reapplies StdInit
func (m PowerMeter) Reset() error {
	if err := m.module.Reset(); err != nil {
		return err
	}
	return m.StdInit()
}

// queryCode queries cmd and returns the single character after prefix
func (m PowerMeter) queryCode(cmd, prefix string) (byte, error) {
	resp, err := m.query(cmd)
	if err != nil {
		return 0, err
	}
	resp = strings.TrimSpace(resp)
	if len(resp) != len(prefix)+1 || !strings.HasPrefix(resp, prefix) {
		return 0, fmt.Errorf("power meter response %q is not %s<code>", resp, prefix)
	}
	return resp[len(prefix)], nil
}

func (m PowerMeter) rangeCode() (byte, error) {
	return m.queryCode("PR?", "PR")
}

func (m PowerMeter) setRangeCode(code byte) error {
	set := func(c byte) error { return m.write("PR" + string(c)) }
	return verify.SetAndVerifyExact("range", set, m.rangeCode, code, verify.DefaultAttempts, verify.Settle(settle))
}

// Range returns the measurement range in dBm, or auto true if autoranging
func (m PowerMeter) Range() (dbm int, auto bool, err error) {
	code, err := m.rangeCode()
	if err != nil {
		return 0, false, err
	}
	if code == autoRange {
		return 0, true, nil
	}
	dbm, err = meterRanges.Value(code)
	return dbm, false, err
}

// SetRange fixes the measurement range, one of 30, 20 ... -60 dBm
func (m PowerMeter) SetRange(dbm int) error {
	code, err := meterRanges.Code(dbm)
	if err != nil {
		return err
	}
	return m.setRangeCode(code)
}

// SetAutoRange turns on autoranging
func (m PowerMeter) SetAutoRange() error {
	return m.setRangeCode(autoRange)
}

// AveragingTime returns the averaging time in ms
func (m PowerMeter) AveragingTime() (int, error) {
	code, err := m.queryCode("PA?", "PA")
	if err != nil {
		return 0, err
	}
	return meterAveraging.Value(code)
}

// SetAveragingTime sets the averaging time, one of 1, 2, 5 ... 200 ms
func (m PowerMeter) SetAveragingTime(ms int) error {
	code, err := meterAveraging.Code(ms)
	if err != nil {
		return err
	}
	set := func(int) error { return m.write("PA" + string(code)) }
	return verify.SetAndVerifyExact("averaging time", set, m.AveragingTime, ms, verify.DefaultAttempts, verify.Settle(settle))
}

// Unit returns the display unit
func (m PowerMeter) Unit() (PowerUnit, error) {
	code, err := m.queryCode("PF?", "PF")
	if err != nil {
		return 0, err
	}
	u := PowerUnit(code)
	if u != Watts && u != DBm {
		return 0, fmt.Errorf("unknown power meter unit %q", code)
	}
	return u, nil
}

// SetUnit sets the display unit
func (m PowerMeter) SetUnit(u PowerUnit) error {
	if u != Watts && u != DBm {
		return &scpi.InvalidArgument{Setting: "unit", Value: u, Domain: "W or dBm"}
	}
	set := func(v PowerUnit) error { return m.write("PF" + string(byte(v))) }
	return verify.SetAndVerifyExact("unit", set, m.Unit, u, verify.DefaultAttempts, verify.Settle(settle))
}

// Wavelength returns the calibration wavelength in nm
func (m PowerMeter) Wavelength() (float64, error) {
	resp, err := m.query("PW?")
	if err != nil {
		return 0, err
	}
	// a reading in the wavelength register means the meter answered the wrong query
	if strings.Contains(resp, ",") {
		return 0, fmt.Errorf("bad wavelength response %q", resp)
	}
	return parsePrefixed(resp, "PW")
}

// SetWavelength sets the calibration wavelength in nm
func (m PowerMeter) SetWavelength(nm float64) error {
	if nm <= 0 || math.IsNaN(nm) {
		return &scpi.InvalidArgument{Setting: "wavelength", Value: nm, Domain: "positive"}
	}
	set := func(v float64) error {
		cmd, err := meterWavelength.Encode(v)
		if err != nil {
			return err
		}
		return m.write(cmd)
	}
	return verify.SetAndVerify("wavelength", set, m.Wavelength, nm, meterWavelength.Tolerance(nm), verify.DefaultAttempts, verify.Settle(wavelengthSettle))
}

// Reading takes one reading
func (m PowerMeter) Reading() (Reading, error) {
	resp, err := m.query("POD?")
	if err != nil {
		return Reading{}, err
	}
	return ParseReading(resp)
}

// Power returns the optical power in W.  It is NaN if the meter did not
// have a valid reading.
func (m PowerMeter) Power() (float64, error) {
	r, err := m.Reading()
	return r.Power, err
}

// Status returns the status character of a reading; 'Z' while zeroing.
// A response too short to carry a status is taken as 'Z'.
func (m PowerMeter) Status() (byte, error) {
	resp, err := m.query("POD?")
	if err != nil {
		return 0, err
	}
	resp = strings.TrimSpace(resp)
	idx := strings.Index(resp, "POD")
	if idx < 0 || len(resp) < idx+6 {
		return 'Z', nil
	}
	return resp[idx+5], nil
}

// Zero zeros the meter and blocks until it is done, returning how long it took
func (m PowerMeter) Zero(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := m.write("PZ"); err != nil {
		return 0, err
	}
	// the meter does not report Z until it has started
	time.Sleep(m.ZeroInterval)
	zeroing := func(s byte) bool { return s != 'Z' }
	_, err := verify.PollUntil(ctx, "zero", m.Status, zeroing, m.ZeroInterval, m.ZeroTimeout)
	return time.Since(start), err
}

// Log takes n readings, waiting delay before each, and returns them as a
// recording.  The readings taken so far are returned if ctx is done first.
func (m PowerMeter) Log(ctx context.Context, n int, delay time.Duration) (oscilloscope.Recording, error) {
	rec := oscilloscope.Recording{Name: fmt.Sprintf("power slot %d head %d (W)", m.slot, m.head)}
	for i := 0; i < n; i++ {
		time.Sleep(delay)
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		p, err := m.Power()
		if err != nil {
			return rec, err
		}
		rec.Append(time.Now(), p)
	}
	return rec, nil
}

// ConfigLine renders the meter's settings as a comment line for a data file header
func (m PowerMeter) ConfigLine() (string, error) {
	wl, err := m.Wavelength()
	if err != nil {
		return "", err
	}
	atime, err := m.AveragingTime()
	if err != nil {
		return "", err
	}
	dbm, auto, err := m.Range()
	if err != nil {
		return "", err
	}
	rng := strconv.Itoa(dbm) + " dBm"
	if auto {
		rng = "auto"
	}
	return fmt.Sprintf("# Power meter, slot %d head %d: \t%.1f nm, %d ms, range %s", m.slot, m.head, wl, atime, rng), nil
}

/*Package thorlabs provides drivers for the Thorlabs PM100D power meter and
the LFLTM laser source.

The PM100D is usually reached over USB-TMC, e.g.

	USB0::0x1313::0x8078::P0012345::INSTR

and works the same over any other resource.
*/
package thorlabs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

const (
	// TLVID is the Thorlabs vendor ID
	TLVID = 0x1313

	// PM100DPID is the PM100D product ID
	PM100DPID = 0x8078
)

// DeviceError is an entry of the PM100D error queue
type DeviceError struct {
	Code int
	Msg  string
}

// Error satisfies stdlib error interface
func (e DeviceError) Error() string {
	if s, ok := Errors[e.Code]; ok {
		return fmt.Sprintf("%d - %s", e.Code, s)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%d - %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("%d - UNKNOWN ERROR CODE", e.Code)
}

var (
	// Errors maps the standard SCPI error codes the PM100D reports to strings
	Errors = map[int]string{
		-100: "COMMAND ERROR",
		-101: "INVALID CHARACTER",
		-102: "SYNTAX ERROR",
		-103: "INVALID SEPARATOR",
		-104: "DATA TYPE ERROR",
		-108: "PARAMETER NOT ALLOWED",
		-109: "MISSING PARAMETER",
		-110: "COMMAND HEADER ERROR",
		-113: "UNDEFINED HEADER (UNKNOWN COMMAND)",
		-115: "UNEXPECTED NUMBER OF PARAMETERS",
		-120: "NUMERIC DATA ERROR",
		-130: "SUFFIX ERROR",
		-131: "INVALID SUFFIX",
		-151: "INVALID STRING DATA",

		-220: "PARAMETER ERROR",
		-221: "SETTINGS CONFLICT",
		-222: "DATA OUT OF RANGE",
		-230: "DATA CORRUPT OR STALE",
		-231: "DATA QUESTIONABLE",
		-240: "HARDWARE ERROR",
		-241: "HARDWARE MISSING",

		-310: "SYSTEM ERROR",
		-311: "MEMORY ERROR",
		-313: "CALIBRATION MEMORY LOST",
		-321: "OUT OF MEMORY",
		-330: "SELF-TEST FAILED",
		-340: "CALIBRATION FAILURE",
		-350: "QUEUE OVERFLOW",
		-363: "INPUT BUFFER OVERRUN",

		-400: "QUERY ERROR",
		-410: "QUERY INTERRUPTED",
	}
)

// PM100D represents a PM100D optical power meter
type PM100D struct {
	scpi.SCPI
}

// NewPM100D creates a new PM100D on an open session
func NewPM100D(s *comm.Session) *PM100D {
	return &PM100D{scpi.SCPI{Session: s}}
}

// Power reads the power in W
func (pm *PM100D) Power() (float64, error) {
	return pm.ReadFloat("READ?")
}

// AverageCount returns the number of samples averaged per reading
func (pm *PM100D) AverageCount() (int, error) {
	return pm.ReadInt(":SENSE:AVERAGE:COUNT?")
}

// SetAverageCount sets the number of samples averaged per reading
func (pm *PM100D) SetAverageCount(n int) error {
	if n < 1 {
		return &scpi.InvalidArgument{Setting: "average count", Value: n, Domain: "at least 1"}
	}
	set := func(v int) error { return pm.Write(":SENSE:AVERAGE:COUNT " + strconv.Itoa(v)) }
	return verify.SetAndVerifyExact("average count", set, pm.AverageCount, n, verify.DefaultAttempts)
}

// SetWavelength sets the correction wavelength in nm
func (pm *PM100D) SetWavelength(nm float64) error {
	if err := scpi.CheckRange("wavelength", nm, 185, 25000); err != nil {
		return err
	}
	return pm.Write(":SENSE:CORR:WAV " + strconv.FormatFloat(nm, 'f', -1, 64))
}

// LastError pops the error queue, returning nil if it is empty
func (pm *PM100D) LastError() error {
	resp, err := pm.Query("SYST:ERR?")
	if err != nil {
		return err
	}
	return parseError(resp)
}

// parseError decodes <code>,"<message>"
func parseError(resp string) error {
	resp = strings.TrimSpace(resp)
	pieces := strings.SplitN(resp, ",", 2)
	code, err := strconv.Atoi(strings.TrimSpace(pieces[0]))
	if err != nil {
		return fmt.Errorf("unparseable error %q", resp)
	}
	if code == 0 {
		return nil
	}
	e := DeviceError{Code: code}
	if len(pieces) == 2 {
		e.Msg = strings.Trim(strings.TrimSpace(pieces[1]), `"`)
	}
	return e
}

package thorlabs

import (
	"strings"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/tarm/serial"
)

// LFLTMSerial is the serial configuration of the LFLTM, 115200 8N1
func LFLTMSerial() serial.Config {
	return serial.Config{
		Baud:     115200,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1}
}

// LFLTMTerminators are carriage returns both ways
var LFLTMTerminators = comm.Terminators{Tx: '\r', Rx: '\r'}

// LFLTM is a Thorlabs laser source with a plain text serial protocol
type LFLTM struct {
	scpi.SCPI
}

// NewLFLTM wraps a session opened with LFLTMSerial and LFLTMTerminators
func NewLFLTM(s *comm.Session) *LFLTM {
	return &LFLTM{scpi.SCPI{Session: s}}
}

// Enable turns the laser on
func (l *LFLTM) Enable() error {
	return l.Write("enable=1")
}

// Disable turns the laser off
func (l *LFLTM) Disable() error {
	return l.Write("enable=0")
}

// Enabled returns true if the laser is on.  The laser may echo the command,
// the status is the last field of the response.
func (l *LFLTM) Enabled() (bool, error) {
	resp, err := l.Query("enable?")
	if err != nil {
		return false, err
	}
	fields := strings.Fields(resp)
	return len(fields) > 0 && fields[len(fields)-1] == "1", nil
}

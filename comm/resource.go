package comm

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Kind is the kind of interface a resource is reached over
type Kind int

const (
	// KindGPIB is an IEEE-488 bus address
	KindGPIB Kind = iota

	// KindTCPIP is a networked instrument speaking SCPI on a raw socket
	KindTCPIP

	// KindSocket is an explicit host:port raw socket
	KindSocket

	// KindSerial is an RS232 port, from ASRL<n>::INSTR or a raw device name
	KindSerial

	// KindUSB is a USB Test and Measurement Class device
	KindUSB
)

// RawSCPIPort is the port LXI instruments serve raw SCPI on
const RawSCPIPort = 5025

var kindNames = map[Kind]string{
	KindGPIB:   "GPIB",
	KindTCPIP:  "TCPIP",
	KindSocket: "SOCKET",
	KindSerial: "ASRL",
	KindUSB:    "USB",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Resource is a parsed VISA resource string
type Resource struct {
	Kind Kind

	// Board is the interface number, GPIB0 => 0
	Board int

	// Primary and Secondary are GPIB addresses.  Secondary is -1 if not used.
	Primary   int
	Secondary int

	// Host and Port are used by TCPIP and SOCKET
	Host string
	Port int

	// Device is the serial port name
	Device string

	// VID, PID and Serial identify a USB device.  Serial may be empty.
	VID    uint16
	PID    uint16
	Serial string
}

// serialDevice maps ASRL<n> to a port name on this platform
func serialDevice(n int) string {
	if runtime.GOOS == "windows" {
		return "COM" + strconv.Itoa(n)
	}
	return "/dev/ttyS" + strconv.Itoa(n-1)
}

func parseBoard(s, prefix string) (int, error) {
	s = s[len(prefix):]
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	return uint16(v), err
}

/*ParseResource parses a VISA style resource string.  Accepted forms are

	GPIB<board>::<primary>[::<secondary>]::INSTR
	TCPIP[<board>]::<host>[::inst0]::INSTR
	TCPIP[<board>]::<host>::<port>::SOCKET
	ASRL<n>::INSTR
	USB[<board>]::<vid>::<pid>[::<serial>]::INSTR

anything else that does not contain "::" is taken as the name of a serial
port, e.g. /dev/ttyUSB0 or COM7.  The INSTR suffix may be omitted, as in
GPIB0::5.
*/
func ParseResource(addr string) (Resource, error) {
	r := Resource{Secondary: -1}
	if !strings.Contains(addr, "::") {
		if addr == "" {
			return r, fmt.Errorf("empty resource string")
		}
		r.Kind = KindSerial
		r.Device = addr
		return r, nil
	}
	pieces := strings.Split(addr, "::")
	upper := strings.ToUpper(pieces[0])
	last := strings.ToUpper(pieces[len(pieces)-1])
	if last == "INSTR" || last == "SOCKET" {
		pieces = pieces[:len(pieces)-1]
	}
	var err error
	switch {
	case strings.HasPrefix(upper, "GPIB"):
		r.Kind = KindGPIB
		if r.Board, err = parseBoard(upper, "GPIB"); err != nil {
			return r, fmt.Errorf("bad GPIB board in %q: %w", addr, err)
		}
		if len(pieces) < 2 || len(pieces) > 3 {
			return r, fmt.Errorf("malformed GPIB resource %q", addr)
		}
		if r.Primary, err = strconv.Atoi(pieces[1]); err != nil || r.Primary < 0 || r.Primary > 30 {
			return r, fmt.Errorf("GPIB primary address in %q must be 0-30", addr)
		}
		if len(pieces) == 3 {
			if r.Secondary, err = strconv.Atoi(pieces[2]); err != nil || r.Secondary < 96 || r.Secondary > 126 {
				return r, fmt.Errorf("GPIB secondary address in %q must be 96-126", addr)
			}
		}
	case strings.HasPrefix(upper, "TCPIP"):
		if r.Board, err = parseBoard(upper, "TCPIP"); err != nil {
			return r, fmt.Errorf("bad TCPIP board in %q: %w", addr, err)
		}
		if len(pieces) < 2 || pieces[1] == "" {
			return r, fmt.Errorf("malformed TCPIP resource %q", addr)
		}
		r.Host = pieces[1]
		r.Kind = KindTCPIP
		r.Port = RawSCPIPort
		if last == "SOCKET" {
			if len(pieces) != 3 {
				return r, fmt.Errorf("SOCKET resource %q needs a port", addr)
			}
			r.Kind = KindSocket
			if r.Port, err = strconv.Atoi(pieces[2]); err != nil || r.Port <= 0 || r.Port > 65535 {
				return r, fmt.Errorf("bad port in %q", addr)
			}
		} else if len(pieces) > 3 {
			return r, fmt.Errorf("malformed TCPIP resource %q", addr)
		}
	case strings.HasPrefix(upper, "ASRL"):
		r.Kind = KindSerial
		n, err := parseBoard(upper, "ASRL")
		if err != nil || n < 1 {
			return r, fmt.Errorf("bad serial port number in %q", addr)
		}
		r.Board = n
		r.Device = serialDevice(n)
	case strings.HasPrefix(upper, "USB"):
		r.Kind = KindUSB
		if r.Board, err = parseBoard(upper, "USB"); err != nil {
			return r, fmt.Errorf("bad USB board in %q: %w", addr, err)
		}
		if len(pieces) < 3 || len(pieces) > 5 {
			return r, fmt.Errorf("malformed USB resource %q", addr)
		}
		if r.VID, err = parseUint16(pieces[1]); err != nil {
			return r, fmt.Errorf("bad vendor ID in %q", addr)
		}
		if r.PID, err = parseUint16(pieces[2]); err != nil {
			return r, fmt.Errorf("bad product ID in %q", addr)
		}
		if len(pieces) >= 4 {
			r.Serial = pieces[3]
		}
	default:
		return r, fmt.Errorf("unknown resource type in %q", addr)
	}
	return r, nil
}

// String renders the canonical resource string
func (r Resource) String() string {
	switch r.Kind {
	case KindGPIB:
		if r.Secondary >= 0 {
			return fmt.Sprintf("GPIB%d::%d::%d::INSTR", r.Board, r.Primary, r.Secondary)
		}
		return fmt.Sprintf("GPIB%d::%d::INSTR", r.Board, r.Primary)
	case KindTCPIP:
		return fmt.Sprintf("TCPIP%d::%s::INSTR", r.Board, r.Host)
	case KindSocket:
		return fmt.Sprintf("TCPIP%d::%s::%d::SOCKET", r.Board, r.Host, r.Port)
	case KindUSB:
		if r.Serial != "" {
			return fmt.Sprintf("USB%d::0x%04X::0x%04X::%s::INSTR", r.Board, r.VID, r.PID, r.Serial)
		}
		return fmt.Sprintf("USB%d::0x%04X::0x%04X::INSTR", r.Board, r.VID, r.PID)
	default:
		if r.Board > 0 {
			return fmt.Sprintf("ASRL%d::INSTR", r.Board)
		}
		return r.Device
	}
}

// HostPort returns host:port for network resources
func (r Resource) HostPort() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

package comm

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/multierr"
)

const (
	// prologixPort is the TCP port of the GPIB-ETHERNET controller
	prologixPort = 1234

	// prologixMaxReadTimeout is the largest ++read_tmo_ms the controller accepts
	prologixMaxReadTimeout = 3000 * time.Millisecond

	esc = 27
)

// gatewayTimeout is a read that returned no data before the port timeout
type gatewayTimeout struct{}

func (gatewayTimeout) Error() string   { return "gateway read timeout" }
func (gatewayTimeout) Timeout() bool   { return true }
func (gatewayTimeout) Temporary() bool { return false }

// vcpPort adapts a virtual COM port, which signals a timeout with a zero
// length read and no error
type vcpPort struct {
	serial.Port
}

func (v vcpPort) Read(p []byte) (int, error) {
	n, err := v.Port.Read(p)
	if n == 0 && err == nil {
		return 0, gatewayTimeout{}
	}
	return n, err
}

/*Gateway is a Prologix GPIB-USB or GPIB-ETHERNET controller.

One gateway carries every GPIB instrument on its bus.  Sessions opened with
WithGateway share the gateway's lock, and the gateway re-addresses the bus
(++addr) only when the next exchange is for a different instrument.
*/
type Gateway struct {
	Addr string

	mu      sync.Mutex
	rw      io.ReadWriteCloser
	current string
}

// FindGateway locates a Prologix GPIB-USB controller by its USB serial
// number and returns the name of its port
func FindGateway(serialNumber string) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if p.IsUSB && p.SerialNumber == serialNumber {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no USB serial port with serial number %q", serialNumber)
}

/*OpenGateway connects to a Prologix controller and puts it in controller mode.

addr is either host[:port] of a GPIB-ETHERNET controller, the name of the
virtual COM port of a GPIB-USB controller (/dev/ttyUSB0, COM4), or
"usb:<serial number>" to find the GPIB-USB controller by its serial number.
*/
func OpenGateway(addr string, timeout time.Duration) (*Gateway, error) {
	var (
		rw  io.ReadWriteCloser
		err error
	)
	if timeout == 0 || timeout > prologixMaxReadTimeout {
		timeout = prologixMaxReadTimeout
	}
	switch {
	case strings.HasPrefix(addr, "usb:"):
		var name string
		name, err = FindGateway(strings.TrimPrefix(addr, "usb:"))
		if err == nil {
			rw, err = openVCP(name, timeout)
		}
	case strings.HasPrefix(addr, "/dev/") || strings.HasPrefix(strings.ToUpper(addr), "COM"):
		rw, err = openVCP(addr, timeout)
	default:
		if !strings.Contains(addr, ":") {
			addr = fmt.Sprintf("%s:%d", addr, prologixPort)
		}
		rw, err = dialWithBackoff(addr, timeout)
	}
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	g := &Gateway{Addr: addr, rw: rw}
	cmds := []string{
		"savecfg 0",
		"mode 1",
		"auto 0",
		"eoi 1",
		"eos 2",
		fmt.Sprintf("read_tmo_ms %d", timeout.Milliseconds()),
		"eot_enable 1",
		"eot_char 10",
	}
	for _, cmd := range cmds {
		if err := g.command(cmd); err != nil {
			return nil, &ConnectionError{Addr: addr, Err: multierr.Append(err, rw.Close())}
		}
	}
	log.Info().Str("addr", addr).Msg("prologix gateway ready")
	return g, nil
}

func openVCP(name string, timeout time.Duration) (io.ReadWriteCloser, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err = port.SetReadTimeout(timeout); err != nil {
		return nil, multierr.Append(err, port.Close())
	}
	return vcpPort{port}, nil
}

// command sends a ++ command to the controller itself, caller holds no lock
func (g *Gateway) command(cmd string) error {
	_, err := fmt.Fprintf(g.rw, "++%s\n", cmd)
	return err
}

// address points the bus at an instrument, caller holds the lock
func (g *Gateway) address(addr string) error {
	if g.current == addr {
		return nil
	}
	if err := g.command("addr " + addr); err != nil {
		return err
	}
	g.current = addr
	return nil
}

// Attach returns a connection to the instrument at the given GPIB address.
// secondary is -1 if the instrument has no secondary address.
func (g *Gateway) Attach(primary, secondary int) (io.ReadWriteCloser, error) {
	if primary < 0 || primary > 30 {
		return nil, fmt.Errorf("invalid primary address %d (must by 0-30)", primary)
	}
	addr := fmt.Sprint(primary)
	if secondary >= 0 {
		addr = fmt.Sprintf("%d %d", primary, secondary)
	}
	return &gpibConn{g: g, addr: addr}, nil
}

// Close returns the bus to local control and closes the controller
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.command("loc")
	return multierr.Append(err, g.rw.Close())
}

// escape prefixes the bytes the controller would otherwise interpret with ESC
func escape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case '\r', '\n', esc, '+':
			out = append(out, esc)
		}
		out = append(out, c)
	}
	return out
}

// gpibConn is one instrument on a gateway.  The Session using it holds the
// gateway lock for the duration of each call.
type gpibConn struct {
	g       *Gateway
	addr    string
	pending bool
}

func (c *gpibConn) Write(p []byte) (int, error) {
	if err := c.g.address(c.addr); err != nil {
		return 0, err
	}
	body := escape(bytes.TrimRight(p, "\r\n"))
	if _, err := c.g.rw.Write(append(body, '\n')); err != nil {
		return 0, err
	}
	c.pending = true
	return len(p), nil
}

func (c *gpibConn) Read(p []byte) (int, error) {
	if err := c.g.address(c.addr); err != nil {
		return 0, err
	}
	if c.pending {
		c.pending = false
		if err := c.g.command("read eoi"); err != nil {
			return 0, err
		}
	}
	return c.g.rw.Read(p)
}

func (c *gpibConn) SetReadDeadline(t time.Time) error {
	if conn, ok := c.g.rw.(net.Conn); ok {
		return conn.SetReadDeadline(t)
	}
	return nil
}

func (c *gpibConn) SetWriteDeadline(t time.Time) error {
	if conn, ok := c.g.rw.(net.Conn); ok {
		return conn.SetWriteDeadline(t)
	}
	return nil
}

// Close detaches from the gateway, which stays open for other instruments
func (c *gpibConn) Close() error {
	return nil
}

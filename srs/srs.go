/*Package srs provides drivers for Stanford Research Systems SIM modules in a
SIM900 mainframe.

The mainframe connects its host port to one module at a time with
CONN <port>,"<escape>"; everything sent afterwards goes to the module until
the escape string is sent.  Mainframe.WithPort brackets an operation in the
connect and escape under the mainframe's lock, and always sends the escape,
so a failed operation never leaves the host connected to a module.
*/
package srs

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"go.uber.org/multierr"
)

const (
	// MaxPort is the highest port of a SIM900
	MaxPort = 8

	escape = "xyz"
)

// Mainframe is a SIM900 chassis
type Mainframe struct {
	scpi.SCPI
	mu sync.Mutex
}

// NewMainframe wraps a session to the SIM900 and makes it assert EOI on
// every response, so responses from the modules are terminated
func NewMainframe(s *comm.Session) (*Mainframe, error) {
	m := &Mainframe{SCPI: scpi.SCPI{Session: s}}
	for _, cmd := range []string{"CEOI ON", "EOIX ON"} {
		if err := m.SCPI.Write(cmd); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// WithPort connects to the module in port and runs fn with the mainframe
// locked.  The escape is sent after fn even if it failed.
func (m *Mainframe) WithPort(port int, fn func(*scpi.SCPI) error) error {
	if port < 1 || port > MaxPort {
		return &scpi.InvalidArgument{Setting: "port", Value: port, Domain: fmt.Sprintf("in [1, %d]", MaxPort)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SCPI.Write(fmt.Sprintf("CONN %d,\"%s\"", port, escape)); err != nil {
		return err
	}
	err := fn(&m.SCPI)
	return multierr.Append(err, m.SCPI.Write(escape))
}

// Write sends a command to the mainframe itself
func (m *Mainframe) Write(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SCPI.Write(cmd)
}

// Query sends a command to the mainframe and returns the response
func (m *Mainframe) Query(cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SCPI.Query(cmd)
}

// Read returns the next response from the mainframe
func (m *Mainframe) Read() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SCPI.Read()
}

// Identify returns the mainframe's *IDN? response
func (m *Mainframe) Identify() (string, error) {
	resp, err := m.Query("*IDN?")
	return strings.TrimSpace(resp), err
}

// Reset resets the mainframe
func (m *Mainframe) Reset() error {
	return m.Write("*RST")
}

// port is the part of every module type that scopes I/O to its port
type port struct {
	mf *Mainframe
	n  int
}

func (p port) write(cmd string) error {
	return p.mf.WithPort(p.n, func(b *scpi.SCPI) error { return b.Write(cmd) })
}

func (p port) query(cmd string) (string, error) {
	var resp string
	err := p.mf.WithPort(p.n, func(b *scpi.SCPI) error {
		var err error
		resp, err = b.Query(cmd)
		return err
	})
	return strings.TrimSpace(resp), err
}

func (p port) queryFloat(cmd string) (float64, error) {
	resp, err := p.query(cmd)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

func (p port) queryInt(cmd string) (int, error) {
	resp, err := p.query(cmd)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp)
}

// Write sends a command to the module
func (p port) Write(cmd string) error {
	return p.write(cmd)
}

// Query sends a command to the module and returns the response
func (p port) Query(cmd string) (string, error) {
	return p.query(cmd)
}

// Read reads a pending response of the module
func (p port) Read() (string, error) {
	var resp string
	err := p.mf.WithPort(p.n, func(b *scpi.SCPI) error {
		var err error
		resp, err = b.Read()
		return err
	})
	return resp, err
}

// Identify returns the module's *IDN? response
func (p port) Identify() (string, error) {
	return p.query("*IDN?")
}

// Reset resets the module, not the mainframe
func (p port) Reset() error {
	return p.write("*RST")
}

// Close does nothing, the session belongs to the mainframe
func (p port) Close() error {
	return nil
}

// Port returns the mainframe port the module is in
func (p port) Port() int {
	return p.n
}

func checkChannel(ch, max int) error {
	if ch < 1 || ch > max {
		return &scpi.InvalidArgument{Setting: "channel", Value: ch, Domain: fmt.Sprintf("in [1, %d]", max)}
	}
	return nil
}

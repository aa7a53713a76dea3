/*Package ando provides drivers for the Ando AQ8201 family of optical test
modules, housed in an AQ8204 (or similar) mainframe.

The mainframe addresses one module at a time.  Every module operation is
run through Mainframe.WithSlot, which sends the slot select (C<slot>) and the
operation as one unit under the mainframe's lock, so modules of one frame can
be used from several goroutines.  Modules with more than one head or bank
additionally select it with D<n>.

A module used on its own, not in a frame, is driven the same way: make a
Mainframe from its session and use slot 1.
*/
package ando

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
)

const (
	// MaxSlot is the highest slot number of the largest mainframe
	MaxSlot = 8

	// Pacing is the minimum interval between commands the modules tolerate
	Pacing = 200 * time.Millisecond

	// settle is the time a module needs after a set before it reports the new value
	settle = 200 * time.Millisecond
)

// Mainframe is an AQ8204 chassis
type Mainframe struct {
	scpi.SCPI
	mu sync.Mutex
}

// NewMainframe wraps a session to the mainframe's GPIB address
func NewMainframe(s *comm.Session) *Mainframe {
	return &Mainframe{SCPI: scpi.SCPI{Session: s}}
}

func checkSlot(slot int) error {
	if slot < 1 || slot > MaxSlot {
		return &scpi.InvalidArgument{Setting: "slot", Value: slot, Domain: fmt.Sprintf("in [1, %d]", MaxSlot)}
	}
	return nil
}

// WithSlot selects slot and runs fn with the mainframe locked.  fn must use
// the *scpi.SCPI it is given and not call back into the Mainframe.
func (m *Mainframe) WithSlot(slot int, fn func(*scpi.SCPI) error) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SCPI.Write("C" + strconv.Itoa(slot)); err != nil {
		return err
	}
	return fn(&m.SCPI)
}

// WithHead is WithSlot for modules with several heads or banks, it also sends D<head>
func (m *Mainframe) WithHead(slot, head int, fn func(*scpi.SCPI) error) error {
	if head < 1 || head > 9 {
		return &scpi.InvalidArgument{Setting: "head", Value: head, Domain: "in [1, 9]"}
	}
	return m.WithSlot(slot, func(b *scpi.SCPI) error {
		if err := b.Write("D" + strconv.Itoa(head)); err != nil {
			return err
		}
		return fn(b)
	})
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

// Reset resets the mainframe and every module in it
func (m *Mainframe) Reset() error {
	return m.Write("*RST")
}

// Model returns the model of the module in a slot
func (m *Mainframe) Model(slot int) (string, error) {
	var model string
	err := m.WithSlot(slot, func(b *scpi.SCPI) error {
		resp, err := b.Query("MODEL?")
		model = strings.TrimSpace(resp)
		return err
	})
	return model, err
}

// Configurer is a module that can describe its present settings
type Configurer interface {
	ConfigLine() (string, error)
}

// Config writes the identity of the chassis and the settings of each module
// to w, as comment lines for the header of a data file
func (m *Mainframe) Config(w io.Writer, modules ...Configurer) error {
	idn, err := m.Identify()
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(w, "# Chassis %s: \t%s\n", m.Session.Addr, idn); err != nil {
		return err
	}
	for _, mod := range modules {
		line, err := mod.ConfigLine()
		if err != nil {
			return err
		}
		if _, err = fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// parsePrefixed parses responses like AAV12.500 or PW1550.0, where the
// command name is echoed before the value.  Anything after a comma is ignored.
func parsePrefixed(resp, prefix string) (float64, error) {
	resp = strings.TrimSpace(resp)
	if !strings.HasPrefix(resp, prefix) {
		return 0, fmt.Errorf("response %q does not start with %s", resp, prefix)
	}
	resp = strings.TrimPrefix(resp, prefix)
	if idx := strings.IndexByte(resp, ','); idx >= 0 {
		resp = resp[:idx]
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// module is the part of every module type that scopes I/O to its slot
type module struct {
	mf   *Mainframe
	slot int

	// head is sent as D<head> when not zero
	head int
}

func (m module) with(fn func(*scpi.SCPI) error) error {
	if m.head > 0 {
		return m.mf.WithHead(m.slot, m.head, fn)
	}
	return m.mf.WithSlot(m.slot, fn)
}

func (m module) write(cmd string) error {
	return m.with(func(b *scpi.SCPI) error { return b.Write(cmd) })
}

func (m module) query(cmd string) (string, error) {
	var resp string
	err := m.with(func(b *scpi.SCPI) error {
		var err error
		resp, err = b.Query(cmd)
		return err
	})
	return resp, err
}

func (m module) queryPrefixed(cmd, prefix string) (float64, error) {
	resp, err := m.query(cmd)
	if err != nil {
		return 0, err
	}
	return parsePrefixed(resp, prefix)
}

// Write sends a command to the module
func (m module) Write(cmd string) error {
	return m.write(cmd)
}

// Query sends a command to the module and returns the response
func (m module) Query(cmd string) (string, error) {
	return m.query(cmd)
}

// Read returns the next response from the mainframe
func (m module) Read() (string, error) {
	return m.mf.Read()
}

// Identify returns the model of the module
func (m module) Identify() (string, error) {
	return m.mf.Model(m.slot)
}

// Reset resets the mainframe the module is in, and so every module of it
func (m module) Reset() error {
	return m.mf.Reset()
}

// Close does nothing, the session belongs to the mainframe
func (m module) Close() error {
	return nil
}

// Slot returns the slot the module is in
func (m module) Slot() int {
	return m.slot
}

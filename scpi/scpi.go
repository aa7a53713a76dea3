// Package scpi provides primitives for working with devices that
// have SCPI interfaces, or ASCII command sets close enough to SCPI
// to be driven the same way
package scpi

import (
	"fmt"
	"strings"

	"github.com/amcc/golab/comm"
	"github.com/gotmc/query"
	"go.uber.org/multierr"
)

// Instrument is the capability set every driver in this module exposes.
// Driver specific methods are layered on top of it.
type Instrument interface {
	// Write sends a command that has no response
	Write(cmd string) error

	// Query sends a command and returns its response
	Query(cmd string) (string, error)

	// Read returns the next response from the instrument
	Read() (string, error)

	// Identify returns the identification string of the instrument
	Identify() (string, error)

	// Reset returns the instrument to its power-on state
	Reset() error

	// Close releases the connection to the instrument
	Close() error
}

// SCPI is a type for encapsulating SCPI communication
type SCPI struct {
	Session *comm.Session

	// Handshaking appends an error query to every Write, so a command the
	// device rejects is reported as a *CommandError.  Set it before use, on
	// devices that implement SYSTem:ERRor?.  Queries are not affected.
	Handshaking bool
}

var _ Instrument = (*SCPI)(nil)

// CommandError is a command the device rejected, as reported by SYSTem:ERRor?
type CommandError struct {
	Cmd string

	// Msg is the error queue entry, e.g. -222,"Data out of range"
	Msg string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("scpi: %q rejected: %s", e.Cmd, e.Msg)
}

// isNoError is true for the "no error" response to SYSTem:ERRor?,
// +0,"No error" on most instruments and 0,"No error" on some
func isNoError(s string) bool {
	return strings.HasPrefix(s, "+0") || strings.HasPrefix(s, "0,") || s == "0"
}

// Write sends a command to the device.  With Handshaking the error queue is
// cleared before the command and read after it.
func (s *SCPI) Write(cmd string) error {
	if !s.Handshaking {
		return s.Session.Write(cmd)
	}
	resp, err := s.Session.Query("*CLS;" + cmd + ";:SYSTem:ERRor?")
	if err != nil {
		return err
	}
	if msg := strings.TrimSpace(string(resp)); !isNoError(msg) {
		return &CommandError{Cmd: cmd, Msg: msg}
	}
	return nil
}

// WriteRead sends cmds joined by spaces and returns the response
func (s *SCPI) WriteRead(cmds ...string) ([]byte, error) {
	return s.Session.Query(strings.Join(cmds, " "))
}

// Query satisfies Instrument and query.Querier
func (s *SCPI) Query(cmd string) (string, error) {
	resp, err := s.WriteRead(cmd)
	return string(resp), err
}

// QueryRaw sends a command and reads back an IEEE-488.2 block, see comm.Session.ReadRaw
func (s *SCPI) QueryRaw(cmd string) ([]byte, error) {
	return s.Session.QueryRaw(cmd)
}

// Read returns the next response from the device
func (s *SCPI) Read() (string, error) {
	resp, err := s.Session.Read()
	return string(resp), err
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	return query.String(s, strings.Join(cmds, " "))
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *SCPI) ReadFloat(cmds ...string) (float64, error) {
	return query.Float64(s, strings.Join(cmds, " "))
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	return query.Bool(s, strings.Join(cmds, " "))
}

// ReadInt sends a command to the device, then reads the
// response and parses it as an integer
func (s *SCPI) ReadInt(cmds ...string) (int, error) {
	return query.Int(s, strings.Join(cmds, " "))
}

// Identify returns the response to *IDN?
func (s *SCPI) Identify() (string, error) {
	return s.ReadString("*IDN?")
}

// Reset sends *RST
func (s *SCPI) Reset() error {
	return s.Write("*RST")
}

// Close closes the underlying session
func (s *SCPI) Close() error {
	return s.Session.Close()
}

// PopError gets a single error from the queue on the device
func (s *SCPI) PopError() error {
	str, err := s.ReadString("SYSTem:ERRor?")
	if err != nil {
		return err
	}
	if isNoError(str) {
		return nil
	}
	return fmt.Errorf("%s", str)
}

// AllErrors drains the error queue of the device and returns its contents
// combined into one error, or nil if the queue was empty.  The queue is read
// at most 32 times so a device that never reports "no error" cannot hang the caller.
func (s *SCPI) AllErrors() error {
	var errs error
	for i := 0; i < 32; i++ {
		err := s.PopError()
		if err == nil {
			break
		}
		errs = multierr.Append(errs, err)
		if comm.IsTransport(err) {
			break
		}
	}
	return errs
}

// AllErrorsString is equivalent to AllErrors, but joining by newline
func (s *SCPI) AllErrorsString() string {
	errs := multierr.Errors(s.AllErrors())
	strs := make([]string, len(errs))
	for i := 0; i < len(errs); i++ {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "\n")
}

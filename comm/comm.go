/*Package comm provides the transport session used to talk to lab hardware.

A Session owns one connection to one instrument endpoint.  It is opened from a
VISA-style resource string (see ParseResource) and exposes blocking Write, Read
and Query calls that deal in ASCII lines, plus ReadRaw for IEEE-488.2 definite
length blocks such as oscilloscope waveforms.

Most usages of this package will boil down to:
	1.  Open a session with the address of your hardware
	2.  embed it (usually through scpi.SCPI) in a type that represents your hardware
	3.  write methods on that type which render commands and parse responses

A minimal example for a temperature sensor that responds to "RD?" with the
current temperature:

	type MySensor struct {
		*comm.Session
	}

	func (ms *MySensor) ReadTemp() (float64, error) {
		resp, err := ms.Query("RD?")
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(string(resp), 64)
	}

There are no retries at this layer beyond the connection backoff in Open.
Transport errors are returned as *TransportError or *TimeoutError and are
meant to propagate to the caller unmodified.
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the response timeout used when none is given to Open
	DefaultTimeout = 5 * time.Second

	// DefaultMaxBlock is the largest definite length block ReadRaw accepts
	// unless Session.MaxBlock says otherwise, 512 MiB
	DefaultMaxBlock = 512 << 20
)

var (
	// ErrClosed is generated when Write or Read is called on a closed session
	ErrClosed = errors.New("session is closed")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")

	// ErrNotABlock is generated when ReadRaw does not find an IEEE-488.2 block header
	ErrNotABlock = errors.New("response is not an IEEE-488.2 definite length block")
)

// ConnectionError is returned when a session cannot be established
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("comm: cannot connect to %s: %v", e.Addr, e.Err)
}

// Unwrap returns the cause
func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError is an I/O failure on an open session
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("comm: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the cause
func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError is returned when a read or write exceeds the session timeout
type TimeoutError struct {
	Op    string
	Addr  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("comm: %s %s: timeout after %v", e.Op, e.Addr, e.After)
}

// Timeout is always true, satisfying net.Error-like checks
func (e *TimeoutError) Timeout() bool { return true }

// IsTransport returns true if err is, or wraps, a *TransportError or *TimeoutError
func IsTransport(err error) bool {
	var te *TransportError
	var to *TimeoutError
	return errors.As(err, &te) || errors.As(err, &to)
}

// Terminators holds the transmit and receipt termination bytes
type Terminators struct {
	Tx byte
	Rx byte
}

// deadliner is implemented by net.Conn and anything else that can bound its I/O in time
type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

/*Session is a blocking request/response exchange with one instrument.

The session is safe for concurrent use, Query holds the session lock across
the write and the read so that responses are not interleaved.  Sessions routed
through a shared gateway (GPIB) share the gateway's lock.
*/
type Session struct {
	// Addr is the resource string the session was opened with
	Addr string

	// Timeout bounds each Write and Read
	Timeout time.Duration

	// Term holds the termination bytes
	Term Terminators

	// MaxBlock is the largest block ReadRaw will allocate for
	MaxBlock int

	conn    io.ReadWriteCloser
	rd      *bufio.Reader
	limiter *rate.Limiter
	mu      sync.Locker

	// eofIsTimeout is set on serial transports, which report a read timeout as io.EOF
	eofIsTimeout bool
	closed       bool
}

// NewSession wraps an already open connection in a Session.  It is used by Open
// and is useful for tests, where conn is one end of a net.Pipe or a Mock.
func NewSession(addr string, conn io.ReadWriteCloser, timeout time.Duration, term Terminators) *Session {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Session{
		Addr:     addr,
		Timeout:  timeout,
		Term:     term,
		MaxBlock: DefaultMaxBlock,
		conn:     conn,
		rd:       bufio.NewReader(conn),
		mu:       &sync.Mutex{},
	}
}

// SetPacing enforces a minimum interval between writes on the session.
// A zero interval removes the limit.
func (s *Session) SetPacing(interval time.Duration) {
	if interval <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Every(interval), 1)
}

func (s *Session) wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Op: op, Addr: s.Addr, After: s.Timeout}
	}
	if s.eofIsTimeout && errors.Is(err, io.EOF) {
		return &TimeoutError{Op: op, Addr: s.Addr, After: s.Timeout}
	}
	return &TransportError{Op: op, Addr: s.Addr, Err: err}
}

func (s *Session) setDeadline(write bool) {
	d, ok := s.conn.(deadliner)
	if !ok {
		return
	}
	deadline := time.Now().Add(s.Timeout)
	if write {
		d.SetWriteDeadline(deadline)
		return
	}
	d.SetReadDeadline(deadline)
}

func (s *Session) write(cmd string) error {
	if s.closed {
		return &TransportError{Op: "write", Addr: s.Addr, Err: ErrClosed}
	}
	if s.limiter != nil {
		// a reservation never fails for a burst of 1, the delay is all we need
		time.Sleep(s.limiter.Reserve().Delay())
	}
	// anything left unread belongs to an earlier exchange
	if n := s.rd.Buffered(); n > 0 {
		s.rd.Discard(n)
	}
	s.setDeadline(true)
	b := append([]byte(cmd), s.Term.Tx)
	_, err := s.conn.Write(b)
	return s.wrapErr("write", err)
}

func (s *Session) read() ([]byte, error) {
	if s.closed {
		return nil, &TransportError{Op: "read", Addr: s.Addr, Err: ErrClosed}
	}
	s.setDeadline(false)
	buf, err := s.rd.ReadBytes(s.Term.Rx)
	if err != nil {
		if len(buf) > 0 && errors.Is(err, io.EOF) && !s.eofIsTimeout {
			return buf, s.wrapErr("read", ErrTerminatorNotFound)
		}
		return nil, s.wrapErr("read", err)
	}
	buf = buf[:len(buf)-1]
	if s.Term.Rx == '\n' {
		buf = bytes.TrimSuffix(buf, []byte{'\r'})
	}
	return buf, nil
}

// Write sends a command to the remote, appending the Tx terminator
func (s *Session) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cmd)
}

// WriteBlock sends header followed by data as one IEEE-488.2 definite length
// block, #<n><len><data>, then the Tx terminator.  Used for waveform uploads.
func (s *Session) WriteBlock(header string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(header + string(BlockHeader(len(data))) + string(data))
}

// BlockHeader renders the #<n><len> prefix of a definite length block of n bytes
func BlockHeader(n int) []byte {
	l := strconv.Itoa(n)
	return []byte("#" + strconv.Itoa(len(l)) + l)
}

// BlockPayload returns the data of a definite length block, dropping any
// header text before the '#'
func BlockPayload(buf []byte) ([]byte, error) {
	idx := bytes.IndexByte(buf, '#')
	if idx < 0 || idx+2 > len(buf) {
		return nil, ErrNotABlock
	}
	digit := buf[idx+1]
	if digit < '1' || digit > '9' {
		return nil, ErrNotABlock
	}
	start := idx + 2 + int(digit-'0')
	if start > len(buf) {
		return nil, ErrNotABlock
	}
	length, err := strconv.Atoi(string(buf[idx+2 : start]))
	if err != nil || length < 0 || start+length > len(buf) {
		return nil, ErrNotABlock
	}
	return buf[start : start+length], nil
}

// Read blocks until a full response is received and returns it with the
// Rx terminator stripped
func (s *Session) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Query writes cmd then reads one response
func (s *Session) Query(cmd string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cmd); err != nil {
		return nil, err
	}
	return s.read()
}

// ReadRaw reads one IEEE-488.2 block, #<n><len><data>.  Any header text
// before the '#' is kept, so the returned buffer is exactly what the
// instrument sent, less a trailing Rx terminator.  An indefinite block
// (#0) is read up to the Rx terminator.
func (s *Session) ReadRaw() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRaw()
}

// QueryRaw writes cmd then reads one block with ReadRaw
func (s *Session) QueryRaw(cmd string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cmd); err != nil {
		return nil, err
	}
	return s.readRaw()
}

func (s *Session) maxBlock() int {
	if s.MaxBlock <= 0 {
		return DefaultMaxBlock
	}
	return s.MaxBlock
}

func (s *Session) readRaw() ([]byte, error) {
	if s.closed {
		return nil, &TransportError{Op: "read", Addr: s.Addr, Err: ErrClosed}
	}
	s.setDeadline(false)
	prefix, err := s.rd.ReadBytes('#')
	if err != nil {
		if len(prefix) > 0 && !s.eofIsTimeout {
			return prefix, s.wrapErr("read", ErrNotABlock)
		}
		return nil, s.wrapErr("read", err)
	}
	digit, err := s.rd.ReadByte()
	if err != nil {
		return nil, s.wrapErr("read", err)
	}
	if digit < '0' || digit > '9' {
		return nil, s.wrapErr("read", ErrNotABlock)
	}
	out := append(prefix, digit)
	if digit == '0' {
		rest, err := s.rd.ReadBytes(s.Term.Rx)
		if err != nil {
			return nil, s.wrapErr("read", err)
		}
		return append(out, rest[:len(rest)-1]...), nil
	}
	ndigits := int(digit - '0')
	lenbuf := make([]byte, ndigits)
	if _, err = io.ReadFull(s.rd, lenbuf); err != nil {
		return nil, s.wrapErr("read", err)
	}
	length, err := strconv.Atoi(string(lenbuf))
	if err != nil || length < 0 || length > s.maxBlock() {
		// the rest of a garbled block is of no use to the next exchange
		s.rd.Discard(s.rd.Buffered())
		return nil, s.wrapErr("read", ErrNotABlock)
	}
	out = append(out, lenbuf...)
	data := make([]byte, length)
	if _, err = io.ReadFull(s.rd, data); err != nil {
		return nil, s.wrapErr("read", err)
	}
	out = append(out, data...)
	// the terminator after a block is optional, only eat it if it is already here
	if s.rd.Buffered() > 0 {
		if next, _ := s.rd.Peek(1); len(next) == 1 && next[0] == s.Term.Rx {
			s.rd.Discard(1)
		}
	}
	return out, nil
}

// Close releases the session.  Closing twice is not an error.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.conn.Close()
	if err != nil {
		return &TransportError{Op: "close", Addr: s.Addr, Err: err}
	}
	return nil
}

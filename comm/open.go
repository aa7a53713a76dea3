package comm

import (
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/amcc/golab/usbtmc"
	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
	"github.com/tarm/serial"
)

// ErrNoGateway is generated when a GPIB resource is opened without a Gateway
var ErrNoGateway = errors.New("GPIB resource requires a gateway, none configured")

type options struct {
	timeout time.Duration
	term    Terminators
	serial  *serial.Config
	pacing  time.Duration
	gateway *Gateway
	mock    *Mock
}

// Option configures Open
type Option func(*options)

// WithTimeout sets the per-operation timeout of the session
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTerminators sets the transmit and receipt terminators.  The default is
// newline for both.
func WithTerminators(tx, rx byte) Option {
	return func(o *options) { o.term = Terminators{Tx: tx, Rx: rx} }
}

// WithSerial sets the serial port configuration.  Name and ReadTimeout are
// filled in by Open.
func WithSerial(cfg serial.Config) Option {
	return func(o *options) { o.serial = &cfg }
}

// WithPacing enforces a minimum interval between consecutive writes
func WithPacing(d time.Duration) Option {
	return func(o *options) { o.pacing = d }
}

// WithGateway routes GPIB resources through g
func WithGateway(g *Gateway) Option {
	return func(o *options) { o.gateway = g }
}

// WithMock makes Open use m instead of real hardware.  The address is still
// parsed and validated.
func WithMock(m *Mock) Option {
	return func(o *options) { o.mock = m }
}

// DefaultSerial is the serial configuration used when none is given, 9600 8N1
func DefaultSerial() serial.Config {
	return serial.Config{
		Baud:     9600,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1}
}

// Open parses addr and establishes a session to it.  Failure to resolve or
// connect is reported as a *ConnectionError.
func Open(addr string, opts ...Option) (*Session, error) {
	o := options{timeout: DefaultTimeout, term: Terminators{Tx: '\n', Rx: '\n'}}
	for _, opt := range opts {
		opt(&o)
	}
	res, err := ParseResource(addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}

	var (
		conn         io.ReadWriteCloser
		lock         sync.Locker = &sync.Mutex{}
		eofIsTimeout bool
	)
	switch {
	case o.mock != nil:
		conn = o.mock
	case res.Kind == KindTCPIP || res.Kind == KindSocket:
		conn, err = dialWithBackoff(res.HostPort(), o.timeout)
	case res.Kind == KindSerial:
		cfg := DefaultSerial()
		if o.serial != nil {
			cfg = *o.serial
		}
		cfg.Name = res.Device
		cfg.ReadTimeout = o.timeout
		conn, err = serial.OpenPort(&cfg)
		eofIsTimeout = true
	case res.Kind == KindUSB:
		conn, err = usbtmc.Open(res.VID, res.PID, res.Serial)
	case res.Kind == KindGPIB:
		if o.gateway == nil {
			err = ErrNoGateway
			break
		}
		conn, err = o.gateway.Attach(res.Primary, res.Secondary)
		lock = &o.gateway.mu
	}
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	s := NewSession(addr, conn, o.timeout, o.term)
	s.mu = lock
	s.eofIsTimeout = eofIsTimeout
	s.SetPacing(o.pacing)
	log.Debug().Str("addr", addr).Stringer("kind", res.Kind).Dur("timeout", o.timeout).Msg("session opened")
	return s, nil
}

// dialWithBackoff dials a TCP address, retrying on timeouts with an
// exponential backoff.  A refused connection is not retried.
func dialWithBackoff(addr string, timeout time.Duration) (net.Conn, error) {
	var conn net.Conn
	op := func() error {
		c, err := TCPSetup(addr, timeout)
		if err != nil {
			if errors.Is(err, syscall.ECONNREFUSED) {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	return conn, err
}

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

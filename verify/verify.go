/*Package verify implements the two completion disciplines shared by the
instrument drivers: confirm-and-retry for settings, and status polling for
long running operations.

Both bound their work, and both report exhaustion with a typed error that
carries what was asked for and what was last seen.  Neither swallows a
transport error; those abort immediately.
*/
package verify

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
)

// DefaultAttempts is the attempt budget drivers use unless they have a reason not to
const DefaultAttempts = 3

// SetVerifyFailed is returned when a setting did not read back as requested
// within the attempt budget
type SetVerifyFailed struct {
	Setting   string
	Requested interface{}
	Observed  interface{}
	Attempts  int

	// Err is the last error from the getter, if the last attempt could not be parsed
	Err error
}

func (e *SetVerifyFailed) Error() string {
	s := fmt.Sprintf("verify: %s requested %v, read back %v after %d attempts", e.Setting, e.Requested, e.Observed, e.Attempts)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the last getter error
func (e *SetVerifyFailed) Unwrap() error { return e.Err }

type options struct {
	settle time.Duration
	retry  time.Duration
}

// Option configures SetAndVerify and SetAndVerifyExact
type Option func(*options)

// Settle waits d between the set and the get of each attempt
func Settle(d time.Duration) Option {
	return func(o *options) { o.settle = d }
}

// RetryDelay waits d between a failed attempt and the next
func RetryDelay(d time.Duration) Option {
	return func(o *options) { o.retry = d }
}

// fatal is true for errors that retrying cannot fix
func fatal(err error) bool {
	var ia *scpi.InvalidArgument
	return comm.IsTransport(err) || errors.As(err, &ia)
}

func setAndVerify[T any](name string, set func(T) error, get func() (T, error), value T, match func(T) bool, attempts int, opts []Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if attempts < 1 {
		attempts = 1
	}
	var (
		n        int
		observed interface{}
		lastErr  error
		abort    error
		errMiss  = errors.New("mismatch")
	)
	op := func() error {
		n++
		if err := set(value); err != nil {
			if fatal(err) {
				abort = err
				return nil
			}
			lastErr = err
			return err
		}
		if o.settle > 0 {
			time.Sleep(o.settle)
		}
		got, err := get()
		if err != nil {
			if fatal(err) {
				abort = err
				return nil
			}
			lastErr = err
			log.Warn().Str("setting", name).Interface("requested", value).Err(err).Int("attempt", n).Msg("readback unparseable")
			return err
		}
		observed, lastErr = got, nil
		if match(got) {
			return nil
		}
		log.Warn().Str("setting", name).Interface("requested", value).Interface("observed", got).Int("attempt", n).Msg("readback mismatch")
		return errMiss
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(o.retry), uint64(attempts-1))
	err := backoff.Retry(op, b)
	if abort != nil {
		return abort
	}
	if err != nil {
		return &SetVerifyFailed{Setting: name, Requested: value, Observed: observed, Attempts: n, Err: lastErr}
	}
	return nil
}

// SetAndVerify sets a numeric setting and reads it back until
// |observed - value| <= tolerance, at most attempts times
func SetAndVerify(name string, set func(float64) error, get func() (float64, error), value, tolerance float64, attempts int, opts ...Option) error {
	match := func(got float64) bool { return math.Abs(got-value) <= tolerance }
	return setAndVerify(name, set, get, value, match, attempts, opts)
}

// SetAndVerifyExact is SetAndVerify for settings compared by equality,
// such as enumerations, strings and integers
func SetAndVerifyExact[T comparable](name string, set func(T) error, get func() (T, error), value T, attempts int, opts ...Option) error {
	match := func(got T) bool { return got == value }
	return setAndVerify(name, set, get, value, match, attempts, opts)
}

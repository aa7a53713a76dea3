package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
)

var errNotDone = errors.New("not done")

// PollTimeout is returned when a status poll did not reach a terminal state in time
type PollTimeout struct {
	Op      string
	Last    interface{}
	Elapsed time.Duration

	// Err is the last status error, if the last observation could not be parsed
	Err error
}

func (e *PollTimeout) Error() string {
	return fmt.Sprintf("verify: %s not complete after %v, last status %v", e.Op, e.Elapsed.Round(time.Millisecond), e.Last)
}

// Unwrap returns the last status error
func (e *PollTimeout) Unwrap() error { return e.Err }

/*PollUntil calls status every interval until done holds for its result, and
returns that terminal status.  A status that is terminal on the first call
returns without sleeping.

If timeout elapses first a *PollTimeout is returned carrying the last status
seen.  A zero timeout polls until ctx is done.  Errors from status that are
not transport errors (an unparseable response, usually) count as
non-terminal observations; transport errors abort the poll.
*/
func PollUntil[T any](ctx context.Context, op string, status func() (T, error), done func(T) bool, interval, timeout time.Duration) (T, error) {
	var (
		last    T
		lastErr error
		abort   error
	)
	start := time.Now()
	poll := func() error {
		s, err := status()
		if err != nil {
			if comm.IsTransport(err) {
				abort = err
				return nil
			}
			lastErr = err
			return err
		}
		last, lastErr = s, nil
		if done(s) {
			return nil
		}
		return errNotDone
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     interval,
		RandomizationFactor: 0,
		Multiplier:          1,
		MaxInterval:         interval,
		MaxElapsedTime:      timeout,
		Clock:               backoff.SystemClock}
	err := backoff.Retry(poll, backoff.WithContext(b, ctx))
	if abort != nil {
		return last, abort
	}
	if err == nil {
		return last, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return last, ctxErr
	}
	elapsed := time.Since(start)
	log.Warn().Str("op", op).Interface("last", last).Dur("elapsed", elapsed).Msg("poll timed out")
	return last, &PollTimeout{Op: op, Last: last, Elapsed: elapsed, Err: lastErr}
}

// Package locker provides an HTTP middleware which allows the routes of an
// instrument to be locked by one client, returning 423 (locked) to the rest.
//
// Nodes that share hardware (modules of one mainframe) share one Locker.
package locker

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/amcc/golab/server"
	"github.com/rs/zerolog/log"
)

// Route is the last path element of the lock route, which is never protected
const Route = "lock"

// Inject adds GET and POST /lock to a server.HTTPer
func Inject(other server.HTTPer, l *Locker) {
	rt := other.RT()
	rt[server.Get("/"+Route)] = l.HTTPGet
	rt[server.Post("/"+Route)] = l.HTTPSet
}

// Locker is a non-blocking lock with a record of who holds it
type Locker struct {
	mu     sync.RWMutex
	holder string
	since  time.Time
	locked bool

	// Exempt holds the last path elements that remain reachable while locked
	Exempt map[string]bool
}

// New returns an unlocked Locker that exempts the lock route
func New() *Locker {
	return &Locker{Exempt: map[string]bool{Route: true}}
}

// Lock the locker on behalf of holder
func (l *Locker) Lock(holder string) {
	l.mu.Lock()
	l.locked, l.holder, l.since = true, holder, time.Now()
	l.mu.Unlock()
}

// Unlock the locker
func (l *Locker) Unlock() {
	l.mu.Lock()
	l.locked, l.holder = false, ""
	l.mu.Unlock()
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.locked
}

// Holder returns who locked the locker and when, "" if it is unlocked
func (l *Locker) Holder() (string, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holder, l.since
}

// Check is an HTTP middleware that bounces requests with http.StatusLocked
// while the locker is locked, unless their path is exempt
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.mu.RLock()
		locked, holder, since := l.locked, l.holder, l.since
		l.mu.RUnlock()
		if locked && !l.Exempt[path.Base(r.URL.Path)] {
			msg := fmt.Sprintf("locked by %s since %s", holder, since.Format(time.RFC3339))
			http.Error(w, msg, http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet locks or unlocks based on {"bool": value} in the request body.
// The client's remote address is recorded as the holder.
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	b := server.BoolT{}
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Bool {
		l.Lock(r.RemoteAddr)
	} else {
		l.Unlock()
	}
	log.Info().Str("path", r.URL.Path).Str("client", r.RemoteAddr).Bool("locked", b.Bool).Msg("lock")
	w.WriteHeader(http.StatusOK)
}

// HTTPGet replies with Locked() as {"bool": value}
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	server.HumanPayload{T: types.Bool, Bool: l.Locked()}.EncodeAndRespond(w, r)
}

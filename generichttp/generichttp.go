// Package generichttp adapts getter and setter methods of instruments to
// HTTP handlers that speak the JSON payloads of package server
package generichttp

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
	"strings"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/lecroy"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/server"
	"github.com/amcc/golab/verify"
	"github.com/rs/zerolog/log"
)

// StatusFor maps an error to the HTTP status reported to the client.
//
//	*scpi.InvalidArgument       422
//	*scpi.CommandError          422
//	*verify.SetVerifyFailed     409
//	*verify.PollTimeout         504
//	transport or decode errors  502
//	anything else               500
func StatusFor(err error) int {
	var (
		ia *scpi.InvalidArgument
		ce *scpi.CommandError
		sv *verify.SetVerifyFailed
		pt *verify.PollTimeout
		de *lecroy.DecodeError
		co *comm.ConnectionError
	)
	switch {
	case errors.As(err, &ia), errors.As(err, &ce):
		return http.StatusUnprocessableEntity
	case errors.As(err, &sv):
		return http.StatusConflict
	case errors.As(err, &pt):
		return http.StatusGatewayTimeout
	case comm.IsTransport(err), errors.As(err, &de), errors.As(err, &co):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error replies to the request with err and the status from StatusFor
func Error(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Int("status", code).Msg("request failed")
	} else {
		log.Warn().Err(err).Str("path", r.URL.Path).Int("status", code).Msg("request rejected")
	}
	http.Error(w, err.Error(), code)
}

// decode reads a JSON payload into v, replying 400 on failure
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			Error(w, r, err)
			return
		}
		hp := server.HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {'f64': value} and
// calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := server.FloatT{}
		if !decode(w, r, &f) {
			return
		}
		if err := fcn(f.F64); err != nil {
			Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetInt calls an int-getting function and returns the response
// as json {'int': value}
func GetInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			Error(w, r, err)
			return
		}
		hp := server.HumanPayload{T: types.Int, Int: i}
		hp.EncodeAndRespond(w, r)
	}
}

// SetInt parses a JSON input of {'int': value} and
// calls fcn with it
func SetInt(fcn func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := server.IntT{}
		if !decode(w, r, &i) {
			return
		}
		if err := fcn(i.Int); err != nil {
			Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			Error(w, r, err)
			return
		}
		hp := server.HumanPayload{T: types.String, String: s}
		hp.EncodeAndRespond(w, r)
	}
}

// SetString parses a JSON input of {'str': value} and
// calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := server.StrT{}
		if !decode(w, r, &s) {
			return
		}
		if err := fcn(s.Str); err != nil {
			Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			Error(w, r, err)
			return
		}
		hp := server.HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and
// calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := server.BoolT{}
		if !decode(w, r, &b) {
			return
		}
		if err := fcn(b.Bool); err != nil {
			Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// SetEnable is SetBool for a pair of enable and disable functions
func SetEnable(enable, disable func() error) http.HandlerFunc {
	return SetBool(func(b bool) error {
		if b {
			return enable()
		}
		return disable()
	})
}

// Do calls an action that takes no argument, e.g. a reset
func Do(fcn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fcn(); err != nil {
			Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// SetJSON decodes a JSON payload into a T and calls fcn with it, for
// settings with more than one field
func SetJSON[T any](fcn func(T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var v T
		if !decode(w, r, &v) {
			return
		}
		if err := fcn(v); err != nil {
			Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetJSON calls fcn and replies with its result encoded as JSON
func GetJSON[T any](fcn func() (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fcn()
		if err != nil {
			Error(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err = json.NewEncoder(w).Encode(v); err != nil {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("encoding response")
		}
	}
}

// SubMuxSanitize converts a URL for a submux to the form chi mounts,
// "omc/nkt" and "/omc/nkt/*" => "/omc/nkt"
func SubMuxSanitize(str string) string {
	str = strings.TrimSuffix(str, "*")
	str = strings.Trim(str, "/")
	return "/" + str
}

// Wrapper is an HTTPer built up by the Inject functions of this package
type Wrapper struct {
	Table server.RouteTable
}

// NewWrapper returns a Wrapper with an empty route table
func NewWrapper() *Wrapper {
	return &Wrapper{Table: server.RouteTable{}}
}

// RT satisfies server.HTTPer
func (w *Wrapper) RT() server.RouteTable {
	return w.Table
}

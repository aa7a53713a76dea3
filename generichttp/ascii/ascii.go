// Package ascii contains some injectable HTTP interfaces to ASCII hardare
package ascii

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"

	"github.com/amcc/golab/generichttp"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/server"
)

// Raw sends str to the instrument.  If it is a query (contains '?') the
// response is returned, otherwise a blank string.
func Raw(inst scpi.Instrument, str string) (string, error) {
	if strings.Contains(str, "?") {
		return inst.Query(str)
	}
	return "", inst.Write(str)
}

// RawWrapper is a wrapper around an instrument
type RawWrapper struct {
	Comm scpi.Instrument
}

// HTTPRaw provides access to the raw function over http
func (rw *RawWrapper) HTTPRaw(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := Raw(rw.Comm, str.Str)
	if err != nil {
		generichttp.Error(w, r, err)
		return
	}
	hp := server.HumanPayload{T: types.String, String: resp}
	hp.EncodeAndRespond(w, r)
}

// InjectRawComm injects a /raw POST route and an /idn GET route into the
// route table of an HTTPer
func InjectRawComm(other server.HTTPer, inst scpi.Instrument) {
	wrap := RawWrapper{Comm: inst}
	rt := other.RT()
	rt[server.Post("/raw")] = wrap.HTTPRaw
	rt[server.Get("/idn")] = generichttp.GetString(inst.Identify)
	rt[server.Post("/reset")] = generichttp.Do(inst.Reset)
}

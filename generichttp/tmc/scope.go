package tmc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amcc/golab/generichttp"
	"github.com/amcc/golab/lecroy"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/server"
)

// DefaultTraceTimeout is how long a trace request waits for a trigger
// when the request does not say
const DefaultTraceTimeout = 10 * time.Second

// Oscilloscope is a scope which can be triggered and read out remotely
type Oscilloscope interface {
	SingleTrace(ctx context.Context, ch string, timeout time.Duration) (lecroy.Waveform, error)
	Waveform(ch string) (lecroy.Waveform, error)
	GetTriggerMode() (string, error)
	SetTriggerMode(string) error
	ClearSweeps() error
	Screenshot(w io.Writer, whiteBackground bool) error
}

var _ Oscilloscope = (*lecroy.Scope)(nil)

// HTTPOscilloscope injects the routes of an oscilloscope:
//
//	GET  /trace?ch=C1&timeout=10s&fmt=csv|fits  arms, waits and returns a trace
//	GET  /waveform?ch=C1&fmt=csv|fits           returns the trace on screen
//	GET  /trigger-mode, POST /trigger-mode
//	POST /clear-sweeps
//	GET  /screenshot?white=1
//
// Traces carry the CRC-32 of their data in the X-Data-CRC header.
func HTTPOscilloscope(o Oscilloscope, table server.RouteTable) {
	table[server.Get("/trace")] = func(w http.ResponseWriter, r *http.Request) {
		timeout, err := durationParam(r, "timeout", DefaultTraceTimeout)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		wf, err := o.SingleTrace(r.Context(), channelParam(r), timeout)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		replyWithTrace(w, r, wf)
	}
	table[server.Get("/waveform")] = func(w http.ResponseWriter, r *http.Request) {
		wf, err := o.Waveform(channelParam(r))
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		replyWithTrace(w, r, wf)
	}
	table[server.Get("/trigger-mode")] = generichttp.GetString(o.GetTriggerMode)
	table[server.Post("/trigger-mode")] = generichttp.SetString(o.SetTriggerMode)
	table[server.Post("/clear-sweeps")] = generichttp.Do(o.ClearSweeps)
	table[server.Get("/screenshot")] = func(w http.ResponseWriter, r *http.Request) {
		buf := &bytes.Buffer{}
		white := r.URL.Query().Get("white") != ""
		if err := o.Screenshot(buf, white); err != nil {
			generichttp.Error(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}
}

func channelParam(r *http.Request) string {
	ch := r.URL.Query().Get("ch")
	if ch == "" {
		return "C1"
	}
	return strings.ToUpper(ch)
}

// replyWithTrace encodes the trace in the format asked for by ?fmt=, CSV by default
func replyWithTrace(w http.ResponseWriter, r *http.Request, wf lecroy.Waveform) {
	buf := &bytes.Buffer{}
	var (
		err   error
		ctype string
	)
	switch strings.ToLower(r.URL.Query().Get("fmt")) {
	case "", "csv":
		ctype = "text/csv"
		err = wf.EncodeCSV(buf)
	case "fits":
		ctype = "application/fits"
		err = wf.EncodeFITS(buf)
	default:
		err = &scpi.InvalidArgument{Setting: "fmt", Value: r.URL.Query().Get("fmt"), Domain: "one of csv, fits"}
	}
	if err != nil {
		generichttp.Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("X-Data-CRC", fmt.Sprintf("%08x", wf.Checksum()))
	w.Write(buf.Bytes())
}

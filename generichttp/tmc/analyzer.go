package tmc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/amcc/golab/agilent"
	"github.com/amcc/golab/generichttp"
	"github.com/amcc/golab/oscilloscope"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/server"
	"github.com/amcc/golab/tektronix"
	"github.com/go-chi/chi"
)

// AWG is an arbitrary waveform generator that plays named waveforms
type AWG interface {
	SetClock(hz float64) error
	SetAmplitude(ch int, vpp float64) error
	SetOffset(ch int, volts float64) error
	SetMarkerLevels(ch, marker int, low, high float64) error
	SetRunMode(mode string) error
	SetOutput(ch int, on, run bool) error
	SetLowpass(ch int, hz float64) error
	TriggerNow() error
	Upload(name string, w tektronix.Waveform) error
	UploadSequence(name string, steps []tektronix.Step) error
	Load(ch int, name string) error
	ReadFile(name string) ([]byte, error)
}

var _ AWG = (*tektronix.AWG)(nil)

// channelSet adapts a channel-indexed setter to a handler reading ?ch=
func channelSet(set func(int, float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := intParam(r, "ch", 1)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		generichttp.SetFloat(func(v float64) error { return set(ch, v) })(w, r)
	}
}

// MarkerLevels is the payload of POST /marker
type MarkerLevels struct {
	Marker int     `json:"marker"`
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
}

// Pulse is the payload of POST /pulse/{name}
type Pulse struct {
	Width float64 `json:"width"`
	Edge  float64 `json:"edge"`
	Volts float64 `json:"volts"`
	Rate  float64 `json:"rate"`
}

/*HTTPAWG injects the routes of an arbitrary waveform generator:

	POST /clock {"f64"}, /amplitude?ch= {"f64"}, /offset?ch= {"f64"}
	POST /lowpass?ch= {"f64"}, zero for no filter
	POST /marker?ch= {"marker", "low", "high"}
	POST /run-mode {"str": TRIG|CONT|ENH}
	POST /output?ch= {"bool"}, starting or stopping playback with the output
	POST /trigger
	POST /waveform/{name} tektronix.Waveform
	POST /pulse/{name} {"width", "edge", "volts", "rate"}
	POST /sequence/{name} [tektronix.Step]
	POST /load/{name}?ch=
	GET  /file/{name}
*/
func HTTPAWG(a AWG, table server.RouteTable) {
	table[server.Post("/clock")] = generichttp.SetFloat(a.SetClock)
	table[server.Post("/amplitude")] = channelSet(a.SetAmplitude)
	table[server.Post("/offset")] = channelSet(a.SetOffset)
	table[server.Post("/lowpass")] = channelSet(a.SetLowpass)
	table[server.Post("/marker")] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := intParam(r, "ch", 1)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		generichttp.SetJSON(func(m MarkerLevels) error {
			return a.SetMarkerLevels(ch, m.Marker, m.Low, m.High)
		})(w, r)
	}
	table[server.Post("/run-mode")] = generichttp.SetString(a.SetRunMode)
	table[server.Post("/output")] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := intParam(r, "ch", 1)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		generichttp.SetBool(func(on bool) error { return a.SetOutput(ch, on, on) })(w, r)
	}
	table[server.Post("/trigger")] = generichttp.Do(a.TriggerNow)
	table[server.Post("/waveform/{name}")] = func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		generichttp.SetJSON(func(wf tektronix.Waveform) error { return a.Upload(name, wf) })(w, r)
	}
	table[server.Post("/pulse/{name}")] = func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		generichttp.SetJSON(func(p Pulse) error {
			wf, err := tektronix.PulseWaveform(p.Width, p.Edge, p.Volts, p.Rate)
			if err != nil {
				return err
			}
			return a.Upload(name, wf)
		})(w, r)
	}
	table[server.Post("/sequence/{name}")] = func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		generichttp.SetJSON(func(steps []tektronix.Step) error { return a.UploadSequence(name, steps) })(w, r)
	}
	table[server.Post("/load/{name}")] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := intParam(r, "ch", 1)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		name := chi.URLParam(r, "name")
		generichttp.Do(func() error { return a.Load(ch, name) })(w, r)
	}
	table[server.Get("/file/{name}")] = func(w http.ResponseWriter, r *http.Request) {
		buf, err := a.ReadFile(chi.URLParam(r, "name"))
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(buf)
	}
}

// replyWithSpectrum encodes a spectrum in the format asked for by ?fmt=, CSV by default
func replyWithSpectrum(w http.ResponseWriter, r *http.Request, spec oscilloscope.Spectrum) {
	buf := &bytes.Buffer{}
	var (
		err   error
		ctype string
	)
	switch strings.ToLower(r.URL.Query().Get("fmt")) {
	case "", "csv":
		ctype = "text/csv"
		err = spec.EncodeCSV(buf)
	case "json":
		ctype = "application/json"
		err = json.NewEncoder(buf).Encode(spec)
	default:
		err = &scpi.InvalidArgument{Setting: "fmt", Value: r.URL.Query().Get("fmt"), Domain: "one of csv, json"}
	}
	if err != nil {
		generichttp.Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Write(buf.Bytes())
}

// SignalAnalyzer is a swept or FFT analyzer with averaging
type SignalAnalyzer interface {
	SetMeasurement(mode, measurement string) error
	SetFormat(string) error
	Format() (string, error)
	SetAverage(on bool, typ string, count int) error
	WaitForAverage(ctx context.Context, timeout time.Duration) error
	SetSpan(span, center float64) error
	SetStartStop(start, stop float64) error
	MoveMarker(move string) error
	FrequencyCount() (float64, error)
	Pause() error
	Continue() error
	Abort() error
	Preset() error
	Spectrum() (oscilloscope.Spectrum, error)
}

var _ SignalAnalyzer = (*agilent.VSA)(nil)

// Measurement is the payload of POST /measurement
type Measurement struct {
	Mode        string `json:"mode"`
	Measurement string `json:"measurement"`
}

// Average is the payload of POST /average
type Average struct {
	On    bool   `json:"on"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Band is the payload of the frequency range routes, either start and stop
// or center and span in Hz
type Band struct {
	Start  float64 `json:"start,omitempty"`
	Stop   float64 `json:"stop,omitempty"`
	Center float64 `json:"center,omitempty"`
	Span   float64 `json:"span,omitempty"`
}

/*HTTPSignalAnalyzer injects the routes of a signal analyzer:

	POST /measurement {"mode", "measurement"}
	GET  /format, POST /format {"str"}
	POST /average {"on", "type", "count"}
	POST /average/wait?timeout=60s
	POST /span {"center", "span"}, POST /start-stop {"start", "stop"}
	POST /marker {"str": MAX|MIN|LEFT|RIGHT|NEXT}, GET /marker/frequency
	POST /pause, /continue, /abort, /preset
	GET  /spectrum?fmt=csv|json
*/
func HTTPSignalAnalyzer(a SignalAnalyzer, table server.RouteTable) {
	table[server.Post("/measurement")] = generichttp.SetJSON(func(m Measurement) error {
		return a.SetMeasurement(m.Mode, m.Measurement)
	})
	table[server.Get("/format")] = generichttp.GetString(a.Format)
	table[server.Post("/format")] = generichttp.SetString(a.SetFormat)
	table[server.Post("/average")] = generichttp.SetJSON(func(av Average) error {
		return a.SetAverage(av.On, av.Type, av.Count)
	})
	table[server.Post("/average/wait")] = func(w http.ResponseWriter, r *http.Request) {
		timeout, err := durationParam(r, "timeout", time.Minute)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		generichttp.Do(func() error { return a.WaitForAverage(r.Context(), timeout) })(w, r)
	}
	table[server.Post("/span")] = generichttp.SetJSON(func(b Band) error { return a.SetSpan(b.Span, b.Center) })
	table[server.Post("/start-stop")] = generichttp.SetJSON(func(b Band) error { return a.SetStartStop(b.Start, b.Stop) })
	table[server.Post("/marker")] = generichttp.SetString(a.MoveMarker)
	table[server.Get("/marker/frequency")] = generichttp.GetFloat(a.FrequencyCount)
	table[server.Post("/pause")] = generichttp.Do(a.Pause)
	table[server.Post("/continue")] = generichttp.Do(a.Continue)
	table[server.Post("/abort")] = generichttp.Do(a.Abort)
	table[server.Post("/preset")] = generichttp.Do(a.Preset)
	table[server.Get("/spectrum")] = func(w http.ResponseWriter, r *http.Request) {
		spec, err := a.Spectrum()
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		replyWithSpectrum(w, r, spec)
	}
}

// NetworkAnalyzer sweeps an S parameter against frequency
type NetworkAnalyzer interface {
	SetParameter(string) error
	SetPoints(int) error
	SetStartStop(start, stop float64) error
	SetCenterSpan(center, span float64) error
	SetPower(dbm float64) error
	SetFormat(string) error
	Measure(trace int) (oscilloscope.Spectrum, error)
}

var _ NetworkAnalyzer = (*agilent.FieldFox)(nil)

/*HTTPNetworkAnalyzer injects the routes of a network analyzer:

	POST /parameter {"str": S11|S21}
	POST /points {"int"}, /power {"f64"}, /format {"str": MLOG|MLIN}
	POST /span {"center", "span"}, POST /start-stop {"start", "stop"}
	GET  /sweep?trace=1&fmt=csv|json
*/
func HTTPNetworkAnalyzer(a NetworkAnalyzer, table server.RouteTable) {
	table[server.Post("/parameter")] = generichttp.SetString(a.SetParameter)
	table[server.Post("/points")] = generichttp.SetInt(a.SetPoints)
	table[server.Post("/power")] = generichttp.SetFloat(a.SetPower)
	table[server.Post("/format")] = generichttp.SetString(a.SetFormat)
	table[server.Post("/span")] = generichttp.SetJSON(func(b Band) error { return a.SetCenterSpan(b.Center, b.Span) })
	table[server.Post("/start-stop")] = generichttp.SetJSON(func(b Band) error { return a.SetStartStop(b.Start, b.Stop) })
	table[server.Get("/sweep")] = func(w http.ResponseWriter, r *http.Request) {
		trace, err := intParam(r, "trace", 1)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		spec, err := a.Measure(trace)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		replyWithSpectrum(w, r, spec)
	}
}

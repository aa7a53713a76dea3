// Package tmc provides an HTTP interface to test and measurement devices
package tmc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/amcc/golab/generichttp"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/server"
	"github.com/go-chi/chi"
)

// intParam parses an integer query parameter, def if it is absent
func intParam(r *http.Request, name string, def int) (int, error) {
	str := r.URL.Query().Get(name)
	if str == "" {
		return def, nil
	}
	i, err := strconv.Atoi(str)
	if err != nil {
		return 0, &scpi.InvalidArgument{Setting: name, Value: str, Domain: "an integer"}
	}
	return i, nil
}

// durationParam parses a duration query parameter such as 500ms, def if it is absent
func durationParam(r *http.Request, name string, def time.Duration) (time.Duration, error) {
	str := r.URL.Query().Get(name)
	if str == "" {
		return def, nil
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, &scpi.InvalidArgument{Setting: name, Value: str, Domain: "a duration, e.g. 1.5s"}
	}
	return d, nil
}

// withChannel adapts a channel-indexed getter to a handler reading ?ch=
func withChannel(def int, fcn func(int) (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := intParam(r, "ch", def)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		generichttp.GetFloat(func() (float64, error) { return fcn(ch) })(w, r)
	}
}

// FunctionGenerator describes an interface to a two channel function generator
type FunctionGenerator interface {
	Frequency(ch int) (float64, error)
	SetFrequency(ch int, hz float64) error
	Amplitude(ch int) (float64, error)
	SetAmplitude(ch int, vpp float64) error
	SetOffset(ch int, volts float64) error
	SetOutput(ch int, on bool) error
	SetLoad(ch int, ohms float64) error
	TriggerNow(ch int) error
}

// HTTPFunctionGenerator injects an HTTP interface to one channel of a
// function generator into a route table
func HTTPFunctionGenerator(fg FunctionGenerator, ch int, table server.RouteTable) {
	rt := table
	rt[server.Get("/frequency")] = generichttp.GetFloat(func() (float64, error) { return fg.Frequency(ch) })
	rt[server.Post("/frequency")] = generichttp.SetFloat(func(hz float64) error { return fg.SetFrequency(ch, hz) })

	rt[server.Get("/amplitude")] = generichttp.GetFloat(func() (float64, error) { return fg.Amplitude(ch) })
	rt[server.Post("/amplitude")] = generichttp.SetFloat(func(v float64) error { return fg.SetAmplitude(ch, v) })

	rt[server.Post("/offset")] = generichttp.SetFloat(func(v float64) error { return fg.SetOffset(ch, v) })
	rt[server.Post("/load")] = generichttp.SetFloat(func(v float64) error { return fg.SetLoad(ch, v) })
	rt[server.Post("/output")] = generichttp.SetBool(func(b bool) error { return fg.SetOutput(ch, b) })
	rt[server.Post("/trigger")] = generichttp.Do(func() error { return fg.TriggerNow(ch) })
}

// Counter is a frequency counter that counts for a fixed gate time
type Counter interface {
	TimedCount(d time.Duration) (float64, error)
	TimedFrequencyRatio(d time.Duration) (float64, error)
}

// HTTPCounter injects GET /count?gate=1s and GET /ratio?gate=1s
func HTTPCounter(c Counter, table server.RouteTable) {
	gated := func(fcn func(time.Duration) (float64, error)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			d, err := durationParam(r, "gate", time.Second)
			if err != nil {
				generichttp.Error(w, r, err)
				return
			}
			generichttp.GetFloat(func() (float64, error) { return fcn(d) })(w, r)
		}
	}
	table[server.Get("/count")] = gated(c.TimedCount)
	table[server.Get("/ratio")] = gated(c.TimedFrequencyRatio)
}

// Multimeter measures DC voltage and resistance
type Multimeter interface {
	Voltage() (float64, error)
	Resistance(max float64) (float64, error)
}

// HTTPMultimeter injects GET /voltage and GET /resistance
func HTTPMultimeter(m Multimeter, table server.RouteTable) {
	table[server.Get("/voltage")] = generichttp.GetFloat(m.Voltage)
	table[server.Get("/resistance")] = generichttp.GetFloat(func() (float64, error) { return m.Resistance(0) })
}

// Lockin is a lock-in amplifier with an internal oscillator
type Lockin interface {
	R() (float64, error)
	Phase() (float64, error)
	Amplitude() (float64, error)
	SetAmplitude(float64) error
	Frequency() (float64, error)
	SetFrequency(float64) error
	AutoMeasure() error
	AutoSensitivity() error
}

// HTTPLockin injects the routes of a lock-in amplifier
func HTTPLockin(l Lockin, table server.RouteTable) {
	table[server.Get("/r")] = generichttp.GetFloat(l.R)
	table[server.Get("/phase")] = generichttp.GetFloat(l.Phase)
	table[server.Get("/amplitude")] = generichttp.GetFloat(l.Amplitude)
	table[server.Post("/amplitude")] = generichttp.SetFloat(l.SetAmplitude)
	table[server.Get("/frequency")] = generichttp.GetFloat(l.Frequency)
	table[server.Post("/frequency")] = generichttp.SetFloat(l.SetFrequency)
	table[server.Post("/auto-measure")] = generichttp.Do(l.AutoMeasure)
	table[server.Post("/auto-sensitivity")] = generichttp.Do(l.AutoSensitivity)
}

// PolarizationController has three waveplates addressed by axis name
type PolarizationController interface {
	Center() error
	Waveplate(axis string) (float64, error)
	SetWaveplate(axis string, deg float64) error
	SetRate(rate int) error
}

// HTTPPolarizationController injects GET and POST /waveplate/{axis},
// POST /center and POST /rate
func HTTPPolarizationController(p PolarizationController, table server.RouteTable) {
	table[server.Get("/waveplate/{axis}")] = func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		generichttp.GetFloat(func() (float64, error) { return p.Waveplate(axis) })(w, r)
	}
	table[server.Post("/waveplate/{axis}")] = func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		generichttp.SetFloat(func(deg float64) error { return p.SetWaveplate(axis, deg) })(w, r)
	}
	table[server.Post("/center")] = generichttp.Do(p.Center)
	table[server.Post("/rate")] = generichttp.SetInt(p.SetRate)
}

// RFSwitch is a pair of single pole, multi throw switches
type RFSwitch interface {
	SelectPort(sw, port int) error
	Disable(sw int) error
}

// HTTPRFSwitch injects POST /switch/{n} {"int": port} and POST /disable {"int": switch}
func HTTPRFSwitch(s RFSwitch, table server.RouteTable) {
	table[server.Post("/switch/{n}")] = func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(chi.URLParam(r, "n"))
		if err != nil {
			generichttp.Error(w, r, &scpi.InvalidArgument{Setting: "switch", Value: chi.URLParam(r, "n"), Domain: "an integer"})
			return
		}
		generichttp.SetInt(func(port int) error { return s.SelectPort(n, port) })(w, r)
	}
	table[server.Post("/disable")] = generichttp.SetInt(s.Disable)
}

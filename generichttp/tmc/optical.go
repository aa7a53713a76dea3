package tmc

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/amcc/golab/generichttp"
	"github.com/amcc/golab/oscilloscope"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/server"

	"github.com/go-chi/chi"
)

// the capabilities of optical instruments.  An instrument gets the routes
// of every interface it satisfies.
type (
	// PowerMeter reads optical power in W
	PowerMeter interface {
		Power() (float64, error)
	}

	// PowerSetter programs an optical source in W
	PowerSetter interface {
		SetPower(float64) error
	}

	// Attenuator is a variable optical attenuator in dB
	Attenuator interface {
		Attenuation() (float64, error)
		SetAttenuation(float64) error
	}

	// Wavelengther has a wavelength, or wavelength calibration, in nm
	Wavelengther interface {
		Wavelength() (float64, error)
		SetWavelength(float64) error
	}

	// WavelengthSetter can only program the wavelength
	WavelengthSetter interface {
		SetWavelength(float64) error
	}

	// intWavelengther reports a wavelength in whole nm
	intWavelengther interface {
		Wavelength() (int, error)
		SetWavelength(float64) error
	}

	// Enabler has an output or shutter that can be opened and closed
	Enabler interface {
		Enable() error
		Disable() error
		Enabled() (bool, error)
	}

	// Zeroer runs a dark calibration
	Zeroer interface {
		Zero(ctx context.Context) (time.Duration, error)
	}

	// Logger takes a series of readings
	Logger interface {
		Log(ctx context.Context, n int, delay time.Duration) (oscilloscope.Recording, error)
	}

	// Averager has an integer averaging setting, a time in ms or a sample count
	Averager interface {
		AveragingTime() (int, error)
		SetAveragingTime(int) error
	}

	// Router is a 2x2 optical switch, 1 straight and 2 cross
	Router interface {
		Route() (int, error)
		SetRoute(int) error
	}

	// Statuser reports a status word
	Statuser interface {
		Status() (string, error)
	}

	// BeamBlocker has a shutter that blocks the output
	BeamBlocker interface {
		SetBeamBlock(bool) error
	}
)

// HTTPOptical injects the routes for every optical capability inst has:
//
//	PowerMeter    GET /power
//	PowerSetter   POST /power
//	Attenuator    GET, POST /attenuation
//	Wavelengther  GET, POST /wavelength
//	Enabler       GET, POST /output
//	Zeroer        POST /zero
//	Logger        GET /log?n=10&delay=1s
//	Averager      GET, POST /averaging
//	Router        GET, POST /route
//	Statuser      GET /status
//	BeamBlocker   POST /beam-block
func HTTPOptical(inst interface{}, table server.RouteTable) {
	if pm, ok := inst.(PowerMeter); ok {
		table[server.Get("/power")] = generichttp.GetFloat(pm.Power)
	}
	if ps, ok := inst.(PowerSetter); ok {
		table[server.Post("/power")] = generichttp.SetFloat(ps.SetPower)
	}
	if a, ok := inst.(Attenuator); ok {
		table[server.Get("/attenuation")] = generichttp.GetFloat(a.Attenuation)
		table[server.Post("/attenuation")] = generichttp.SetFloat(a.SetAttenuation)
	}
	switch wl := inst.(type) {
	case Wavelengther:
		table[server.Get("/wavelength")] = generichttp.GetFloat(wl.Wavelength)
		table[server.Post("/wavelength")] = generichttp.SetFloat(wl.SetWavelength)
	case intWavelengther:
		table[server.Get("/wavelength")] = generichttp.GetInt(wl.Wavelength)
		table[server.Post("/wavelength")] = generichttp.SetFloat(wl.SetWavelength)
	case WavelengthSetter:
		table[server.Post("/wavelength")] = generichttp.SetFloat(wl.SetWavelength)
	}
	if e, ok := inst.(Enabler); ok {
		table[server.Get("/output")] = generichttp.GetBool(e.Enabled)
		table[server.Post("/output")] = generichttp.SetEnable(e.Enable, e.Disable)
	}
	if z, ok := inst.(Zeroer); ok {
		table[server.Post("/zero")] = func(w http.ResponseWriter, r *http.Request) {
			generichttp.Do(func() error {
				_, err := z.Zero(r.Context())
				return err
			})(w, r)
		}
	}
	if l, ok := inst.(Logger); ok {
		table[server.Get("/log")] = httpLog(l)
	}
	if a, ok := inst.(Averager); ok {
		table[server.Get("/averaging")] = generichttp.GetInt(a.AveragingTime)
		table[server.Post("/averaging")] = generichttp.SetInt(a.SetAveragingTime)
	}
	if rt, ok := inst.(Router); ok {
		table[server.Get("/route")] = generichttp.GetInt(rt.Route)
		table[server.Post("/route")] = generichttp.SetInt(rt.SetRoute)
	}
	if s, ok := inst.(Statuser); ok {
		table[server.Get("/status")] = generichttp.GetString(s.Status)
	}
	if b, ok := inst.(BeamBlocker); ok {
		table[server.Post("/beam-block")] = generichttp.SetBool(b.SetBeamBlock)
	}
}

// httpLog replies with a CSV of n readings taken delay apart
func httpLog(l Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := intParam(r, "n", 10)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		delay, err := durationParam(r, "delay", time.Second)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		rec, err := l.Log(r.Context(), n, delay)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		if err = rec.EncodeCSV(w); err != nil {
			generichttp.Error(w, r, err)
		}
	}
}

// Lightwave is a modular optical mainframe whose commands carry the slot
type Lightwave interface {
	LaserWavelength(slot int) (float64, error)
	SetLaserWavelength(slot int, nm float64) error
	SetLaserPower(slot int, dbm float64) error
	SetLaserOutput(slot int, on bool) error
	MeterPower(slot int) (float64, error)
	SetMeterWavelength(slot int, nm float64) error
	Attenuation(slot int) (float64, error)
	SetAttenuation(slot int, db float64) error
	SetAttenuatorWavelength(slot int, nm float64) error
}

// slotParam reads the {slot} URL parameter
func slotParam(r *http.Request) (int, error) {
	str := chi.URLParam(r, "slot")
	slot, err := strconv.Atoi(str)
	if err != nil {
		return 0, &scpi.InvalidArgument{Setting: "slot", Value: str, Domain: "an integer"}
	}
	return slot, nil
}

func slotFloat(get func(int) (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotParam(r)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		generichttp.GetFloat(func() (float64, error) { return get(slot) })(w, r)
	}
}

func slotSetFloat(set func(int, float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotParam(r)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		generichttp.SetFloat(func(f float64) error { return set(slot, f) })(w, r)
	}
}

// HTTPLightwave injects the routes of a Lightwave, the slot is the second
// path element:
//
//	GET, POST /laser/{slot}/wavelength
//	POST      /laser/{slot}/power      (dBm)
//	POST      /laser/{slot}/output
//	GET       /meter/{slot}/power
//	POST      /meter/{slot}/wavelength
//	GET, POST /attenuator/{slot}/attenuation
//	POST      /attenuator/{slot}/wavelength
func HTTPLightwave(l Lightwave, table server.RouteTable) {
	table[server.Get("/laser/{slot}/wavelength")] = slotFloat(l.LaserWavelength)
	table[server.Post("/laser/{slot}/wavelength")] = slotSetFloat(l.SetLaserWavelength)
	table[server.Post("/laser/{slot}/power")] = slotSetFloat(l.SetLaserPower)
	table[server.Post("/laser/{slot}/output")] = func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotParam(r)
		if err != nil {
			generichttp.Error(w, r, err)
			return
		}
		generichttp.SetBool(func(on bool) error { return l.SetLaserOutput(slot, on) })(w, r)
	}
	table[server.Get("/meter/{slot}/power")] = slotFloat(l.MeterPower)
	table[server.Post("/meter/{slot}/wavelength")] = slotSetFloat(l.SetMeterWavelength)
	table[server.Get("/attenuator/{slot}/attenuation")] = slotFloat(l.Attenuation)
	table[server.Post("/attenuator/{slot}/attenuation")] = slotSetFloat(l.SetAttenuation)
	table[server.Post("/attenuator/{slot}/wavelength")] = slotSetFloat(l.SetAttenuatorWavelength)
}

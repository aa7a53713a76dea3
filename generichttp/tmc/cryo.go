package tmc

import (
	"github.com/amcc/golab/generichttp"
	"github.com/amcc/golab/server"
)

// ResistanceBridge is an AC resistance bridge such as the SIM921
type ResistanceBridge interface {
	Resistance() (float64, error)
	Range() (float64, error)
	SetRange(maxOhms float64) (float64, error)
	Excitation() (float64, error)
	SetExcitation(volts float64) error
	TimeConstant() (float64, error)
	SetTimeConstant(seconds float64) error
}

// HTTPResistanceBridge injects the routes of a resistance bridge.
// POST /range takes the largest resistance to be measured.
func HTTPResistanceBridge(b ResistanceBridge, table server.RouteTable) {
	table[server.Get("/resistance")] = generichttp.GetFloat(b.Resistance)
	table[server.Get("/range")] = generichttp.GetFloat(b.Range)
	table[server.Post("/range")] = generichttp.SetFloat(func(ohms float64) error {
		_, err := b.SetRange(ohms)
		return err
	})
	table[server.Get("/excitation")] = generichttp.GetFloat(b.Excitation)
	table[server.Post("/excitation")] = generichttp.SetFloat(b.SetExcitation)
	table[server.Get("/time-constant")] = generichttp.GetFloat(b.TimeConstant)
	table[server.Post("/time-constant")] = generichttp.SetFloat(b.SetTimeConstant)
}

// Thermometer reads a temperature in K from one of several channels
type Thermometer interface {
	Temperature(ch int) (float64, error)
}

// HTTPThermometer injects GET /temperature?ch=1
func HTTPThermometer(t Thermometer, table server.RouteTable) {
	table[server.Get("/temperature")] = withChannel(1, t.Temperature)
}

// Voltmeter reads a voltage from one of several channels
type Voltmeter interface {
	Voltage(ch int) (float64, error)
}

// HTTPVoltmeter injects GET /voltage?ch=1
func HTTPVoltmeter(v Voltmeter, table server.RouteTable) {
	table[server.Get("/voltage")] = withChannel(1, v.Voltage)
}

package agilent

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const errQuery = ";:SYSTem:ERRor?"

// session answers handshakes with no error
func session() (*comm.Session, *comm.Mock) {
	m := comm.NewMock().Handle(func(cmd string) (string, bool) {
		if strings.HasSuffix(cmd, errQuery) {
			return `+0,"No error"`, true
		}
		return "", false
	})
	return comm.NewSession("TCPIP0::fg::INSTR", m, 100*time.Millisecond, comm.Terminators{Tx: '\n', Rx: '\n'}), m
}

// commands returns the commands written to m with any handshake removed
func commands(m *comm.Mock) []string {
	w := m.Writes()
	for i, cmd := range w {
		w[i] = strings.TrimSuffix(strings.TrimPrefix(cmd, "*CLS;"), errQuery)
	}
	return w
}

func TestSetFrequencyVerified(t *testing.T) {
	s, m := session()
	m.On("SOUR1:FREQ?", "+1.23456800000000E+06")
	f := NewFunctionGenerator(s, Agilent33522A)
	if err := f.SetFrequency(1, 1234567.8); err != nil {
		t.Fatal(err)
	}
	exp := []string{"SOUR1:FREQ 1.234568e+06", "SOUR1:FREQ?"}
	if diff := cmp.Diff(exp, commands(m)); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestHandshakeDialects(t *testing.T) {
	s, m := session()
	m.On("*CLS;SOUR1:FUNC SQU;:SYSTem:ERRor?", `-221,"Settings conflict"`)
	err := NewFunctionGenerator(s, Agilent33522A).Write("SOUR1:FUNC SQU")
	var ce *scpi.CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CommandError, got %v", err)
	}

	s, m = session()
	if err = NewFunctionGenerator(s, RigolDG5000).SetOutput(1, true); err != nil {
		t.Fatal(err)
	}
	if w := m.Writes(); len(w) != 1 || strings.HasSuffix(w[0], errQuery) {
		t.Errorf("Rigol writes were handshaked, %q", w)
	}

	s, m = session()
	if err = NewCounter(s).SetupTotalize(); err != nil {
		t.Fatal(err)
	}
	if w := m.Writes(); len(w) != 1 || w[0] != "*CLS;:CONF:TOT:CONT;:SYSTem:ERRor?" {
		t.Errorf("counter write %q", w)
	}
}

func TestSetFrequencyMismatch(t *testing.T) {
	s, m := session()
	m.On("SOUR2:FREQ?", "1000")
	err := NewFunctionGenerator(s, RigolDG5000).SetFrequency(2, 2000)
	var svf *verify.SetVerifyFailed
	if !errors.As(err, &svf) {
		t.Fatalf("expected SetVerifyFailed, got %v", err)
	}
}

func TestSetFrequencyRange(t *testing.T) {
	s, m := session()
	var ia *scpi.InvalidArgument
	if err := NewFunctionGenerator(s, Agilent33522A).SetFrequency(1, 100e6); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument above 30 MHz, got %v", err)
	}
	if err := NewFunctionGenerator(s, Agilent33522A).SetFrequency(3, 1e3); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for channel 3, got %v", err)
	}
	if len(commands(m)) != 0 {
		t.Errorf("expected no writes, got %v", commands(m))
	}
}

func TestRigolAmplitudeWithUnit(t *testing.T) {
	s, m := session()
	m.On("SOUR1:VOLT?", "1.000000VPP")
	a, err := NewFunctionGenerator(s, RigolDG5000).Amplitude(1)
	if err != nil {
		t.Fatal(err)
	}
	if a != 1 {
		t.Errorf("expected 1 Vpp, got %v", a)
	}
}

func TestSetHighLowInverted(t *testing.T) {
	s, m := session()
	if err := NewFunctionGenerator(s, RigolDG5000).SetHighLow(1, 1, -1); err != nil {
		t.Fatal(err)
	}
	exp := []string{"SOUR1:VOLT 2.000000e+00", "SOUR1:VOLT:OFFS 0.000000e+00", "OUTP1:POL INV"}
	if diff := cmp.Diff(exp, commands(m)); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestSetupSineDialects(t *testing.T) {
	s, m := session()
	if err := NewFunctionGenerator(s, Agilent33522A).SetupSine(2, 1e3, 0.5, 0, 90); err != nil {
		t.Fatal(err)
	}
	exp := []string{
		"SOUR2:APPL:SIN 1.000000e+03, 5.000000e-01, 0.000000e+00",
		"SOUR2:PHAS 9.000000e+01"}
	if diff := cmp.Diff(exp, commands(m)); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}

	s, m = session()
	if err := NewFunctionGenerator(s, RigolDG5000).SetupSine(2, 1e3, 0.5, 0, 90); err != nil {
		t.Fatal(err)
	}
	exp = []string{"SOUR2:APPL:SIN 1.000000e+03, 5.000000e-01, 0.000000e+00, 9.000000e+01"}
	if diff := cmp.Diff(exp, commands(m)); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestBurst(t *testing.T) {
	s, m := session()
	if err := NewFunctionGenerator(s, Agilent33522A).SetBurst(1, Burst{Enable: true}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	f := NewFunctionGenerator(s, RigolDG5000)
	var ia *scpi.InvalidArgument
	if err := f.SetBurst(1, Burst{Enable: true, Cycles: 1, Trigger: "bus"}); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for trigger bus, got %v", err)
	}
	if err := f.SetBurst(1, Burst{Enable: true, Cycles: 3, Trigger: "int", Period: 15e-3}); err != nil {
		t.Fatal(err)
	}
	w := commands(m)
	if w[4] != ":SOUR1:BURS:TRIG:SOUR INT" || w[5] != ":SOUR1:BURS:INT:PER 1.500000e-02" {
		t.Errorf("unexpected burst setup %v", w)
	}
}

func TestNormalize(t *testing.T) {
	pts, vpp, off, err := normalize([]float64{0, 1, 2}, []float64{0, 2, 1}, 5)
	if err != nil {
		t.Fatal(err)
	}
	exp := []float64{-1, 0, 1, 0.5, 0}
	if diff := cmp.Diff(exp, pts); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	if vpp != 2 || off != 1 {
		t.Errorf("expected vpp 2 and offset 1, got %v %v", vpp, off)
	}
	if _, _, _, err = normalize([]float64{0, 1}, []float64{1, 1}, 5); err == nil {
		t.Error("expected an error for a constant waveform")
	}
}

func TestArbitraryRateLimit(t *testing.T) {
	s, m := session()
	err := NewFunctionGenerator(s, Agilent33522A).SetArbitrary(1, []float64{0, 1e-6}, []float64{0, 1}, 1000)
	var ia *scpi.InvalidArgument
	if !errors.As(err, &ia) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if len(commands(m)) != 0 {
		t.Errorf("expected nothing sent, got %v", commands(m))
	}
}

func TestArbitraryUpload(t *testing.T) {
	s, m := session()
	err := NewFunctionGenerator(s, Agilent33522A).SetArbitrary(1, []float64{0, 1e-3}, []float64{-1, 3}, 2)
	if err != nil {
		t.Fatal(err)
	}
	exp := []string{
		"SOUR1:FUNC ARB",
		"SOUR1:DATA:VOL:CLE",
		"SOUR1:DATA:ARB TEMPARB1, -1.000, 1.000",
		"SOUR1:FUNC:ARB TEMPARB1",
		"SOUR1:FUNC:ARB:SRAT 2.000000e+03",
		"SOUR1:VOLT 4.000000e+00",
		"SOUR1:VOLT:OFFS 1.000000e+00",
	}
	if diff := cmp.Diff(exp, commands(m)); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	if s.Timeout != 100*time.Millisecond {
		t.Errorf("timeout not restored, %v", s.Timeout)
	}
}

func TestTimedCount(t *testing.T) {
	s, m := session()
	m.On(":READ?", "+5.00000000000000E+001")
	rate, err := NewCounter(s).TimedCount(100 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(rate-500) > 1e-9 {
		t.Errorf("expected 500 counts/s, got %v", rate)
	}
	if w := commands(m); w[0] != ":TOT:ARM:STOP:TIM 0.100" {
		t.Errorf("unexpected stop time %v", w)
	}
}

func TestStopTotalize(t *testing.T) {
	s, m := session()
	m.On(":FETCH?", "+1.23400000000000E+003")
	n, err := NewCounter(s).StopTotalize()
	if err != nil || n != 1234 {
		t.Errorf("expected 1234, got %d %v", n, err)
	}
	if commands(m)[0] != ":ABORT" {
		t.Errorf("expected ABORT first, got %v", commands(m))
	}
}

func TestCountsVsTime(t *testing.T) {
	s, m := session()
	m.On(":READ?", "10")
	rec, err := NewCounter(s).CountsVsTime(context.Background(), -0.075, 10*time.Millisecond, 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1000, 1000, 1000}, rec.Measurement, cmpopts.EquateApprox(1e-9, 0)); diff != "" {
		t.Errorf("rates mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(strings.Join(commands(m), " "), ":EVEN1:LEV -0.075V") {
		t.Errorf("trigger level not set, %v", commands(m))
	}
}

func TestMultimeter(t *testing.T) {
	s, m := session()
	m.On("MEAS:RES? 1000", "+9.87000000E+02").On("MEAS?", "-1.5E-03")
	dmm := NewMultimeter(s)
	r, err := dmm.Resistance(1000)
	if err != nil || r != 987 {
		t.Errorf("expected 987, got %v %v", r, err)
	}
	v, err := dmm.Voltage()
	if err != nil || v != -1.5e-3 {
		t.Errorf("expected -1.5 mV, got %v %v", v, err)
	}
}

func TestLightwave(t *testing.T) {
	s, m := session()
	m.On("SOUR1:WAV?", "+1.55000000000E-006")
	l := NewLightwave(s)
	if err := l.SetLaserWavelength(1, 1550); err != nil {
		t.Fatal(err)
	}
	wl, err := l.LaserWavelength(1)
	if err != nil || math.Abs(wl-1550) > 1e-6 {
		t.Errorf("expected 1550 nm, got %v %v", wl, err)
	}
	if err = l.SetLaserOutput(1, true); err != nil {
		t.Fatal(err)
	}
	exp := []string{"SOUR1:WAV 1550NM", "SOUR1:WAV?", "OUTP1:CHAN1:STAT 1"}
	if diff := cmp.Diff(exp, commands(m)); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	var ia *scpi.InvalidArgument
	if err = l.SetAttenuation(3, 70); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for 70 dB, got %v", err)
	}
}
